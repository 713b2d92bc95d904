package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

var _ ports.RemoteStore = (*RemoteStore)(nil)

//go:embed schema.sql
var schema string

// Querier operaciones comunes a pool y tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// table tabla de una colección. stock indica la columna quantity separada del documento.
type table struct {
	name  string
	stock bool
}

// tables colecciones aceptadas; el nombre de tabla nunca sale de la entrada del usuario.
var tables = map[string]table{
	entity.CollectionProducts:      {name: "products", stock: true},
	entity.CollectionMovements:     {name: "movements"},
	entity.CollectionCollaborators: {name: "collaborators"},
	entity.CollectionPeriodicities: {name: "collaborator_periodicities"},
}

// RemoteStore sistema de registro sobre PostgreSQL: documentos jsonb por colección.
type RemoteStore struct {
	q    Querier
	ping func(ctx context.Context) error
}

// NewRemoteStore construye el adaptador sobre el pool.
func NewRemoteStore(pool *pgxpool.Pool) *RemoteStore {
	return &RemoteStore{q: pool, ping: pool.Ping}
}

// Migrate crea las tablas y la función de ajuste si no existen.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", classify(err))
	}
	return nil
}

func lookup(collection string) (table, error) {
	t, ok := tables[collection]
	if !ok {
		return table{}, fmt.Errorf("colección %q: %w", collection, domain.ErrRemoteRejected)
	}
	return t, nil
}

// selectDoc reconstruye el documento con su id (y la cantidad en productos).
func (t table) selectDoc() string {
	if t.stock {
		return "data || jsonb_build_object('id', id, 'quantity', quantity::text)"
	}
	return "data || jsonb_build_object('id', id)"
}

// Insert crea el documento. Sin "id" el servidor genera un uuid.
func (r *RemoteStore) Insert(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	t, err := lookup(collection)
	if err != nil {
		return "", err
	}
	body, id, err := splitDoc(doc, t.stock)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES (coalesce($1, gen_random_uuid()::text), $2)
		RETURNING id`, t.name)
	var newID string
	if err := r.q.QueryRow(ctx, query, id, body).Scan(&newID); err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, classify(err))
	}
	return newID, nil
}

// Update reemplaza el documento. En productos la cantidad no se toca.
func (r *RemoteStore) Update(ctx context.Context, collection, id string, doc json.RawMessage) error {
	t, err := lookup(collection)
	if err != nil {
		return err
	}
	body, _, err := splitDoc(doc, t.stock)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET data = $2, updated_at = now() WHERE id = $1`, t.name)
	tag, err := r.q.Exec(ctx, query, id, body)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: no existe: %w", collection, id, domain.ErrRemoteRejected)
	}
	return nil
}

func (r *RemoteStore) Delete(ctx context.Context, collection, id string) error {
	t, err := lookup(collection)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.name), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: no existe: %w", collection, id, domain.ErrRemoteRejected)
	}
	return nil
}

func (r *RemoteStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	t, err := lookup(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.selectDoc(), t.name)
	var doc []byte
	err = r.q.QueryRow(ctx, query, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, classify(err))
	}
	return doc, nil
}

// List devuelve la colección en orden de inserción.
func (r *RemoteStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	t, err := lookup(collection)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq`, t.selectDoc(), t.name))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, classify(err))
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, classify(err))
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, classify(err))
	}
	return out, nil
}

// AdjustStockQuantity suma delta a la cantidad del producto en una sola sentencia del servidor.
func (r *RemoteStore) AdjustStockQuantity(ctx context.Context, productID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var q decimal.NullDecimal
	err := r.q.QueryRow(ctx, `SELECT adjust_stock_quantity($1, $2)`, productID, delta).Scan(&q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust_stock_quantity %s: %w", productID, classify(err))
	}
	if !q.Valid {
		return decimal.Zero, fmt.Errorf("adjust_stock_quantity %s: producto inexistente: %w", productID, domain.ErrRemoteRejected)
	}
	return q.Decimal, nil
}

func (r *RemoteStore) Ping(ctx context.Context) error {
	if err := r.ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", classify(err))
	}
	return nil
}

// splitDoc separa el "id" del documento. En productos también quita la cantidad, que vive
// en su propia columna.
func splitDoc(doc json.RawMessage, stock bool) ([]byte, *string, error) {
	m := map[string]any{}
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, fmt.Errorf("documento inválido: %w: %v", domain.ErrRemoteRejected, err)
	}
	var id *string
	if s, ok := m["id"].(string); ok && s != "" {
		id = &s
	}
	delete(m, "id")
	if stock {
		delete(m, "quantity")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, nil, fmt.Errorf("documento inválido: %w: %v", domain.ErrRemoteRejected, err)
	}
	return body, id, nil
}
