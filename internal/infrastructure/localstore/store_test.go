package localstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

func openStore(t *testing.T, path string) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(localstore.Config{Path: path}, zerolog.Nop())
	require.NoError(t, err, "debe abrir la base local")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStore(t *testing.T) *localstore.Store {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "almacen.db"))
}

func product(id, sku string, qty int64) *entity.Product {
	return &entity.Product{
		ID:       id,
		SKU:      sku,
		Name:     "Luva " + sku,
		Unit:     "un",
		Quantity: decimal.NewFromInt(qty),
		Active:   true,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Colecciones genéricas
// ──────────────────────────────────────────────────────────────────────────────

func TestStore_PutGetAllConservaOrden(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put("categories", "b", []byte(`{"id":"b"}`)))
	require.NoError(t, s.Put("categories", "a", []byte(`{"id":"a"}`)))
	require.NoError(t, s.Put("categories", "b", []byte(`{"id":"b","name":"EPI"}`)))

	recs, err := s.GetAll("categories")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].Key, "reemplazar no cambia la posición")
	assert.JSONEq(t, `{"id":"b","name":"EPI"}`, recs[0].Data)

	require.NoError(t, s.Clear("categories"))
	recs, err = s.GetAll("categories")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_SobreviveReapertura(t *testing.T) {
	path := filepath.Join(t.TempDir(), "almacen.db")
	s, err := localstore.Open(localstore.Config{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Repositories().Products.Create(product("p1", "000001", 4)))
	require.NoError(t, s.Close())

	s = openStore(t, path)
	got, err := s.Repositories().Products.GetByID("p1")
	require.NoError(t, err)
	require.NotNil(t, got, "el producto debe persistir tras reabrir")
	assert.True(t, decimal.NewFromInt(4).Equal(got.Quantity))
}

func TestStore_GetInexistenteDevuelveNil(t *testing.T) {
	s := newStore(t)
	got, err := s.Repositories().Products.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ──────────────────────────────────────────────────────────────────────────────
// Remapeo de ids temporales
// ──────────────────────────────────────────────────────────────────────────────

func TestStore_RekeyYReferencias(t *testing.T) {
	s := newStore(t)
	repos := s.Repositories()
	require.NoError(t, repos.Products.Create(product("temp_1", "000001", 0)))
	require.NoError(t, repos.Products.Create(product("p2", "000002", 0)))
	require.NoError(t, repos.Movements.Create(&entity.Movement{
		ID: "temp_m", ProductID: "temp_1", Kind: entity.MovementReceipt,
		Quantity: decimal.NewFromInt(1), Timestamp: time.Now(), Status: entity.MovementPendingSync,
	}))
	require.NoError(t, repos.IDs.Register("temp_1"))

	require.NoError(t, repos.Cache.Rekey(entity.CollectionProducts, "temp_1", "perm-1"))
	require.NoError(t, repos.Cache.ReplaceReferences("temp_1", "perm-1"))
	require.NoError(t, repos.IDs.Bind("temp_1", "perm-1"))

	got, err := repos.Products.GetByID("perm-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "perm-1", got.ID, "el campo id del documento también cambia")

	viaTemp, err := repos.Products.GetByID("temp_1")
	require.NoError(t, err)
	require.NotNil(t, viaTemp, "la clave temporal sigue siendo alcanzable por la tabla de ids")
	assert.Equal(t, "perm-1", viaTemp.ID)

	all, err := repos.Products.List(repository.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "perm-1", all[0].ID, "el registro conserva su posición")

	m, err := repos.Movements.GetByID("temp_m")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "perm-1", m.ProductID)

	resolved, known, err := repos.IDs.Resolve("temp_1")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, "perm-1", resolved)

	_, known, err = repos.IDs.Resolve("perm-1")
	require.NoError(t, err)
	assert.False(t, known, "un id permanente no figura en la tabla")
}

// ──────────────────────────────────────────────────────────────────────────────
// Cola y transacciones
// ──────────────────────────────────────────────────────────────────────────────

func TestPendingOperations_FIFOYPurga(t *testing.T) {
	s := newStore(t)
	ops := s.Repositories().Operations
	for _, id := range []string{"op-c", "op-a", "op-b"} {
		require.NoError(t, ops.Append(&entity.PendingOperation{
			ID: id, Kind: entity.OperationInsert, Collection: entity.CollectionProducts, Status: entity.SyncPending,
		}))
	}

	list, err := ops.ListReplayable()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"op-c", "op-a", "op-b"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, int64(1), list[0].Seq)
	assert.Equal(t, int64(3), list[2].Seq)

	list[0].Status = entity.SyncSynced
	require.NoError(t, ops.Update(list[0]))
	list[1].Status = entity.SyncError
	require.NoError(t, ops.Update(list[1]))

	n, err := ops.CountReplayable()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "pending y error se reintentan")

	purged, err := ops.DeleteSynced()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	all, err := ops.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTxRunner_RollbackNoDejaRastros(t *testing.T) {
	s := newStore(t)
	runner := localstore.NewTxRunner(s)
	boom := errors.New("boom")

	err := runner.Run(context.Background(), func(r repository.Repositories) error {
		if err := r.Products.Create(product("p1", "000001", 1)); err != nil {
			return err
		}
		if err := r.Operations.Append(&entity.PendingOperation{ID: "op1", Status: entity.SyncPending}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Repositories().Products.GetByID("p1")
	require.NoError(t, err)
	assert.Nil(t, got, "el producto no debe quedar tras el rollback")
	n, err := s.Repositories().Operations.CountReplayable()
	require.NoError(t, err)
	assert.Zero(t, n, "la operación no debe quedar tras el rollback")
}

func TestProducts_DuplicadoYBusquedas(t *testing.T) {
	s := newStore(t)
	repos := s.Repositories()
	p := product("p1", "000001", 2)
	p.Tag = "TAG-01"
	p.MinStock = decimal.NewFromInt(5)
	require.NoError(t, repos.Products.Create(p))

	err := repos.Products.Create(product("p1", "000009", 0))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	byTag, err := repos.Products.GetByTag(" tag-01 ")
	require.NoError(t, err)
	require.NotNil(t, byTag)
	assert.Equal(t, "p1", byTag.ID)

	bySKU, err := repos.Products.GetBySKU("000001")
	require.NoError(t, err)
	require.NotNil(t, bySKU)

	low, err := repos.Products.List(repository.ProductFilter{LowStockOnly: true})
	require.NoError(t, err)
	assert.Len(t, low, 1)

	byText, err := repos.Products.List(repository.ProductFilter{Search: "luva"})
	require.NoError(t, err)
	assert.Len(t, byText, 1)
}

func TestSequences_NextYAtLeast(t *testing.T) {
	s := newStore(t)
	seq := s.Repositories().Sequences
	a, err := seq.Next("sku")
	require.NoError(t, err)
	b, err := seq.Next("sku")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)

	require.NoError(t, seq.AtLeast("sku", 10))
	require.NoError(t, seq.AtLeast("sku", 3))
	c, err := seq.Next("sku")
	require.NoError(t, err)
	assert.Equal(t, int64(11), c)
}
