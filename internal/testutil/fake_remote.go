// Package testutil reúne dobles de prueba compartidos por los tests de aplicación e interfaces.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/almacen-sync/internal/application/ports"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
)

var _ ports.RemoteStore = (*FakeRemote)(nil)

// FakeRemote servicio remoto en memoria con inyección de fallos.
// La cantidad de los productos solo cambia por AdjustStockQuantity, como en el remoto real.
type FakeRemote struct {
	mu         sync.Mutex
	docs       map[string]map[string]map[string]any
	order      map[string][]string
	quantities map[string]decimal.Decimal
	nextID     int
	offline    bool
	rejected   map[string]bool
	failures   map[int]error // por número absoluto de llamada
	calls      int
	inserts    int
	adjusts    int
}

// NewFakeRemote construye el fake vacío.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		docs:       make(map[string]map[string]map[string]any),
		order:      make(map[string][]string),
		quantities: make(map[string]decimal.Decimal),
		rejected:   make(map[string]bool),
		failures:   make(map[int]error),
	}
}

// SetOffline simula la caída de la red: toda llamada falla con ErrRemoteUnavailable.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Reject hace que las escrituras sobre la colección sean rechazadas.
func (f *FakeRemote) Reject(collection string, reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected[collection] = reject
}

// FailCall programa un error para la n-ésima llamada a partir de ahora.
func (f *FakeRemote) FailCall(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[f.calls+n] = err
}

// Inserts cantidad de inserciones aceptadas.
func (f *FakeRemote) Inserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}

// Adjusts cantidad de ajustes de stock aplicados.
func (f *FakeRemote) Adjusts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adjusts
}

// Count documentos de la colección.
func (f *FakeRemote) Count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[collection])
}

// IDs ids de la colección en orden de inserción.
func (f *FakeRemote) IDs(collection string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order[collection]...)
}

// Doc copia del documento almacenado o nil.
func (f *FakeRemote) Doc(collection, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[collection][id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Quantity cantidad remota del producto.
func (f *FakeRemote) Quantity(productID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quantities[productID]
}

// Seed carga un documento como si ya existiera en el remoto.
func (f *FakeRemote) Seed(collection string, doc map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := doc["id"].(string)
	f.store(collection, id, doc)
	if collection == entity.CollectionProducts {
		if q, ok := doc["quantity"].(string); ok {
			f.quantities[id] = decimal.RequireFromString(q)
		}
	}
}

func (f *FakeRemote) store(collection, id string, doc map[string]any) {
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	if _, ok := f.docs[collection][id]; !ok {
		f.order[collection] = append(f.order[collection], id)
	}
	f.docs[collection][id] = doc
}

// enter cuenta la llamada y devuelve el fallo programado, si lo hay. Requiere f.mu.
func (f *FakeRemote) enter(ctx context.Context, collection string, write bool) error {
	f.calls++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fake remote: %w: %v", domain.ErrRemoteUnavailable, err)
	}
	if err, ok := f.failures[f.calls]; ok {
		delete(f.failures, f.calls)
		return err
	}
	if f.offline {
		return fmt.Errorf("fake remote: %w", domain.ErrRemoteUnavailable)
	}
	if write && f.rejected[collection] {
		return fmt.Errorf("fake remote: %s: %w", collection, domain.ErrRemoteRejected)
	}
	return nil
}

func (f *FakeRemote) Insert(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, collection, true); err != nil {
		return "", err
	}
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return "", fmt.Errorf("fake remote: %w: %v", domain.ErrRemoteRejected, err)
	}
	id, _ := m["id"].(string)
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("remote-%d", f.nextID)
	}
	if _, dup := f.docs[collection][id]; dup {
		return "", fmt.Errorf("fake remote: %s/%s: %w", collection, id, domain.ErrRemoteRejected)
	}
	m["id"] = id
	if collection == entity.CollectionProducts {
		delete(m, "quantity")
		f.quantities[id] = decimal.Zero
	}
	f.store(collection, id, m)
	f.inserts++
	return id, nil
}

func (f *FakeRemote) Update(ctx context.Context, collection, id string, doc json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, collection, true); err != nil {
		return err
	}
	if _, ok := f.docs[collection][id]; !ok {
		return fmt.Errorf("fake remote: %s/%s: %w", collection, id, domain.ErrRemoteRejected)
	}
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return fmt.Errorf("fake remote: %w: %v", domain.ErrRemoteRejected, err)
	}
	m["id"] = id
	if collection == entity.CollectionProducts {
		delete(m, "quantity")
	}
	f.docs[collection][id] = m
	return nil
}

func (f *FakeRemote) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, collection, true); err != nil {
		return err
	}
	if _, ok := f.docs[collection][id]; !ok {
		return fmt.Errorf("fake remote: %s/%s: %w", collection, id, domain.ErrRemoteRejected)
	}
	delete(f.docs[collection], id)
	ids := f.order[collection][:0]
	for _, v := range f.order[collection] {
		if v != id {
			ids = append(ids, v)
		}
	}
	f.order[collection] = ids
	return nil
}

func (f *FakeRemote) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, collection, false); err != nil {
		return nil, err
	}
	d, ok := f.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("fake remote: %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return f.encode(collection, id, d)
}

func (f *FakeRemote) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, collection, false); err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(f.order[collection]))
	for _, id := range f.order[collection] {
		raw, err := f.encode(collection, id, f.docs[collection][id])
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (f *FakeRemote) encode(collection, id string, d map[string]any) (json.RawMessage, error) {
	m := make(map[string]any, len(d)+1)
	for k, v := range d {
		m[k] = v
	}
	if collection == entity.CollectionProducts {
		m["quantity"] = f.quantities[id].String()
	}
	return json.Marshal(m)
}

func (f *FakeRemote) AdjustStockQuantity(ctx context.Context, productID string, delta decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, entity.CollectionProducts, true); err != nil {
		return decimal.Zero, err
	}
	if _, ok := f.docs[entity.CollectionProducts][productID]; !ok {
		return decimal.Zero, fmt.Errorf("fake remote: producto %s: %w", productID, domain.ErrRemoteRejected)
	}
	q := f.quantities[productID].Add(delta)
	f.quantities[productID] = q
	f.adjusts++
	return q, nil
}

func (f *FakeRemote) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fake remote: %w: %v", domain.ErrRemoteUnavailable, err)
	}
	if f.offline {
		return fmt.Errorf("fake remote: %w", domain.ErrRemoteUnavailable)
	}
	return nil
}
