package custody_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/custody"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/inventory"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
	"github.com/jhoicas/almacen-sync/internal/testutil"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

type fixture struct {
	remote  *testutil.FakeRemote
	queue   *syncqueue.Manager
	ledger  *ledger.Ledger
	custody *custody.Service
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	store := testutil.NewLocalStore(t)
	remote := testutil.NewFakeRemote()
	repos := store.Repositories()
	tx := localstore.NewTxRunner(store)
	queue := syncqueue.NewManager(tx, repos, remote, syncqueue.Options{RemoteTimeout: time.Second, Logger: zerolog.Nop()})
	monitor := connectivity.NewMonitor(queue, connectivity.Options{InitialOnline: online, Logger: zerolog.Nop()})
	clock := func() time.Time { return now }
	return &fixture{
		remote:  remote,
		queue:   queue,
		ledger:  ledger.New(tx, repos, queue, monitor, remote, ledger.Options{Logger: zerolog.Nop(), Now: clock}),
		custody: custody.NewService(tx, repos, queue, monitor, custody.Options{WarningDays: 3, Logger: zerolog.Nop(), Now: clock}),
	}
}

func (f *fixture) product(t *testing.T, sku string, initial int64) *entity.Product {
	t.Helper()
	p, err := f.ledger.RegisterProduct(context.Background(), ledger.ProductInput{
		SKU: sku, Name: "Material " + sku, InitialQuantity: decimal.NewFromInt(initial), Actor: "almoxarife",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) collaborator(t *testing.T, id string) {
	t.Helper()
	_, err := f.custody.RegisterCollaborator(context.Background(), entity.Collaborator{ID: id, Name: "Colaborador " + id})
	require.NoError(t, err)
}

func (f *fixture) move(t *testing.T, productID, collaboratorID string, kind entity.MovementKind, qty int64, at time.Time) {
	t.Helper()
	_, err := f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
		ProductID:      productID,
		Kind:           kind,
		Quantity:       decimal.NewFromInt(qty),
		Actor:          "almoxarife",
		CollaboratorID: collaboratorID,
		Timestamp:      at,
	})
	require.NoError(t, err)
}

// ──────────────────────────────────────────────────────────────────────────────
// Colaboradores
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterCollaborator_SeSincronizaConSuMatricula(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "M-100")

	assert.Equal(t, []string{"M-100"}, f.remote.IDs(entity.CollectionCollaborators))

	_, err := f.custody.RegisterCollaborator(context.Background(), entity.Collaborator{ID: "M-100", Name: "Otro"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = f.custody.RegisterCollaborator(context.Background(), entity.Collaborator{ID: "M-101"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterCollaborator_SinConexionQuedaEnCola(t *testing.T) {
	f := newFixture(t, false)
	f.collaborator(t, "M-200")

	list, err := f.custody.ListCollaborators()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Zero(t, f.remote.Count(entity.CollectionCollaborators))
	n, err := f.queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateCollaborator(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "M-300")

	updated, err := f.custody.UpdateCollaborator(context.Background(), entity.Collaborator{ID: "M-300", Name: "Ana", CanHandleDeliveries: true})
	require.NoError(t, err)
	assert.True(t, updated.CanHandleDeliveries)
	assert.Equal(t, "Ana", f.remote.Doc(entity.CollectionCollaborators, "M-300")["name"])

	_, err = f.custody.UpdateCollaborator(context.Background(), entity.Collaborator{ID: "X", Name: "X"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// Posesión y periodicidad
// ──────────────────────────────────────────────────────────────────────────────

func TestPossession_DerivaDelLedger(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "C1")
	f.collaborator(t, "C2")
	p := f.product(t, "EPI-01", 10)

	f.move(t, p.ID, "C1", entity.MovementWithdrawal, 3, now.Add(-48*time.Hour))
	f.move(t, p.ID, "C2", entity.MovementWithdrawal, 1, now.Add(-24*time.Hour))
	f.move(t, p.ID, "C1", entity.MovementReceipt, 1, now.Add(-time.Hour))

	items, err := f.custody.Possession("C1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, p.ID, items[0].ProductID)
	assert.True(t, decimal.NewFromInt(2).Equal(items[0].Quantity))
	assert.True(t, items[0].FirstWithdrawal.Equal(now.Add(-48*time.Hour)))

	_, err = f.custody.Possession("NADIE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDueItems_RetiroDe40DiasConMaximo30(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "C1")
	p := f.product(t, "EPI-02", 5)
	f.move(t, p.ID, "C1", entity.MovementWithdrawal, 1, now.Add(-40*24*time.Hour))

	_, err := f.custody.UpsertPeriodicity(context.Background(), custody.PeriodicityInput{
		CollaboratorID: "C1", ProductID: p.ID, MaxDays: 30, Active: true,
	})
	require.NoError(t, err)

	items, err := f.custody.DueItems("C1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, inventory.DueOverdue, items[0].State)
	assert.Equal(t, 40, items[0].DaysHeld)

	alerts, err := f.custody.Alerts("")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "C1", alerts[0].Collaborator.ID)

	onTime, err := f.custody.Alerts(inventory.DueOnTime)
	require.NoError(t, err)
	assert.Empty(t, onTime)
}

func TestUpsertPeriodicity_ActualizaElMismoPar(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "C1")
	p := f.product(t, "EPI-03", 1)
	ctx := context.Background()

	first, err := f.custody.UpsertPeriodicity(ctx, custody.PeriodicityInput{CollaboratorID: "C1", ProductID: p.ID, MaxDays: 30, Active: true})
	require.NoError(t, err)
	second, err := f.custody.UpsertPeriodicity(ctx, custody.PeriodicityInput{CollaboratorID: "C1", ProductID: p.ID, MaxDays: 15, Active: false})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	list, err := f.custody.Periodicities("C1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 15, list[0].MaxDays)
	assert.False(t, list[0].Active)
	assert.Equal(t, 1, f.remote.Count(entity.CollectionPeriodicities))

	_, err = f.custody.UpsertPeriodicity(ctx, custody.PeriodicityInput{CollaboratorID: "C1", ProductID: p.ID, MaxDays: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.custody.UpsertPeriodicity(ctx, custody.PeriodicityInput{CollaboratorID: "C1", ProductID: "no-existe", MaxDays: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
