package ledger_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
	"github.com/jhoicas/almacen-sync/internal/domain/entity"
	"github.com/jhoicas/almacen-sync/internal/domain/repository"
	"github.com/jhoicas/almacen-sync/internal/infrastructure/localstore"
	"github.com/jhoicas/almacen-sync/internal/testutil"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	repos   repository.Repositories
	remote  *testutil.FakeRemote
	queue   *syncqueue.Manager
	monitor *connectivity.Monitor
	ledger  *ledger.Ledger
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	store := testutil.NewLocalStore(t)
	remote := testutil.NewFakeRemote()
	repos := store.Repositories()
	tx := localstore.NewTxRunner(store)
	queue := syncqueue.NewManager(tx, repos, remote, syncqueue.Options{RemoteTimeout: time.Second, Logger: zerolog.Nop()})
	monitor := connectivity.NewMonitor(queue, connectivity.Options{InitialOnline: online, Logger: zerolog.Nop()})
	l := ledger.New(tx, repos, queue, monitor, remote, ledger.Options{RemoteTimeout: time.Second, Logger: zerolog.Nop()})
	return &fixture{repos: repos, remote: remote, queue: queue, monitor: monitor, ledger: l}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) product(t *testing.T, sku string, initial int64) *entity.Product {
	t.Helper()
	p, err := f.ledger.RegisterProduct(context.Background(), ledger.ProductInput{
		SKU:             sku,
		Name:            "Luva nitrílica " + sku,
		Unit:            "un",
		InitialQuantity: dec(initial),
		Actor:           "almoxarife",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) collaborator(t *testing.T, id string, handles bool) {
	t.Helper()
	require.NoError(t, f.repos.Collaborators.Create(&entity.Collaborator{ID: id, Name: "Colaborador " + id, CanHandleDeliveries: handles}))
}

func (f *fixture) move(t *testing.T, productID string, kind entity.MovementKind, qty int64) *entity.Movement {
	t.Helper()
	m, err := f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
		ProductID: productID,
		Kind:      kind,
		Quantity:  dec(qty),
		Actor:     "almoxarife",
	})
	require.NoError(t, err)
	return m
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "%s: esperado %d, obtenido %s", msg, want, got)
}

// ──────────────────────────────────────────────────────────────────────────────
// Movimientos en línea
// ──────────────────────────────────────────────────────────────────────────────

func TestApplyMovement_EscenarioEntradasYSalidas(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-01", 10)
	assert.False(t, strings.HasPrefix(p.ID, entity.TempIDPrefix), "en línea el producto queda con id permanente")

	f.move(t, p.ID, entity.MovementReceipt, 2)
	f.move(t, p.ID, entity.MovementWithdrawal, 3)
	last := f.move(t, p.ID, entity.MovementWriteOff, 1)

	assert.Equal(t, entity.MovementConfirmed, last.Status)
	assertDecimal(t, 9, last.QuantityBefore, "snapshot anterior")
	assertDecimal(t, 8, last.QuantityAfter, "snapshot posterior")

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assertDecimal(t, 8, got.Quantity, "cantidad local")
	assertDecimal(t, 8, f.remote.Quantity(p.ID), "cantidad remota")

	report, err := f.ledger.Audit(p.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 4, report.Movements)

	n, err := f.queue.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyMovement_SalidaSinStockNoDejaRastro(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-02", 2)

	_, err := f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
		ProductID: p.ID,
		Kind:      entity.MovementWithdrawal,
		Quantity:  dec(5),
		Actor:     "almoxarife",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assertDecimal(t, 2, got.Quantity, "la cantidad no cambia")
	movs, err := f.ledger.ProductMovements(p.ID)
	require.NoError(t, err)
	assert.Len(t, movs, 1, "solo la carga inicial")
	assert.Equal(t, 2, f.remote.Count(entity.CollectionMovements)+f.remote.Count(entity.CollectionProducts))
}

func TestApplyMovement_DevolucionYBajaDescuentanConSuTipo(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-03", 6)

	ret := f.move(t, p.ID, entity.MovementSupplierReturn, 2)
	off := f.move(t, p.ID, entity.MovementWriteOff, 1)

	assert.Equal(t, entity.MovementSupplierReturn, ret.Kind)
	assert.Equal(t, entity.MovementWriteOff, off.Kind)
	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assertDecimal(t, 3, got.Quantity, "cantidad")
}

func TestApplyMovement_EntradaConPrecioRecalculaCostoPromedio(t *testing.T) {
	f := newFixture(t, true)
	p, err := f.ledger.RegisterProduct(context.Background(), ledger.ProductInput{
		SKU: "CAP-01", Name: "Capacete", InitialQuantity: dec(10), UnitCost: dec(100), Actor: "almoxarife",
	})
	require.NoError(t, err)

	price := dec(200)
	m, err := f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
		ProductID: p.ID, Kind: entity.MovementReceipt, Quantity: dec(10), Actor: "almoxarife", UnitPrice: &price,
	})
	require.NoError(t, err)
	require.True(t, m.TotalValue.Valid)
	assertDecimal(t, 2000, m.TotalValue.Decimal, "valor total")

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assertDecimal(t, 150, got.UnitCost, "costo promedio")
}

func TestApplyMovement_ValidaEntrada(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-04", 1)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ledger.MovementInput
	}{
		{"cantidad cero", ledger.MovementInput{ProductID: p.ID, Kind: entity.MovementReceipt, Quantity: decimal.Zero, Actor: "a"}},
		{"cantidad negativa", ledger.MovementInput{ProductID: p.ID, Kind: entity.MovementReceipt, Quantity: dec(-1), Actor: "a"}},
		{"tipo desconocido", ledger.MovementInput{ProductID: p.ID, Kind: "transfer", Quantity: dec(1), Actor: "a"}},
		{"sin responsable", ledger.MovementInput{ProductID: p.ID, Kind: entity.MovementReceipt, Quantity: dec(1)}},
		{"sin producto", ledger.MovementInput{Kind: entity.MovementReceipt, Quantity: dec(1), Actor: "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.ApplyMovement(ctx, tc.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	_, err := f.ledger.ApplyMovement(ctx, ledger.MovementInput{ProductID: "no-existe", Kind: entity.MovementReceipt, Quantity: dec(1), Actor: "a"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyMovement_ProductoInactivoRechaza(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-05", 3)
	_, err := f.ledger.DeactivateProduct(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
		ProductID: p.ID, Kind: entity.MovementWithdrawal, Quantity: dec(1), Actor: "a",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestApplyMovement_SalidasConcurrentesNoPierdenActualizaciones(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "LUV-06", 100)

	var wg sync.WaitGroup
	errs := make(chan error, 25)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ApplyMovement(context.Background(), ledger.MovementInput{
				ProductID: p.ID, Kind: entity.MovementWithdrawal, Quantity: dec(5), Actor: "a",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
			rejected++
		}
	}
	assert.Equal(t, 20, ok)
	assert.Equal(t, 5, rejected)

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.IsZero(), "nunca queda negativo")
	report, err := f.ledger.Audit(p.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

// ──────────────────────────────────────────────────────────────────────────────
// Sin conexión
// ──────────────────────────────────────────────────────────────────────────────

func TestApplyMovement_SinConexionQuedaPendienteYSeConfirmaAlReconectar(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "LUV-07", 5)
	require.True(t, strings.HasPrefix(p.ID, entity.TempIDPrefix))

	m := f.move(t, p.ID, entity.MovementWithdrawal, 2)
	assert.Equal(t, entity.MovementPendingSync, m.Status)
	assert.True(t, strings.HasPrefix(m.ID, entity.TempIDPrefix))
	assert.Zero(t, f.remote.Count(entity.CollectionProducts))

	n, err := f.queue.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "alta del producto, carga inicial y salida")

	f.monitor.Handle(context.Background(), connectivity.EventNetworkAvailable)

	confirmed, err := f.ledger.GetMovement(m.ID)
	require.NoError(t, err, "el id temporal sigue resolviendo")
	assert.Equal(t, entity.MovementConfirmed, confirmed.Status)
	assert.False(t, strings.HasPrefix(confirmed.ID, entity.TempIDPrefix))

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(got.ID, entity.TempIDPrefix))
	assert.Equal(t, got.ID, confirmed.ProductID, "la referencia al producto se reescribe")
	assertDecimal(t, 3, got.Quantity, "cantidad local")
	assertDecimal(t, 3, f.remote.Quantity(got.ID), "cantidad remota")

	n, err = f.queue.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApplyMovement_RemotoCaidoConRedArribaQuedaEnCola(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-08", 4)
	f.remote.SetOffline(true)

	m := f.move(t, p.ID, entity.MovementWithdrawal, 1)
	assert.Equal(t, entity.MovementPendingSync, m.Status)

	f.remote.SetOffline(false)
	_, err := f.monitor.Sync(context.Background())
	require.NoError(t, err)

	confirmed, err := f.ledger.GetMovement(m.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MovementConfirmed, confirmed.Status)
	assertDecimal(t, 3, f.remote.Quantity(p.ID), "cantidad remota")
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancelación
// ──────────────────────────────────────────────────────────────────────────────

func TestCancelMovement_RestauraCantidadYConservaHistorial(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-09", 10)
	m := f.move(t, p.ID, entity.MovementWithdrawal, 4)

	cancelled, err := f.ledger.CancelMovement(context.Background(), m.ID, "registrado por error")
	require.NoError(t, err)
	assert.Equal(t, entity.MovementCancelled, cancelled.Status)
	assert.Equal(t, "registrado por error", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	got, err := f.ledger.GetProduct(p.ID)
	require.NoError(t, err)
	assertDecimal(t, 10, got.Quantity, "cantidad local")
	assertDecimal(t, 10, f.remote.Quantity(p.ID), "cantidad remota")
	assert.Equal(t, "cancelled", f.remote.Doc(entity.CollectionMovements, m.ID)["status"])

	history, err := f.ledger.ListMovements(repository.MovementFilter{ProductID: p.ID})
	require.NoError(t, err)
	assert.Len(t, history, 2, "el movimiento cancelado sigue en el historial")

	report, err := f.ledger.Audit(p.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	_, err = f.ledger.CancelMovement(context.Background(), m.ID, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestCancelMovement_Errores(t *testing.T) {
	t.Run("sin conexión", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.ledger.CancelMovement(context.Background(), "x", "")
		assert.ErrorIs(t, err, domain.ErrOffline)
	})

	t.Run("no existe", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.ledger.CancelMovement(context.Background(), "x", "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("pendiente de sincronizar", func(t *testing.T) {
		f := newFixture(t, true)
		p := f.product(t, "LUV-10", 3)
		f.remote.SetOffline(true)
		m := f.move(t, p.ID, entity.MovementWithdrawal, 1)

		_, err := f.ledger.CancelMovement(context.Background(), m.ID, "")
		assert.ErrorIs(t, err, domain.ErrPendingSync)
	})

	t.Run("dejaría stock negativo", func(t *testing.T) {
		f := newFixture(t, true)
		p := f.product(t, "LUV-11", 5)
		f.move(t, p.ID, entity.MovementWithdrawal, 4)
		movs, err := f.ledger.ProductMovements(p.ID)
		require.NoError(t, err)
		initial := movs[0]
		require.Equal(t, entity.MovementReceipt, initial.Kind)

		_, err = f.ledger.CancelMovement(context.Background(), initial.ID, "")
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		got, err := f.ledger.GetMovement(initial.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.MovementConfirmed, got.Status)
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Salida rápida y colaboradores
// ──────────────────────────────────────────────────────────────────────────────

func TestQuickWithdrawal_PorTag(t *testing.T) {
	f := newFixture(t, true)
	f.collaborator(t, "C001", false)
	f.collaborator(t, "ALM1", true)
	_, err := f.ledger.RegisterProduct(context.Background(), ledger.ProductInput{
		SKU: "RAD-01", Name: "Rádio", Tag: " ab-01 ", InitialQuantity: dec(2), Actor: "almoxarife",
	})
	require.NoError(t, err)

	m, err := f.ledger.QuickWithdrawal(context.Background(), ledger.QuickWithdrawalInput{
		Tag: "AB-01", CollaboratorID: "C001", HandledByID: "ALM1", Actor: "almoxarife",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementWithdrawal, m.Kind)
	assert.Equal(t, "C001", m.CollaboratorID)
	assert.Equal(t, "AB-01", m.Tag)
	assertDecimal(t, 1, m.Quantity, "cantidad por defecto")

	_, err = f.ledger.QuickWithdrawal(context.Background(), ledger.QuickWithdrawalInput{
		Tag: "AB-01", CollaboratorID: "C001", HandledByID: "C001", Actor: "almoxarife",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "quien atiende debe estar habilitado")

	_, err = f.ledger.QuickWithdrawal(context.Background(), ledger.QuickWithdrawalInput{
		Tag: "AB-01", CollaboratorID: "C999", Actor: "almoxarife",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.ledger.QuickWithdrawal(context.Background(), ledger.QuickWithdrawalInput{
		Tag: "ZZ-99", CollaboratorID: "C001", Actor: "almoxarife",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// Catálogo
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterProduct_SKUAutomaticoYUnicidad(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	a, err := f.ledger.RegisterProduct(ctx, ledger.ProductInput{Name: "Bota PVC", Tag: "T-1"})
	require.NoError(t, err)
	assert.Equal(t, "000001", a.SKU)
	assert.True(t, a.Quantity.IsZero())

	_, err = f.ledger.RegisterProduct(ctx, ledger.ProductInput{SKU: "000001", Name: "Otro"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = f.ledger.RegisterProduct(ctx, ledger.ProductInput{Name: "Otro", Tag: "t-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicate, "el TAG se compara normalizado")

	_, err = f.ledger.RegisterProduct(ctx, ledger.ProductInput{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	next, err := f.ledger.NextSKU()
	require.NoError(t, err)
	assert.Equal(t, "000002", next)
}

func TestUpdateProduct_NoTocaLaCantidad(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LUV-12", 7)

	name := "Luva de raspa"
	minStock := dec(3)
	got, err := f.ledger.UpdateProduct(context.Background(), p.ID, ledger.ProductPatch{Name: &name, MinStock: &minStock})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assertDecimal(t, 7, got.Quantity, "cantidad local")
	assertDecimal(t, 7, f.remote.Quantity(p.ID), "cantidad remota")
	assert.Equal(t, name, f.remote.Doc(entity.CollectionProducts, p.ID)["name"])
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	withHistory := f.product(t, "LUV-13", 1)
	err := f.ledger.DeleteProduct(ctx, withHistory.ID)
	assert.ErrorIs(t, err, domain.ErrConflict, "con movimientos solo se desactiva")

	empty := f.product(t, "LUV-14", 0)
	require.NoError(t, f.ledger.DeleteProduct(ctx, empty.ID))
	_, err = f.ledger.GetProduct(empty.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, f.remote.Doc(entity.CollectionProducts, empty.ID))
}
