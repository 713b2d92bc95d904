package connectivity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type fakeDrainer struct {
	mu     sync.Mutex
	calls  int
	result syncqueue.Result
	during func()
}

func (d *fakeDrainer) Drain(context.Context) (syncqueue.Result, error) {
	d.mu.Lock()
	d.calls++
	during := d.during
	d.mu.Unlock()
	if during != nil {
		during()
	}
	return d.result, nil
}

func (d *fakeDrainer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stateLog struct {
	mu     sync.Mutex
	states []connectivity.State
}

func (l *stateLog) record(s connectivity.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) all() []connectivity.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]connectivity.State(nil), l.states...)
}

func newMonitor(d *fakeDrainer, online bool, ticker *connectivity.ManualTicker) (*connectivity.Monitor, *stateLog) {
	opts := connectivity.Options{InitialOnline: online, Logger: zerolog.Nop()}
	if ticker != nil {
		opts.NewTicker = ticker.Factory()
	}
	m := connectivity.NewMonitor(d, opts)
	log := &stateLog{}
	m.OnChange(log.record)
	return m, log
}

// ──────────────────────────────────────────────────────────────────────────────
// Máquina de estados
// ──────────────────────────────────────────────────────────────────────────────

func TestMonitor_SinConexionNoDrena(t *testing.T) {
	d := &fakeDrainer{}
	m, _ := newMonitor(d, false, nil)
	ctx := context.Background()

	assert.Equal(t, connectivity.StateOffline, m.State())
	_, err := m.Sync(ctx)
	assert.ErrorIs(t, err, domain.ErrOffline)

	m.Handle(ctx, connectivity.EventTick)
	m.Handle(ctx, connectivity.EventSyncRequested)
	assert.Zero(t, d.Calls(), "nunca se drena sabiendo que no hay red")
}

func TestMonitor_RedDisponibleDrenaDeInmediato(t *testing.T) {
	d := &fakeDrainer{result: syncqueue.Result{Succeeded: 1, Failed: 2}}
	m, log := newMonitor(d, false, nil)

	m.Handle(context.Background(), connectivity.EventNetworkAvailable)

	assert.Equal(t, 1, d.Calls())
	assert.Equal(t, connectivity.StateOnline, m.State(), "vuelve a online aunque haya fallos individuales")
	assert.Equal(t, []connectivity.State{
		connectivity.StateOnline, connectivity.StateSyncing, connectivity.StateOnline,
	}, log.all())
}

func TestMonitor_RedPerdidaDuranteElDrenado(t *testing.T) {
	d := &fakeDrainer{}
	m, log := newMonitor(d, true, nil)
	ctx := context.Background()
	d.during = func() {
		assert.Equal(t, connectivity.StateSyncing, m.State())
		m.Handle(ctx, connectivity.EventNetworkLost)
	}

	_, err := m.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, connectivity.StateOffline, m.State())
	assert.False(t, m.IsOnline())
	assert.Equal(t, []connectivity.State{connectivity.StateSyncing, connectivity.StateOffline}, log.all())
}

func TestMonitor_ObservadoresRecibenCadaTransicion(t *testing.T) {
	d := &fakeDrainer{}
	m, first := newMonitor(d, false, nil)
	second := &stateLog{}
	late := &stateLog{}
	m.OnChange(func(s connectivity.State) {
		second.record(s)
		if s == connectivity.StateOnline && len(second.all()) == 1 {
			m.OnChange(late.record) // registrar desde un observador no bloquea
		}
	})
	ctx := context.Background()

	m.Handle(ctx, connectivity.EventNetworkAvailable)
	m.Handle(ctx, connectivity.EventNetworkLost)

	want := []connectivity.State{
		connectivity.StateOnline, connectivity.StateSyncing, connectivity.StateOnline, connectivity.StateOffline,
	}
	assert.Equal(t, want, first.all())
	assert.Equal(t, want, second.all())
	assert.Equal(t, want[1:], late.all(), "el observador nuevo se suma desde la transición siguiente")
}

func TestMonitor_TickDrenaSoloConConexion(t *testing.T) {
	d := &fakeDrainer{}
	m, _ := newMonitor(d, true, nil)
	ctx := context.Background()

	m.Handle(ctx, connectivity.EventTick)
	m.Handle(ctx, connectivity.EventNetworkLost)
	m.Handle(ctx, connectivity.EventTick)
	assert.Equal(t, 1, d.Calls())
}

func TestMonitor_RunConTickerManual(t *testing.T) {
	d := &fakeDrainer{}
	ticker := connectivity.NewManualTicker()
	m, _ := newMonitor(d, false, ticker)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	ticker.Tick(time.Now())
	m.NetworkAvailable()
	require.Eventually(t, func() bool { return d.Calls() == 1 }, time.Second, 5*time.Millisecond,
		"el tick sin red no drena; la señal de red sí")

	ticker.Tick(time.Now())
	require.Eventually(t, func() bool { return d.Calls() == 2 }, time.Second, 5*time.Millisecond)

	m.RequestSync()
	require.Eventually(t, func() bool { return d.Calls() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run debe terminar al cancelar el contexto")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Prober
// ──────────────────────────────────────────────────────────────────────────────

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeSignaler struct {
	online    bool
	available int
	lost      int
}

func (s *fakeSignaler) IsOnline() bool    { return s.online }
func (s *fakeSignaler) NetworkAvailable() { s.available++; s.online = true }
func (s *fakeSignaler) NetworkLost()      { s.lost++; s.online = false }

func TestProber_EmiteSoloTransiciones(t *testing.T) {
	pinger := &fakePinger{}
	sig := &fakeSignaler{}
	p := connectivity.NewProber(pinger, sig, time.Second, time.Second, nil, zerolog.Nop())
	ctx := context.Background()

	assert.True(t, p.Probe(ctx))
	assert.True(t, p.Probe(ctx))
	assert.Equal(t, 1, sig.available, "dos pings exitosos emiten una sola señal")

	pinger.err = errors.New("connection refused")
	assert.False(t, p.Probe(ctx))
	assert.False(t, p.Probe(ctx))
	assert.Equal(t, 1, sig.lost)
}
