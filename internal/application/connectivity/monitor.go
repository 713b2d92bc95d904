package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
	"github.com/jhoicas/almacen-sync/internal/domain"
)

// State estado de conectividad.
type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
	StateSyncing State = "syncing"
)

// Event señal que consume la máquina de estados.
type Event int

const (
	EventNetworkAvailable Event = iota + 1
	EventNetworkLost
	EventSyncRequested
	EventTick
)

func (e Event) String() string {
	switch e {
	case EventNetworkAvailable:
		return "network_available"
	case EventNetworkLost:
		return "network_lost"
	case EventSyncRequested:
		return "sync_requested"
	case EventTick:
		return "tick"
	}
	return "unknown"
}

// Drainer vacía la cola de sincronización.
type Drainer interface {
	Drain(ctx context.Context) (syncqueue.Result, error)
}

// Recorder métricas de conectividad.
type Recorder interface {
	StateChanged(state string)
}

type noopRecorder struct{}

func (noopRecorder) StateChanged(string) {}

// Options configuración del monitor.
type Options struct {
	Interval      time.Duration // período del drenado automático mientras hay conexión
	InitialOnline bool
	NewTicker     TickerFactory
	Logger        zerolog.Logger
	Metrics       Recorder
}

// Monitor máquina de estados {online, offline, syncing} que dispara el drenado de la cola
// al recuperar la red, por pedido manual y periódicamente mientras hay conexión.
type Monitor struct {
	drainer   Drainer
	interval  time.Duration
	newTicker TickerFactory
	log       zerolog.Logger
	metrics   Recorder
	events    chan Event

	mu        sync.Mutex
	networkUp bool
	syncing   int
	state     State
	listeners []func(State)
}

// DefaultInterval drenado periódico por defecto.
const DefaultInterval = 5 * time.Minute

// NewMonitor construye el monitor.
func NewMonitor(drainer Drainer, opts Options) *Monitor {
	m := &Monitor{
		drainer:   drainer,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		events:    make(chan Event, 16),
		networkUp: opts.InitialOnline,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.newTicker == nil {
		m.newTicker = NewTimeTicker
	}
	if m.metrics == nil {
		m.metrics = noopRecorder{}
	}
	m.state = m.deriveLocked()
	m.metrics.StateChanged(string(m.state))
	return m
}

// OnChange registra un observador de transiciones. Se invoca sin locks tomados.
func (m *Monitor) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// NetworkAvailable señal de red disponible (no bloquea).
func (m *Monitor) NetworkAvailable() { m.signal(EventNetworkAvailable) }

// NetworkLost señal de red perdida (no bloquea).
func (m *Monitor) NetworkLost() { m.signal(EventNetworkLost) }

// RequestSync pedido manual de sincronización (no bloquea).
func (m *Monitor) RequestSync() { m.signal(EventSyncRequested) }

func (m *Monitor) signal(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Warn().Str("event", ev.String()).Msg("cola de eventos llena, señal descartada")
	}
}

// Run procesa señales y el temporizador hasta que ctx termine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.newTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.Handle(ctx, ev)
		case <-ticker.C():
			m.Handle(ctx, EventTick)
		}
	}
}

// Handle aplica un evento de forma síncrona.
func (m *Monitor) Handle(ctx context.Context, ev Event) {
	switch ev {
	case EventNetworkAvailable:
		m.mu.Lock()
		wasUp := m.networkUp
		m.networkUp = true
		m.mu.Unlock()
		m.publish()
		if !wasUp {
			m.log.Info().Msg("conexión recuperada")
		}
		m.trySync(ctx, ev)
	case EventNetworkLost:
		m.mu.Lock()
		wasUp := m.networkUp
		m.networkUp = false
		m.mu.Unlock()
		m.publish()
		if wasUp {
			m.log.Warn().Msg("conexión perdida, operando sin conexión")
		}
	case EventSyncRequested, EventTick:
		m.trySync(ctx, ev)
	}
}

func (m *Monitor) trySync(ctx context.Context, ev Event) {
	if _, err := m.Sync(ctx); err != nil && !errors.Is(err, domain.ErrOffline) {
		m.log.Error().Err(err).Str("trigger", ev.String()).Msg("falló la sincronización")
	}
}

// Sync drena la cola si hay conexión; sin conexión devuelve domain.ErrOffline sin drenar.
// Al terminar vuelve a online (u offline si la red cayó mientras tanto) aunque haya fallos
// individuales: esos quedan en la cola para el próximo ciclo.
func (m *Monitor) Sync(ctx context.Context) (syncqueue.Result, error) {
	m.mu.Lock()
	if !m.networkUp {
		m.mu.Unlock()
		return syncqueue.Result{}, domain.ErrOffline
	}
	m.syncing++
	m.mu.Unlock()
	m.publish()

	res, err := m.drainer.Drain(ctx)

	m.mu.Lock()
	m.syncing--
	m.mu.Unlock()
	m.publish()
	return res, err
}

// IsOnline indica si la red está disponible (también mientras sincroniza).
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkUp
}

// State estado actual.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) deriveLocked() State {
	switch {
	case m.syncing > 0:
		return StateSyncing
	case m.networkUp:
		return StateOnline
	default:
		return StateOffline
	}
}

// publish recalcula el estado y notifica si cambió.
func (m *Monitor) publish() {
	m.mu.Lock()
	next := m.deriveLocked()
	if next == m.state {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("transición de conectividad")
	m.metrics.StateChanged(string(next))
	for _, fn := range listeners {
		fn(next)
	}
}
