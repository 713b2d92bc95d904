package connectivity

import "time"

// Ticker fuente de ticks inyectable.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory construye un Ticker con el período dado.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

// NewTimeTicker Ticker respaldado por time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }

// ManualTicker Ticker controlado a mano (tests y disparos externos).
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker construye un ticker que solo avanza con Tick.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// Tick emite un tick y bloquea hasta que el consumidor lo reciba.
func (t *ManualTicker) Tick(now time.Time) {
	t.ch <- now
}

func (t *ManualTicker) C() <-chan time.Time { return t.ch }
func (t *ManualTicker) Stop()               {}

// Factory devuelve una TickerFactory que siempre entrega este ticker.
func (t *ManualTicker) Factory() TickerFactory {
	return func(time.Duration) Ticker { return t }
}
