package connectivity

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pinger comprueba la disponibilidad del remoto.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Signaler recibe las transiciones detectadas por el prober.
type Signaler interface {
	IsOnline() bool
	NetworkAvailable()
	NetworkLost()
}

// Prober sondea el remoto periódicamente y emite señales de red disponible/perdida.
type Prober struct {
	pinger    Pinger
	signaler  Signaler
	interval  time.Duration
	timeout   time.Duration
	newTicker TickerFactory
	log       zerolog.Logger
}

// NewProber construye el prober. Con newTicker nil usa time.Ticker.
func NewProber(pinger Pinger, signaler Signaler, interval, timeout time.Duration, newTicker TickerFactory, log zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	return &Prober{pinger: pinger, signaler: signaler, interval: interval, timeout: timeout, newTicker: newTicker, log: log}
}

// Probe hace un ping y emite una señal solo si el resultado contradice el estado actual.
func (p *Prober) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.pinger.Ping(pctx)
	up := err == nil
	switch {
	case up && !p.signaler.IsOnline():
		p.signaler.NetworkAvailable()
	case !up && p.signaler.IsOnline():
		p.log.Debug().Err(err).Msg("ping al remoto falló")
		p.signaler.NetworkLost()
	}
	return up
}

// Run sondea de inmediato y luego en cada tick hasta que ctx termine.
func (p *Prober) Run(ctx context.Context) {
	ticker := p.newTicker(p.interval)
	defer ticker.Stop()
	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.Probe(ctx)
		}
	}
}
