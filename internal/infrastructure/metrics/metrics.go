package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/almacen-sync/internal/application/connectivity"
	"github.com/jhoicas/almacen-sync/internal/application/ledger"
	"github.com/jhoicas/almacen-sync/internal/application/syncqueue"
)

var (
	_ syncqueue.Recorder    = (*Collector)(nil)
	_ connectivity.Recorder = (*Collector)(nil)
	_ ledger.Recorder       = (*Collector)(nil)
)

var connectivityStates = []string{
	string(connectivity.StateOnline),
	string(connectivity.StateOffline),
	string(connectivity.StateSyncing),
}

// Collector métricas Prometheus del ledger, la cola y la conectividad, en un registro propio.
type Collector struct {
	registry *prometheus.Registry

	movements     *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	replayed      *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	drainDuration prometheus.Histogram
	drainResults  *prometheus.CounterVec
	state         *prometheus.GaugeVec
}

// NewCollector crea y registra las métricas.
func NewCollector(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.movements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_movements_total",
			Help:      "Movimientos agregados al ledger",
		},
		[]string{"kind", "status"},
	)
	c.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rejections_total",
			Help:      "Movimientos rechazados de forma síncrona",
		},
		[]string{"reason"},
	)
	c.replayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_replayed_total",
			Help:      "Operaciones de la cola reproducidas contra el remoto",
		},
		[]string{"collection", "outcome"},
	)
	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_queue_depth",
		Help:      "Operaciones pendientes o con error",
	})
	c.drainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_drain_duration_seconds",
		Help:      "Duración de cada drenado de la cola",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	c.drainResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_drain_operations_total",
			Help:      "Resultado agregado de los drenados",
		},
		[]string{"result"},
	)
	c.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_state",
			Help:      "1 para el estado de conectividad actual",
		},
		[]string{"state"},
	)
	c.registry.MustRegister(
		c.movements, c.rejections, c.replayed, c.queueDepth, c.drainDuration, c.drainResults, c.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry registro de las métricas (tests y exposición).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler expone las métricas en formato Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) MovementRecorded(kind, status string) {
	c.movements.WithLabelValues(kind, status).Inc()
}

func (c *Collector) MovementRejected(reason string) {
	c.rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) OperationReplayed(collection, outcome string) {
	c.replayed.WithLabelValues(collection, outcome).Inc()
}

func (c *Collector) DrainFinished(succeeded, failed int, elapsed time.Duration) {
	c.drainDuration.Observe(elapsed.Seconds())
	c.drainResults.WithLabelValues("succeeded").Add(float64(succeeded))
	c.drainResults.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) QueueDepth(n int64) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) StateChanged(state string) {
	for _, s := range connectivityStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(s).Set(v)
	}
}
