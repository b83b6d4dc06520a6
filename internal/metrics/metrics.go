// Package metrics exposes raffle activity as Prometheus metrics. Counters are
// fed from the event bus; gauges read the live raffle on every scrape.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"raffle/internal/raffle"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raffle"

// Source is the read side of the raffle sampled by the gauges.
type Source interface {
	NumberOfPlayers() int
	Pot() *big.Int
	State() raffle.State
}

type Metrics struct {
	registry *prometheus.Registry

	entries prometheus.Counter
	entered prometheus.Counter
	draws   *prometheus.CounterVec
	prizes  prometheus.Counter
	perDraw prometheus.Histogram

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New(source Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Total number of accepted entries",
		}),
		entered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entered_amount_total",
			Help:      "Sum of accepted payments in the smallest currency unit",
		}),
		draws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_total",
			Help:      "Draws by outcome",
		}, []string{"outcome"}),
		prizes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prizes_paid_total",
			Help:      "Sum of prizes paid in the smallest currency unit",
		}),
		perDraw: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "players_per_draw",
			Help:      "Number of players in each settled draw",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "path"}),
	}

	players := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "players",
		Help:      "Players in the current round",
	}, func() float64 { return float64(source.NumberOfPlayers()) })

	pot := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pot",
		Help:      "Current pot in the smallest currency unit",
	}, func() float64 { return toFloat(source.Pot()) })

	calculating := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calculating",
		Help:      "1 while a draw is awaiting randomness",
	}, func() float64 {
		if source.State() == raffle.Calculating {
			return 1
		}
		return 0
	})

	m.registry.MustRegister(
		m.entries, m.entered, m.draws, m.prizes, m.perDraw,
		m.requests, m.requestDuration,
		players, pot, calculating,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handle updates the counters for one raffle event. It is meant to be
// subscribed to every topic of the event bus.
func (m *Metrics) Handle(event raffle.Event) {
	switch e := event.(type) {
	case raffle.Entered:
		m.entries.Inc()
		m.entered.Add(toFloat(e.Amount))
	case raffle.DrawRequested:
		m.draws.WithLabelValues("requested").Inc()
	case raffle.WinnerPicked:
		m.draws.WithLabelValues("settled").Inc()
		m.prizes.Add(toFloat(e.Prize))
		m.perDraw.Observe(float64(e.Players))
	case raffle.DrawExpired:
		m.draws.WithLabelValues("expired").Inc()
	}
}

// Middleware records request counts and latency. Paths are labelled by route
// template so per-address routes do not explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
