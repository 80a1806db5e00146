package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/cart/internal/cart"
	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// CartMetrics содержит метрики корзин и их сессий.
type CartMetrics struct {
	// Счётчик операций по типу
	operations *prometheus.CounterVec
	// Размер корзины после операции
	cartLines prometheus.Histogram

	// Жизненный цикл сессий
	sessionsMounted   prometheus.Counter
	sessionsUnmounted *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewCartMetrics создаёт метрики в DefaultRegisterer.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer создаёт метрики в заданном registerer;
// повторная регистрация возвращает уже существующие коллекторы.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Total number of cart mutations grouped by operation",
		}, []string{"op"}),
		cartLines: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "cart_lines",
			Help:    "Number of distinct lines in a cart after a mutation",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		sessionsMounted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_sessions_mounted_total",
			Help: "Total number of cart sessions established",
		}),
		sessionsUnmounted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_sessions_unmounted_total",
			Help: "Total number of cart sessions destroyed grouped by reason",
		}, []string{"reason"}),
		activeSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_active_sessions",
			Help: "Number of currently mounted cart sessions",
		}),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, name string, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %q: %v", name, err))
	}
	return collector
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register[prometheus.Counter](registerer, opts.Name, prometheus.NewCounter(opts))
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return register(registerer, opts.Name, prometheus.NewCounterVec(opts, labels))
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register[prometheus.Gauge](registerer, opts.Name, prometheus.NewGauge(opts))
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register[prometheus.Histogram](registerer, opts.Name, prometheus.NewHistogram(opts))
}

// ObserveChange учитывает мутацию корзины; подходит как наблюдатель сессии.
// CartOpClose не считается операцией: его учитывает RecordSessionUnmounted.
func (m *CartMetrics) ObserveChange(_ string, change cart.Change) {
	if change.Op == "" || change.Op == domain.CartOpClose {
		return
	}
	m.operations.WithLabelValues(string(change.Op)).Inc()
	m.cartLines.Observe(float64(change.Snapshot.Len()))
}

// RecordSessionMounted учитывает новую сессию.
func (m *CartMetrics) RecordSessionMounted() {
	m.sessionsMounted.Inc()
	m.activeSessions.Inc()
}

// RecordSessionUnmounted учитывает уничтоженную сессию (reason: closed, expired).
func (m *CartMetrics) RecordSessionUnmounted(reason string) {
	m.sessionsUnmounted.WithLabelValues(reason).Inc()
	m.activeSessions.Dec()
}
