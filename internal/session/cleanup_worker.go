package session

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCleanupInterval = time.Minute
	defaultIdleTTL         = 30 * time.Minute
)

var (
	sessionCleanupRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_session_cleanup_runs_total",
		Help: "Total number of idle cart session cleanup runs.",
	})
	sessionCleanupExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_session_cleanup_expired_total",
		Help: "Total number of cart sessions expired by the cleanup worker.",
	})
	sessionCleanupLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_session_cleanup_last_expired",
		Help: "Number of sessions expired during the last cleanup run.",
	})
)

// CleanupOptions задаёт параметры воркера очистки простаивающих сессий.
type CleanupOptions struct {
	Logger   *log.Entry
	Interval time.Duration
	IdleTTL  time.Duration
	Now      func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithCleanupLogger задаёт logger для воркера.
func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithIdleTTL задаёт время простоя, после которого сессия уничтожается.
func WithIdleTTL(ttl time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.IdleTTL = ttl
	}
}

// WithCleanupClock подменяет источник времени.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Now = now
	}
}

// CleanupWorker периодически уничтожает сессии без обращений дольше IdleTTL.
type CleanupWorker struct {
	registry *Registry
	logger   *log.Entry
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time
}

// NewCleanupWorker создаёт воркер очистки сессий.
func NewCleanupWorker(registry *Registry, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval: defaultCleanupInterval,
		IdleTTL:  defaultIdleTTL,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-session-cleanup-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &CleanupWorker{
		registry: registry,
		logger:   logger,
		interval: opts.Interval,
		idleTTL:  opts.IdleTTL,
		now:      opts.Now,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.registry == nil {
		w.logger.Warn("cart session cleanup worker is disabled: registry is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Cleanup()
		}
	}
}

// Cleanup выполняет один цикл очистки и возвращает число уничтоженных сессий.
func (w *CleanupWorker) Cleanup() int {
	expired := w.registry.ExpireIdle(w.now().Add(-w.idleTTL))

	sessionCleanupRunsTotal.Inc()
	sessionCleanupLastExpired.Set(float64(expired))
	if expired > 0 {
		sessionCleanupExpiredTotal.Add(float64(expired))
		w.logger.WithFields(log.Fields{
			"expired":   expired,
			"remaining": w.registry.Count(),
		}).Info("idle cart sessions expired")
	}
	return expired
}
