package app

import "time"

// Config описывает настройки запуска cart-service.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	// SessionIdleTTL: сессия без обращений дольше TTL уничтожается.
	SessionIdleTTL         time.Duration
	SessionCleanupInterval time.Duration
	// SessionSoftLimit: при превышении health переходит в degraded; 0 отключает.
	SessionSoftLimit int

	// KafkaBrokers: список брокеров через запятую; пустой список отключает события.
	KafkaBrokers    string
	KafkaTopic      string
	EventBufferSize int
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:               ":50051",
		MetricsAddr:            ":9090",
		SessionIdleTTL:         30 * time.Minute,
		SessionCleanupInterval: time.Minute,
		SessionSoftLimit:       10000,
		KafkaTopic:             "cart.events",
		EventBufferSize:        1024,
	}
}
