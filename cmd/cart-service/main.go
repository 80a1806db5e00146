package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/app"
	"github.com/vladislavdragonenkov/cart/internal/version"
)

const (
	envGRPCAddr               = "CART_GRPC_ADDR"
	envMetricsAddr            = "CART_METRICS_ADDR"
	envSessionIdleTTL         = "CART_SESSION_IDLE_TTL"
	envSessionCleanupInterval = "CART_SESSION_CLEANUP_INTERVAL"
	envSessionSoftLimit       = "CART_SESSION_SOFT_LIMIT"
	envEventBuffer            = "CART_EVENT_BUFFER"
	envKafkaBrokers           = "KAFKA_BROKERS"
	envKafkaTopic             = "CART_KAFKA_TOPIC"
	envLogLevel               = "CART_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(parseLogLevel(lookup))
}

func parseLogLevel(lookup envLookup) log.Level {
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// readConfigFromEnv формирует конфигурацию из окружения.
// Некорректные значения игнорируются с предупреждением, остаётся значение по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	if v, ok := lookup(envGRPCAddr); ok && strings.TrimSpace(v) != "" {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envMetricsAddr); ok && strings.TrimSpace(v) != "" {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(v)
	}
	if v, ok := lookup(envKafkaTopic); ok && strings.TrimSpace(v) != "" {
		cfg.KafkaTopic = strings.TrimSpace(v)
	}

	positive := func(d time.Duration) bool { return d > 0 }
	if v, ok := lookup(envSessionIdleTTL); ok {
		if d, err := parseDuration(v, positive, "must be > 0"); err != nil {
			warn(envSessionIdleTTL, v, err)
		} else {
			cfg.SessionIdleTTL = d
		}
	}
	if v, ok := lookup(envSessionCleanupInterval); ok {
		if d, err := parseDuration(v, positive, "must be > 0"); err != nil {
			warn(envSessionCleanupInterval, v, err)
		} else {
			cfg.SessionCleanupInterval = d
		}
	}
	if v, ok := lookup(envSessionSoftLimit); ok {
		if n, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0"); err != nil {
			warn(envSessionSoftLimit, v, err)
		} else {
			cfg.SessionSoftLimit = n
		}
	}
	if v, ok := lookup(envEventBuffer); ok {
		if n, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envEventBuffer, v, err)
		} else {
			cfg.EventBufferSize = n
		}
	}

	return cfg, warnings
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, errors.New(rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"kafka":        cfg.KafkaBrokers != "",
		"version":      version.String(),
	}).Info("запускаем CartService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("CartService остановлен")
}
