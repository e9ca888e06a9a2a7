package cli

import (
	"context"
	"io"
	"testing"

	"trendai/internal/config"
	"trendai/internal/log"
)

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	if logger == nil {
		t.Fatal("expected a logger")
	}
	if !logger.Enabled(context.Background(), log.ParseLevel("debug")) {
		t.Fatal("debug level should be enabled")
	}
}

func TestOptionalDependenciesDisabled(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})
	cfg := &config.Config{}

	if rc := InitReportCache(context.Background(), logger, cfg); rc != nil {
		t.Fatal("report cache must be nil without REDIS_URL")
	}
	if c := InitAMQP(logger, cfg, false); c != nil {
		t.Fatal("amqp client must be nil without AMQP_URL")
	}
}

func TestInitMetrics(t *testing.T) {
	m := InitMetrics()
	if m == nil || m.Handler() == nil {
		t.Fatal("expected metrics with a handler")
	}
}
