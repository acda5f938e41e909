package persistence

import (
	"testing"
	"time"

	"github.com/spec-kit/ticket-triage/internal/config"
)

func TestPoolConfig(t *testing.T) {
	if _, err := poolConfig(config.PostgresConfig{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if _, err := poolConfig(config.PostgresConfig{DSN: "://bad"}); err == nil {
		t.Fatal("expected error for unparsable DSN")
	}

	cfg, err := poolConfig(config.PostgresConfig{
		DSN:            "postgres://triage:secret@db:5432/triage?sslmode=disable",
		MaxConns:       12,
		MinConns:       2,
		ConnMaxIdleSec: 30,
	})
	if err != nil {
		t.Fatalf("poolConfig() error = %v", err)
	}
	if cfg.MaxConns != 12 || cfg.MinConns != 2 || cfg.MaxConnIdleTime != 30*time.Second {
		t.Fatalf("unexpected pool config %+v", cfg)
	}
	if cfg.ConnConfig.Host != "db" || cfg.ConnConfig.Database != "triage" {
		t.Fatalf("unexpected conn config host=%s db=%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	}
}
