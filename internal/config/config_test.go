package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workflow.StepRetries != 2 {
		t.Fatalf("expected 2 step retries by default, got %d", cfg.Workflow.StepRetries)
	}
	if cfg.Queue.Driver != QueueDriverMemory {
		t.Fatalf("expected memory queue driver by default, got %s", cfg.Queue.Driver)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %s", cfg.App.Addr())
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("app:\n  port: \"9000\"\nllm:\n  model: file-model\nworker:\n  concurrency: 8\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != "9000" {
		t.Fatalf("expected file port 9000, got %s", cfg.App.Port)
	}
	if cfg.LLM.Model != "env-model" {
		t.Fatalf("expected env to override model, got %s", cfg.LLM.Model)
	}
	if cfg.Worker.Concurrency != 8 {
		t.Fatalf("expected file concurrency 8, got %d", cfg.Worker.Concurrency)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Fatalf("expected default max tokens to survive overlay, got %d", cfg.LLM.MaxTokens)
	}
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid REDIS_DB")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "redis driver", mutate: func(c *Config) { c.Queue.Driver = QueueDriverRedis }},
		{name: "unknown driver", mutate: func(c *Config) { c.Queue.Driver = "kafka" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Workflow.StepRetries = -1 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Defaults()
	if got := cfg.Workflow.BaseBackoff(); got != 500*time.Millisecond {
		t.Fatalf("BaseBackoff() = %s", got)
	}
	if got := cfg.Worker.ResumeStaleAfter(); got != 5*time.Minute {
		t.Fatalf("ResumeStaleAfter() = %s", got)
	}
	if got := (LLMConfig{}).Timeout(); got != 30*time.Second {
		t.Fatalf("Timeout() fallback = %s", got)
	}
	if got := (AppConfig{}).RequestTimeout(); got != 0 {
		t.Fatalf("RequestTimeout() with zero seconds = %s", got)
	}
}
