package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyReportsFailingDependency(t *testing.T) {
	h := NewHealthHandler("svc", "v1", map[string]Pinger{
		"postgres": pingFunc(func(context.Context) error { return nil }),
		"redis":    pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		"skipped":  nil,
	})
	app := fiber.New()
	app.Get("/ready", h.Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(h.deps) != 2 {
		t.Fatalf("nil dependency should be skipped, got %d", len(h.deps))
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 7},
		{"3", 3},
		{"-1", 7},
		{"x", 7},
	}
	for _, tt := range tests {
		if got := parseInt(tt.in, 7); got != tt.want {
			t.Fatalf("parseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
