package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/simcheck/simcheck/internal/broker"
	"github.com/simcheck/simcheck/internal/config"
	"github.com/simcheck/simcheck/internal/logging"
	"github.com/simcheck/simcheck/internal/middleware"
	"github.com/simcheck/simcheck/internal/routes"
)

func TestNewServesBanner(t *testing.T) {
	sp := broker.NewStaticProvider("http://localhost:4000")
	srv, err := New(routes.Deps{
		Cfg:      config.Config{AppName: "simcheck", AppEnv: "development", RequestTimeout: 20 * time.Second},
		Logger:   logging.Discard(),
		Provider: sp,
		Static:   sp,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	resp, err := srv.App().Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Fatal("expected request id on every response")
	}
}

func TestNewRejectsMissingProvider(t *testing.T) {
	if _, err := New(routes.Deps{Cfg: config.Config{AppEnv: "development"}, Logger: logging.Discard()}); err == nil {
		t.Fatal("expected error without provider")
	}
}
