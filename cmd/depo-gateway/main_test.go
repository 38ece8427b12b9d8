package main

import (
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/hearsaylabs/depogateway/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ListenAddr:    ":9999",
		WebhookSecret: "whsec_test",
		MaxSkew:       5 * time.Minute,
		StubWindow:    5 * time.Minute,
		LLMTimeout:    time.Minute,
		PresignTTL:    time.Hour,
		PartSize:      10 << 20,
		SQLitePath:    filepath.Join(t.TempDir(), "depo.sqlite"),
	}
}

func TestNewServer(t *testing.T) {
	srv, err := newServer(testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Addr != ":9999" {
		t.Fatalf("expected addr %s, got %s", ":9999", srv.Addr)
	}
	if srv.Handler == nil {
		t.Fatalf("expected handler to be set")
	}
}

func TestNewServerWithScorer(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAIAPIKey = "sk-test"
	cfg.LLMModel = "gpt-5-mini"

	srv, err := newServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if srv.Handler == nil {
		t.Fatalf("expected handler")
	}
}

func TestRun(t *testing.T) {
	t.Setenv("DEPO_WEBHOOK_SECRET", "whsec_test")

	called := false
	factory := func(cfg config.Config) (*http.Server, error) {
		called = true
		if cfg.WebhookSecret != "whsec_test" {
			t.Fatalf("config not loaded: %+v", cfg)
		}
		return &http.Server{Addr: cfg.ListenAddr}, nil
	}
	listen := func(_ *http.Server) error { return http.ErrServerClosed }

	if err := run(nil, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected server factory to be called")
	}
}

func TestRunRequiresSecret(t *testing.T) {
	t.Setenv("DEPO_WEBHOOK_SECRET", "")

	factory := func(cfg config.Config) (*http.Server, error) {
		t.Fatalf("factory must not run without config")
		return nil, nil
	}
	if err := run(nil, func(*http.Server) error { return nil }, factory); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestRunListenError(t *testing.T) {
	t.Setenv("DEPO_WEBHOOK_SECRET", "whsec_test")

	listenErr := errors.New("listen failed")
	factory := func(cfg config.Config) (*http.Server, error) {
		return &http.Server{Addr: ":8080"}, nil
	}
	if err := run(nil, func(*http.Server) error { return listenErr }, factory); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	if err := listenAndServe(&http.Server{Addr: "127.0.0.1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainNoError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func([]string, listenFn, serverFactory) error { return nil }

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if called {
		t.Fatalf("unexpected fatal call")
	}
}

func TestMainError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func([]string, listenFn, serverFactory) error { return errors.New("boom") }

	called := false
	fatalf = func(string, ...any) {
		called = true
	}

	main()
	if !called {
		t.Fatalf("expected fatal call")
	}
}
