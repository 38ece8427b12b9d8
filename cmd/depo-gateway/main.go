package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hearsaylabs/depogateway/internal/api"
	"github.com/hearsaylabs/depogateway/internal/auth"
	"github.com/hearsaylabs/depogateway/internal/config"
	"github.com/hearsaylabs/depogateway/internal/reconcile"
	"github.com/hearsaylabs/depogateway/internal/scoring"
	"github.com/hearsaylabs/depogateway/internal/store"
	"github.com/hearsaylabs/depogateway/internal/upload"
)

type listenFn func(*http.Server) error

type serverFactory func(cfg config.Config) (*http.Server, error)

var (
	runFn  = run
	fatalf = log.Fatalf
)

func main() {
	if err := runFn(os.Args[1:], listenAndServe, newServer); err != nil {
		fatalf("depo-gateway: %v", err)
	}
}

func run(args []string, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("depo-gateway", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	srv, err := factory(cfg)
	if err != nil {
		return err
	}

	slog.Info("depo-gateway listening", "addr", srv.Addr)
	if err := listen(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(srv *http.Server) error {
	return srv.ListenAndServe()
}

func newServer(cfg config.Config) (*http.Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	st, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	var scorer reconcile.Scorer
	if cfg.OpenAIAPIKey != "" {
		client, err := scoring.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
		if err != nil {
			return nil, err
		}
		scorer = client
	} else {
		logger.Warn("no LLM credential configured, sessions will be stored unscored")
	}

	var uploader api.Uploader
	if cfg.S3Bucket != "" {
		coordinator, err := upload.NewS3Coordinator(context.Background(), cfg.S3Region, cfg.S3Bucket, cfg.PresignTTL)
		if err != nil {
			return nil, err
		}
		uploader = coordinator
	} else {
		logger.Warn("no recording bucket configured, upload endpoints disabled")
	}

	reconciler := reconcile.New(st, scorer, cfg.WebhookSecret, logger)
	reconciler.MaxSkew = cfg.MaxSkew
	reconciler.StubWindow = cfg.StubWindow

	h := &api.Handler{
		Auth:       auth.NewAuthenticatorFromEnv(),
		Reconciler: reconciler,
		Uploads:    uploader,
		Store:      st,
		Log:        logger,
		StubWindow: cfg.StubWindow,
		PartSize:   cfg.PartSize,
	}

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
