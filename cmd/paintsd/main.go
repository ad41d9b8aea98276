// Command paintsd keeps a paint registry loaded from the cosmetics service
// and serves it over HTTP.
//
// With -user it runs once: it loads the registry, prints the user's paint as
// JSON and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/chatpaint/paints"
	"github.com/chatpaint/paints/pkg/config"
	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/eventapi"
	"github.com/chatpaint/paints/pkg/fetch"
	"github.com/chatpaint/paints/pkg/httpapi"
	"github.com/chatpaint/paints/pkg/imagestore"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/retry"
	"github.com/chatpaint/paints/pkg/snapshot"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configPath string
		user       string
		listen     string
		events     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file")
	flag.StringVar(&user, "user", "", "Load once, print this user's paint and exit")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	flag.BoolVar(&events, "events", false, "Follow the cosmetics event stream (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if listen != "" {
		cfg.HTTP.Listen = listen
	}
	if events {
		cfg.Events.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logData, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logData.Close()

	if user != "" {
		err = printUserPaint(ctx, cfg, logData, user, os.Stdout)
	} else {
		err = serve(ctx, cfg, logData)
	}
	if err != nil {
		logData.Error("paintsd stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logger.LogData, error) {
	build := logger.NewZerolog().WithLevel(cfg.Log.Level)
	if cfg.Log.Path != "" {
		build = build.FromPath(cfg.Log.Path)
	}
	return build.Make()
}

type app struct {
	registry *paints.Registry
	loader   *paints.Loader
}

func newApp(cfg *config.Config, log logger.Logger) *app {
	images := imagestore.New(cfg.Images.CacheSize, log)
	images.MaxBytes = cfg.Images.MaxBytes
	images.Timeout = cfg.API.Timeout
	images.SetHTTPClient(&http.Client{Timeout: cfg.API.Timeout})

	registry := paints.NewRegistry(paints.NewParser(images, log), log)

	fetcher := fetch.New(cfg.API.URL, log).SetTimeout(cfg.API.Timeout)
	fetcher.Retryer = cfg.Retryer()

	loader := paints.NewLoader(registry, fetcher, log)
	if cfg.Snapshot.Path != "" {
		loader.Snapshots = snapshot.New(cfg.Snapshot.Path)
	}

	return &app{registry: registry, loader: loader}
}

func printUserPaint(ctx context.Context, cfg *config.Config, log logger.Logger, user string, out io.Writer) error {
	a := newApp(cfg, log)

	if err := a.loader.Restore(ctx); err != nil {
		log.Warn("ignoring unusable cosmetics snapshot", "error", err)
	}
	if err := a.loader.Load(ctx); err != nil {
		if known, _ := a.registry.Len(); known == 0 {
			return err
		}
		log.Warn("using snapshot, fetch failed", "error", err)
	}

	paint, ok := a.registry.GetPaint(user)
	if !ok {
		return fmt.Errorf("user %s has no paint", user)
	}

	data, err := json.MarshalIndent(paint, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	a := newApp(cfg, log)

	loaded := a.loader.Initialize(ctx)
	go func() {
		if err := <-loaded; err != nil {
			log.Error("initial cosmetics load failed", "error", err)
		}
	}()

	if cfg.Events.Enabled {
		client := eventapi.New(cfg.Events.URL, cfg.Events.Channels, a.registry, log)
		connecting := make(chan struct{})
		go func() {
			defer close(connecting)
			followEvents(ctx, client, cfg.Retryer(), log)
		}()
		defer func() {
			<-connecting
			if client.State() == eventapi.StatePending {
				return
			}
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				log.Warn("failed to close event stream", "error", err)
			}
		}()
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if cfg.HTTP.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           httpapi.New(a.registry, a.loader, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("serving paints api", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	log.Info("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

// followEvents dials the event stream until the first connection succeeds.
// Later drops are handled by the client itself. The registry keeps serving
// while the stream is unavailable.
func followEvents(ctx context.Context, client *eventapi.Client, retryer retry.Retryer, log logger.Logger) {
	err := retry.Do(ctx, retryer, func(ctx context.Context) error {
		err := client.Connect(ctx)
		if errors.Is(err, constants.ErrAlreadyConnected) || errors.Is(err, constants.ErrNoBaseURL) {
			return retry.Permanent(err)
		}
		if err != nil {
			log.Warn("event stream unavailable", "error", err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		log.Error("giving up on event stream", "error", err)
	}
}
