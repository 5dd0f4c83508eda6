package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexjurkiewicz/crawl-live-games-api/internal/aggregate"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/config"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/httpapi"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/lobby"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/probe"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/types"
	"github.com/alexjurkiewicz/crawl-live-games-api/internal/ws"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Follow every configured server and serve the aggregate over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Listen, err)
			}

			wsOpts := ws.DefaultOptions()
			wsOpts.ReceiveTimeout = cfg.ReceiveTimeout
			return run(ctx, cfg, ws.NewDialer(wsOpts, log), ln, log)
		},
	}
}

// run follows every server, serves HTTP on ln and blocks until ctx ends or
// the HTTP server fails. A clean shutdown returns nil.
func run(ctx context.Context, cfg *config.Config, dialer types.Dialer, ln net.Listener, log *zap.Logger) error {
	store := aggregate.NewStore(context.Background(), log)
	defer store.Close()

	backoff := lobby.Backoff{Initial: cfg.Backoff.Initial, Max: cfg.Backoff.Max}
	sups := make([]*lobby.Supervisor, 0, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		sups = append(sups, lobby.NewSupervisor(srv, dialer, store, backoff, log))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sup := range sups {
		g.Go(func() error { return sup.Run(gctx) })
	}
	g.Go(func() error { return reportStatus(gctx, store, cfg.StatusInterval, log) })

	httpSrv := &http.Server{
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Store:  store,
			Prober: probe.NewProber(cfg.Servers, dialer, cfg.ProbeTimeout, log),
			Log:    log,
			Status: func() map[string]string {
				out := make(map[string]string, len(sups))
				for _, sup := range sups {
					out[sup.Server().Name] = sup.State().String()
				}
				return out
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("servers", len(sups)))
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	var shutdownErr error
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		shutdownErr = httpSrv.Shutdown(sctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	err = multierr.Append(err, shutdownErr)
	if err == nil {
		log.Info("stopped")
	}
	return err
}

// reportStatus logs per-server game counts whenever they change.
func reportStatus(ctx context.Context, store *aggregate.Store, every time.Duration, log *zap.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var last map[string]int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		counts, err := store.Counts(ctx)
		if err != nil {
			continue
		}
		if maps.Equal(counts, last) {
			continue
		}
		last = counts

		total := 0
		fields := make([]zap.Field, 0, len(counts)+1)
		for name, n := range counts {
			total += n
			fields = append(fields, zap.Int(name, n))
		}
		log.Info("games", append(fields, zap.Int("total", total))...)
	}
}
