package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/curatorlabs/marketd/internal/bank"
	"github.com/curatorlabs/marketd/internal/ledger"
	"github.com/curatorlabs/marketd/internal/server"
	"github.com/curatorlabs/marketd/internal/server/handler"
	"github.com/curatorlabs/marketd/internal/server/ws"
	"github.com/curatorlabs/marketd/internal/token"
)

// ServeMode runs the full API server over the Postgres-backed registry with
// the Redis cache, pub/sub bus, and rate limiter attached.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.runServer(ctx, deps)
}

// StandaloneMode runs the API server entirely in-process: in-memory stores,
// no Redis, no live event stream. Intended for development and demos.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")
	return a.runServer(ctx, deps)
}

// runServer assembles the ledger core and the HTTP server from the wired
// dependencies and blocks until the context is cancelled.
func (a *App) runServer(ctx context.Context, deps *Dependencies) error {
	singleBook := token.NewSingleCopyBook()
	multiBook := token.NewMultiCopyBook()
	values := bank.New()

	ldg := ledger.New(ledger.Config{
		Escrow: deps.Escrow,
		Items:  deps.ItemStore,
		Events: deps.EventStore,
		Values: values,
		Single: singleBook,
		Multi:  multiBook,
		Cache:  deps.ItemCache,
		Bus:    deps.SignalBus,
		Locks:  deps.LockManager,
		Signer: deps.Signer,
		Logger: a.logger,
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Listings:  handler.NewListingHandler(ldg, a.logger),
		Purchases: handler.NewPurchaseHandler(ldg, a.logger),
		Queries:   handler.NewQueryHandler(ldg, a.logger),
		Assets:    handler.NewAssetHandler(singleBook, multiBook, values, a.logger),
	}

	// The live event stream needs the pub/sub bus, so standalone mode runs
	// without /ws.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSec) * time.Second,
	}, handlers, deps.RateLimiter, hub, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ArchiveMode uploads journal events older than the retention window to the
// blob store as JSONL, once at startup and then every 24 hours.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	runOnce := func() {
		cutoff := time.Now().UTC().Add(-retention)
		count, err := deps.Archiver.ArchiveEvents(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive run failed",
				slog.Time("cutoff", cutoff),
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "archive run complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("events", count),
		)
	}

	runOnce()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}
