package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/curatorlabs/marketd/internal/blob/s3"
	"github.com/curatorlabs/marketd/internal/cache/redis"
	"github.com/curatorlabs/marketd/internal/config"
	"github.com/curatorlabs/marketd/internal/crypto"
	"github.com/curatorlabs/marketd/internal/domain"
	"github.com/curatorlabs/marketd/internal/store/memory"
	"github.com/curatorlabs/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores. Postgres-backed in serve and archive modes, in-memory in
	// standalone mode.
	ItemStore  domain.ItemStore
	EventStore domain.EventStore

	// Redis-backed infrastructure (serve mode only; nil otherwise).
	ItemCache   domain.ItemCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (archive mode only; nil otherwise).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Escrow identity.
	Signer *crypto.ReceiptSigner
	Escrow common.Address
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Escrow identity ---
	if cfg.Mode == "serve" || cfg.Mode == "standalone" {
		keyHex, err := crypto.ResolveEscrowKey(crypto.EscrowKeyConfig{
			RawPrivateKey: cfg.Escrow.PrivateKey,
			SealedKeyPath: cfg.Escrow.SealedKeyPath,
			KeyPassword:   cfg.Escrow.KeyPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: escrow key: %w", err)
		}
		signer, err := crypto.NewReceiptSigner(keyHex)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: receipt signer: %w", err)
		}
		deps.Signer = signer
		deps.Escrow = signer.Address()
		logger.InfoContext(ctx, "wire: escrow identity loaded",
			slog.String("escrow", deps.Escrow.Hex()),
		)
	}

	// --- Stores ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ItemStore = postgres.NewItemStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
	} else {
		deps.ItemStore = memory.NewItemStore()
		deps.EventStore = memory.NewEventStore()
	}

	// --- Redis ---
	if cfg.NeedsRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ItemCache = redis.NewItemCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.NeedsS3() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.EventStore)
	}

	return deps, cleanup, nil
}
