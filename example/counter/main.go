// Command counter replays a counter from an event log, saves a few events, and prints the state.
//
// The backend is chosen with COUNTER_BACKEND (jsonstream, sqlite or postgres).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/jsonstream"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/postgresengine"
	"github.com/AntonStoeckl/replaying-eventstore-go/eventstore/sqliteengine"
)

var errChangedMyMind = errors.New("changed my mind")

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err = run(context.Background(), cfg, logger); err != nil {
		logger.Error("counter demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	log, closeLog, err := openLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	parser, err := newParser()
	if err != nil {
		return err
	}

	store, err := eventstore.NewStore(Counter{}, log, parser, reduce, eventstore.WithLogger(logger))
	if err != nil {
		return err
	}

	unsubscribe := store.Subscribe(func() {
		fmt.Printf("counter changed: %d\n", store.GetState().Count)
	})
	defer unsubscribe()

	if err = store.Initialize(ctx); err != nil {
		return err
	}

	fmt.Printf("replayed %d events, counter is %d\n", len(store.CommittedEvents()), store.GetState().Count)

	if err = save(ctx, store, Incremented{By: 1}); err != nil {
		return err
	}

	err = store.Transaction(ctx, func(_ context.Context, tx *eventstore.Tx[Counter, eventstore.Event]) error {
		for _, payload := range []eventstore.Payload{Incremented{By: 10}, Decremented{By: 4}} {
			if err := bufferIn(tx, payload); err != nil {
				return err
			}
		}

		return errChangedMyMind
	})
	if !errors.Is(err, eventstore.ErrTransactionRolledBack) {
		return fmt.Errorf("expected a rolled back transaction, got: %w", err)
	}

	fmt.Printf("after the rollback the counter is still %d\n", store.GetState().Count)

	err = store.Transaction(ctx, func(ctx context.Context, tx *eventstore.Tx[Counter, eventstore.Event]) error {
		for _, payload := range []eventstore.Payload{Incremented{By: 5}, Decremented{By: 2}} {
			if err := bufferIn(tx, payload); err != nil {
				return err
			}
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	fmt.Printf("counter is %d after %d events\n", store.GetState().Count, len(store.CommittedEvents()))

	return nil
}

func save(ctx context.Context, store *eventstore.Store[Counter, eventstore.Event], payload eventstore.Payload) error {
	event, err := eventstore.BuildEvent(payload, time.Now())
	if err != nil {
		return err
	}

	return store.SaveEvent(ctx, event)
}

func bufferIn(tx *eventstore.Tx[Counter, eventstore.Event], payload eventstore.Payload) error {
	event, err := eventstore.BuildEvent(payload, time.Now())
	if err != nil {
		return err
	}

	return tx.SaveEvent(event)
}

func openLog(ctx context.Context, cfg Config, logger *slog.Logger) (eventstore.LogAdapter[eventstore.Event], func(), error) {
	switch cfg.Backend {
	case BackendSQLite:
		log, err := sqliteengine.Open(ctx, cfg.Path, sqliteengine.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		return log, func() { _ = log.Close() }, nil

	case BackendPostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, err
		}

		log, err := postgresengine.NewLogAdapterFromPGXPool(pool, postgresengine.WithLogger(logger))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		if err = log.CreateTable(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}

		return log, pool.Close, nil

	default:
		options := []jsonstream.Option{jsonstream.WithLogger(logger)}
		if cfg.SyncWrites {
			options = append(options, jsonstream.WithSync())
		}

		log, err := jsonstream.New[eventstore.Event](cfg.Path, options...)
		if err != nil {
			return nil, nil, err
		}

		return log, func() {}, nil
	}
}
