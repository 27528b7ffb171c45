// Package postgresengine provides a PostgreSQL implementation of eventstore.LogAdapter.
//
// The log is one table in which every row is an event, ordered by a BIGSERIAL sequence number.
// The package supports multiple database adapters (pgx, sql.DB, sqlx).
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - Duplicate event identifiers rejected by a UNIQUE constraint
//   - Configurable table names and SQL query logging
//   - CreateTable for bootstrapping the schema
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	log, _ := postgresengine.NewLogAdapterFromPGXPool(
//		db,
//		postgresengine.WithTableName("counter_events"),
//		postgresengine.WithLogger(slog.Default()),
//	)
//	_ = log.CreateTable(ctx)
//
//	store, _ := eventstore.NewStore(initial, log, parser, reducer)
//	_ = store.Initialize(ctx)
package postgresengine
