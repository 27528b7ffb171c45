// Package adapters provide database adapter implementations for the SQL event logs.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgxpool.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, so the SQL log works with any supported connection type.
package adapters
