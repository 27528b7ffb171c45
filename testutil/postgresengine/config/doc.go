// Package config provides PostgreSQL database configuration for the postgresengine tests and the demo.
//
// This package contains factory functions for creating database connections
// using the supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB).
// The DSN is read from the environment, see PostgresConfig.
package config
