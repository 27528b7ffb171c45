package config

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// PostgresSQLX wraps PostgresSQLDB in a *sqlx.DB.
func PostgresSQLX(ctx context.Context, cfg PostgresConfig) (*sqlx.DB, error) {
	db, err := PostgresSQLDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return sqlx.NewDb(db, "postgres"), nil
}
