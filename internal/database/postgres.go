package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"cms-go/internal/database/migrations"
)

// NewPostgresDatabase connects to PostgreSQL through a pgx pool exposed as
// a *sql.DB.
func NewPostgresDatabase(ctx context.Context, dsn string) (*SQLDatabase, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return &SQLDatabase{
		db:      stdlib.OpenDBFromPool(pool),
		dialect: migrations.Postgres,
		release: pool.Close,
	}, nil
}
