package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens a lib/pq pool and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string, maxOpen int, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func ConnectPostgresWithRetry(ctx context.Context, dsn string, maxOpen int, timeout time.Duration, attempts int) (*sql.DB, error) {
	return retry(ctx, attempts, func() (*sql.DB, error) {
		return ConnectPostgres(ctx, dsn, maxOpen, timeout)
	})
}
