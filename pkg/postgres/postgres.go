package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type Config struct {
	URL             string `envconfig:"DATABASE_URL" default:"postgres://localhost:5432/agentbuilder?sslmode=disable"`
	MaxOpenConns    int    `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"10"`
	ConnMaxLifetime int    `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"300"`
}

// New opens a lib/pq connection pool and verifies it with a ping.
func (c *Config) New(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
