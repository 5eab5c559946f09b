package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/breezeauth/riskgate/internal/config"
)

// attemptLogTables must exist before the service can record anything
var attemptLogTables = []string{"otp_attempts", "user_analytics"}

// Postgres holds the attempt log database pool
type Postgres struct {
	*sql.DB
}

// NewPostgres opens the pool and waits up to five seconds for the first ping
func NewPostgres(cfg config.DatabaseConfig) (*Postgres, error) {
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid database settings: %w", err)
	}
	db := sql.OpenDB(connector)

	// append-heavy workload: keep a small idle pool
	maxConns := max(cfg.MaxConnections, 1)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(maxConns/4, 1))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{DB: db}, nil
}

// HealthCheck pings the pool and checks that migrations have created the
// attempt log tables
func (p *Postgres) HealthCheck(ctx context.Context) error {
	if err := p.PingContext(ctx); err != nil {
		return err
	}
	for _, table := range attemptLogTables {
		var exists bool
		if err := p.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("table %s is missing, run migrations", table)
		}
	}
	return nil
}
