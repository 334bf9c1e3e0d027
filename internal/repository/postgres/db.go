// Package postgres implements the service repositories on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/crm-automation/internal/service/assignment"
	"github.com/ignite/crm-automation/internal/service/campaign"
	"github.com/ignite/crm-automation/internal/service/scoring"
	"github.com/ignite/crm-automation/internal/service/segment"
	"github.com/ignite/crm-automation/internal/service/suppression"
)

// Schema is the DDL for every table the repositories touch.
//
//go:embed schema.sql
var Schema string

// PoolOptions sizes the connection pool.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres, sizes the pool and verifies the connection.
func Open(ctx context.Context, dsn string, pool PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ApplySchema runs Schema inside one transaction.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}

// Store bundles the repositories that share one database. It satisfies
// segment.Repository, scoring.Repository, assignment.Repository and
// campaign.Repository.
type Store struct {
	*ContactRepo
	*ListRepo
	*RuleRepo
	*CampaignRepo
}

var (
	_ segment.Repository     = (*Store)(nil)
	_ scoring.Repository     = (*Store)(nil)
	_ assignment.Repository  = (*Store)(nil)
	_ campaign.Repository    = (*Store)(nil)
	_ suppression.Repository = (*SuppressionRepo)(nil)
)

// NewStore creates a Store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		ContactRepo:  NewContactRepo(db),
		ListRepo:     NewListRepo(db),
		RuleRepo:     NewRuleRepo(db),
		CampaignRepo: NewCampaignRepo(db),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
