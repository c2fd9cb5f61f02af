package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const slowQueryThreshold = 500 * time.Millisecond

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (p PoolConfig) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

// Open connects through the pgx stdlib driver and pings the server. When log
// is set, every statement is reported at debug level and slow or failing
// ones at warn.
func Open(ctx context.Context, databaseURL string, pool PoolConfig, log *slog.Logger) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}
	pool.apply(sqlDB)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if log != nil {
		db.AddQueryHook(queryLogger{log: log.With(slog.String("component", "postgres"))})
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

type queryLogger struct {
	log *slog.Logger
}

func (h queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	attrs := []any{
		slog.String("operation", event.Operation()),
		slog.Duration("elapsed", elapsed),
	}
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.WarnContext(ctx, "query failed", append(attrs, slog.Any("err", event.Err))...)
	case elapsed > slowQueryThreshold:
		h.log.WarnContext(ctx, "slow query", append(attrs, slog.String("query", event.Query))...)
	default:
		h.log.DebugContext(ctx, "query", append(attrs, slog.String("query", event.Query))...)
	}
}
