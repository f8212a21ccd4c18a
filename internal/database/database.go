package database

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// PoolConfig sizes the connection pool. PoolSize is the steady-state
// connection count; MaxOverflow allows extra connections under load.
type PoolConfig struct {
	URL            string
	PoolSize       int
	MaxOverflow    int
	Recycle        time.Duration // max connection lifetime before recycling
	PoolTimeout    time.Duration // deadline for the startup ping
	ConnectTimeout time.Duration
}

func Connect(ctx context.Context, pc PoolConfig, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = int32(pc.PoolSize + pc.MaxOverflow)
	cfg.MinConns = int32(min(pc.PoolSize, 4))
	if pc.Recycle > 0 {
		cfg.MaxConnLifetime = pc.Recycle
	}
	if pc.ConnectTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = pc.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if pc.PoolTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, pc.PoolTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(pc.URL)).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Dur("recycle", pc.Recycle).
		Msg("database connected")

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (db *DB) Close() {
	db.log.Info().Msg("closing database pool")
	db.Pool.Close()
}
