package infrastructure

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresClient(ctx context.Context, connString string, maxConns int32, log *zap.Logger) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	if maxConns <= 0 {
		maxConns = 5
	}
	config.MaxConns = maxConns
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresClient{Pool: pool, log: log}, nil
}

// Ping is used by the readiness check.
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			company VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(20) NOT NULL DEFAULT 'individual',
			admin_role VARCHAR(20) NOT NULL DEFAULT 'user',
			permissions TEXT[] NOT NULL DEFAULT '{}',
			account_status VARCHAR(20) NOT NULL DEFAULT 'trial'
				CHECK (account_status IN ('trial', 'active', 'expired', 'cancelled')),
			trial_ends_at TIMESTAMPTZ NOT NULL,
			trial_warning_sent BOOLEAN NOT NULL DEFAULT FALSE,
			last_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_trial ON users (account_status, trial_ends_at);
	`},
	{"clients", `
		CREATE TABLE IF NOT EXISTS clients (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(50) NOT NULL DEFAULT '',
			company VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'prospect',
			priority VARCHAR(10) NOT NULL DEFAULT 'medium',
			tags TEXT[] NOT NULL DEFAULT '{}',
			category VARCHAR(100) NOT NULL DEFAULT '',
			source VARCHAR(100) NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			last_contact_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_clients_user ON clients (user_id, created_at DESC);
	`},
	{"follow_ups", `
		CREATE TABLE IF NOT EXISTS follow_ups (
			id BIGSERIAL PRIMARY KEY,
			client_id BIGINT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_date TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'completed')),
			priority VARCHAR(10) NOT NULL DEFAULT 'medium',
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_follow_ups_user_due ON follow_ups (user_id, status, due_date);
		CREATE INDEX IF NOT EXISTS idx_follow_ups_client ON follow_ups (client_id);
	`},
	{"interactions", `
		CREATE TABLE IF NOT EXISTS interactions (
			id BIGSERIAL PRIMARY KEY,
			client_id BIGINT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions (user_id, occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_interactions_client ON interactions (client_id);
	`},
	{"webhooks", `
		CREATE TABLE IF NOT EXISTS webhooks (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			events TEXT[] NOT NULL DEFAULT '{}',
			secret VARCHAR(255) NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			headers JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_webhooks_user ON webhooks (user_id) WHERE active;
	`},
	{"webhook_deliveries", `
		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id BIGSERIAL PRIMARY KEY,
			webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
			delivery_id UUID NOT NULL,
			event VARCHAR(64) NOT NULL,
			payload TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			response_code INT NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			attempt INT NOT NULL,
			next_retry_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook ON webhook_deliveries (webhook_id, created_at DESC);
	`},
	{"webhook_retry_jobs", `
		CREATE TABLE IF NOT EXISTS webhook_retry_jobs (
			id BIGSERIAL PRIMARY KEY,
			webhook_id BIGINT NOT NULL REFERENCES webhooks(id) ON DELETE CASCADE,
			event VARCHAR(64) NOT NULL,
			data JSONB NOT NULL,
			attempt INT NOT NULL,
			run_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_retry_jobs_run_at ON webhook_retry_jobs (run_at);
	`},
	{"user_journey_milestones", `
		CREATE TABLE IF NOT EXISTS user_journey_milestones (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			milestone_type VARCHAR(64) NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, milestone_type)
		);
	`},
	{"user_journey_progress", `
		CREATE TABLE IF NOT EXISTS user_journey_progress (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			total_points INT NOT NULL DEFAULT 0,
			completed_milestones INT NOT NULL DEFAULT 0,
			current_level INT NOT NULL DEFAULT 1,
			journey_stage VARCHAR(32) NOT NULL DEFAULT 'onboarding',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
}

// Migrate creates every table and index if missing.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, t := range schema {
		if _, err := p.Pool.Exec(ctx, t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	if p.log != nil {
		p.log.Info("database schema up to date", zap.Int("tables", len(schema)))
	}
	return nil
}

// TryWithLock runs fn while holding a session-level advisory lock derived from name.
// The lock and its release happen on one pooled connection.
func (p *PostgresClient) TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	key := advisoryKey(name)
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		return false, fmt.Errorf("try advisory lock %q: %w", name, err)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		// Unlock on a fresh context so cancellation of ctx cannot leak the lock.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil && p.log != nil {
			p.log.Warn("advisory unlock failed", zap.String("lock", name), zap.Error(err))
		}
	}()

	return true, fn(ctx)
}

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
