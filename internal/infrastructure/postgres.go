package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	// Auto-migrate schema
	if err := client.Migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate() error {
	ctx := context.Background()

	// Dashboard/API users
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'user',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	// Messages document mirror (remote copy of messages.json)
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bot_config (
			key VARCHAR(50) PRIMARY KEY,
			value JSONB NOT NULL,
			updated_by VARCHAR(100),
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create bot_config table: %w", err)
	}

	// Raw inbound message log
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			message_id VARCHAR(128) NOT NULL,
			sender VARCHAR(32) NOT NULL,
			name VARCHAR(100),
			type VARCHAR(20),
			text_body TEXT,
			keyword VARCHAR(50),
			status VARCHAR(20) DEFAULT 'success',
			date DATE NOT NULL,
			hour SMALLINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	_, err = p.Pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender, created_at DESC);")
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}

	// Consultation requests awaiting follow-up
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS consultations (
			id SERIAL PRIMARY KEY,
			sender VARCHAR(32) NOT NULL,
			name VARCHAR(100),
			message TEXT,
			status VARCHAR(20) DEFAULT 'pending',
			notified BOOLEAN DEFAULT FALSE,
			date DATE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create consultations table: %w", err)
	}

	// Per-sender profile with running counters
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id VARCHAR(32) PRIMARY KEY,
			name VARCHAR(100) DEFAULT 'Unknown',
			first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			message_count INT DEFAULT 0,
			last_keyword VARCHAR(50),
			status VARCHAR(20) DEFAULT 'active'
		);
	`)
	if err != nil {
		return fmt.Errorf("create user_profiles table: %w", err)
	}

	// Per-keyword per-day counters
	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS keyword_stats (
			keyword VARCHAR(50) NOT NULL,
			date DATE NOT NULL,
			count INT DEFAULT 0,
			conversions INT DEFAULT 0,
			PRIMARY KEY (keyword, date)
		);
	`)
	if err != nil {
		return fmt.Errorf("create keyword_stats table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS button_clicks (
			id SERIAL PRIMARY KEY,
			sender VARCHAR(32) NOT NULL,
			button_id VARCHAR(100),
			button_title VARCHAR(100),
			context VARCHAR(100),
			date DATE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create button_clicks table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversions (
			id SERIAL PRIMARY KEY,
			sender VARCHAR(32) NOT NULL,
			from_keyword VARCHAR(50),
			to_keyword VARCHAR(50),
			date DATE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create conversions table: %w", err)
	}

	_, err = p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bot_errors (
			id SERIAL PRIMARY KEY,
			type VARCHAR(50),
			message TEXT,
			context TEXT,
			date DATE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("create bot_errors table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
