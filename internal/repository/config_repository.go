package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"juraganbot/internal/entities"
)

// bot_config row holding the messages document, and the channel used to
// push edits to running instances.
const (
	messagesKey   = "messages"
	configChannel = "bot_config_updated"
)

// ConfigRepository stores the messages document as a single JSONB row in
// bot_config. Dashboards write through SaveMessagesDocument, which notifies
// every listening bot instance.
type ConfigRepository struct {
	db *pgxpool.Pool
}

func NewConfigRepository(db *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// GetMessagesDocument loads the remote messages document. Returns
// (nil, nil) when no document has been published yet.
func (r *ConfigRepository) GetMessagesDocument() (*entities.MessagesConfig, error) {
	var raw []byte
	err := r.db.QueryRow(context.Background(),
		"SELECT value FROM bot_config WHERE key = $1", messagesKey).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load messages document: %w", err)
	}

	var cfg entities.MessagesConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode messages document: %w", err)
	}
	return &cfg, nil
}

// SaveMessagesDocument upserts the document and notifies listeners.
func (r *ConfigRepository) SaveMessagesDocument(cfg *entities.MessagesConfig, updatedBy string) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode messages document: %w", err)
	}

	_, err = r.db.Exec(context.Background(), `
		INSERT INTO bot_config (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_by=EXCLUDED.updated_by, updated_at=NOW()
	`, messagesKey, raw, updatedBy)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(context.Background(), "SELECT pg_notify($1, $2)", configChannel, messagesKey)
	return err
}

// ListenForUpdates blocks on a dedicated connection and invokes onChange
// for every published config update. Returns when ctx is cancelled or the
// connection drops.
func (r *ConfigRepository) ListenForUpdates(ctx context.Context, onChange func()) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+configChannel); err != nil {
		return fmt.Errorf("listen %s: %w", configChannel, err)
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		onChange()
	}
}
