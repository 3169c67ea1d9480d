package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"juraganbot/internal/entities"
	"juraganbot/pkg/logger"
)

// RemoteConfigStore is the remote side of the messages document: a mirrored
// copy that wins over the local file whenever it is reachable.
type RemoteConfigStore interface {
	GetMessagesDocument() (*entities.MessagesConfig, error)
	ListenForUpdates(ctx context.Context, onChange func()) error
}

// ConfigProvider owns the messages document. Callers take immutable
// snapshots instead of reaching into shared globals, and must wait for
// WaitReady before the first snapshot.
type ConfigProvider struct {
	remote    RemoteConfigStore // nil when no remote store is configured
	localPath string

	mu      sync.RWMutex
	current *entities.MessagesConfig
	source  string // "remote" or "local"

	ready     chan struct{}
	readyOnce sync.Once
}

func NewConfigProvider(remote RemoteConfigStore, localPath string) *ConfigProvider {
	return &ConfigProvider{
		remote:    remote,
		localPath: localPath,
		ready:     make(chan struct{}),
	}
}

// Load fetches the document: remote first, local file as fallback. Both
// failing is fatal for the caller — the bot cannot run without templates.
func (p *ConfigProvider) Load() error {
	if p.remote != nil {
		cfg, err := p.remote.GetMessagesDocument()
		if err != nil {
			logger.Warn("remote config unreachable, falling back to local file", zap.Error(err))
		} else if cfg != nil {
			p.set(cfg, "remote")
			return nil
		} else {
			logger.Warn("remote config document not found, falling back to local file")
		}
	}

	cfg, err := p.loadLocal()
	if err != nil {
		p.mu.RLock()
		hasCurrent := p.current != nil
		p.mu.RUnlock()
		if hasCurrent {
			// Keep serving the last good document.
			return nil
		}
		return fmt.Errorf("load messages config: %w", err)
	}

	p.set(cfg, "local")
	return nil
}

// Reload re-runs Load; used by the push subscription and the admin API.
func (p *ConfigProvider) Reload() error {
	return p.Load()
}

func (p *ConfigProvider) loadLocal() (*entities.MessagesConfig, error) {
	raw, err := os.ReadFile(p.localPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.localPath, err)
	}
	var cfg entities.MessagesConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.localPath, err)
	}
	return &cfg, nil
}

func (p *ConfigProvider) set(cfg *entities.MessagesConfig, source string) {
	p.mu.Lock()
	p.current = cfg
	p.source = source
	p.mu.Unlock()
	p.readyOnce.Do(func() { close(p.ready) })
	logger.Info("messages config loaded", zap.String("source", source))
}

// Snapshot returns the current document. Nil only before the first
// successful Load.
func (p *ConfigProvider) Snapshot() *entities.MessagesConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Source reports where the current document came from.
func (p *ConfigProvider) Source() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// WaitReady blocks until a document is available or the timeout elapses.
func (p *ConfigProvider) WaitReady(timeout time.Duration) error {
	select {
	case <-p.ready:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for messages config")
	}
}

// Watch subscribes to remote update notifications and reloads on every
// change. Reconnects with a flat backoff until ctx is cancelled.
func (p *ConfigProvider) Watch(ctx context.Context) {
	if p.remote == nil {
		return
	}
	for {
		err := p.remote.ListenForUpdates(ctx, func() {
			if rerr := p.Reload(); rerr != nil {
				logger.Warn("config reload after update failed", zap.Error(rerr))
			}
		})
		if ctx.Err() != nil {
			return
		}
		logger.Warn("config update subscription dropped, reconnecting", zap.Error(err))
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}
