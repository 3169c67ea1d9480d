package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"juraganbot/internal/entities"
)

type fakeRemoteStore struct {
	cfg *entities.MessagesConfig
	err error
}

func (f *fakeRemoteStore) GetMessagesDocument() (*entities.MessagesConfig, error) {
	return f.cfg, f.err
}

func (f *fakeRemoteStore) ListenForUpdates(ctx context.Context, onChange func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func writeLocalConfig(t *testing.T, cfg *entities.MessagesConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.json")
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestConfigProviderLoadsLocalFile(t *testing.T) {
	path := writeLocalConfig(t, testMessagesConfig())

	p := NewConfigProvider(nil, path)
	require.NoError(t, p.Load())

	require.Equal(t, "local", p.Source())
	require.NotNil(t, p.Snapshot())
	require.Equal(t, "628999", p.Snapshot().KonsultanWA)
	require.NoError(t, p.WaitReady(time.Second))
}

func TestConfigProviderRemoteWins(t *testing.T) {
	local := testMessagesConfig()
	path := writeLocalConfig(t, local)

	remoteCfg := testMessagesConfig()
	remoteCfg.KonsultanWA = "628777remote"
	p := NewConfigProvider(&fakeRemoteStore{cfg: remoteCfg}, path)

	require.NoError(t, p.Load())
	require.Equal(t, "remote", p.Source())
	require.Equal(t, "628777remote", p.Snapshot().KonsultanWA)
}

func TestConfigProviderFallsBackWhenRemoteFails(t *testing.T) {
	path := writeLocalConfig(t, testMessagesConfig())

	p := NewConfigProvider(&fakeRemoteStore{err: errors.New("connection refused")}, path)
	require.NoError(t, p.Load())
	require.Equal(t, "local", p.Source())
}

func TestConfigProviderFallsBackWhenRemoteDocumentMissing(t *testing.T) {
	path := writeLocalConfig(t, testMessagesConfig())

	p := NewConfigProvider(&fakeRemoteStore{cfg: nil}, path)
	require.NoError(t, p.Load())
	require.Equal(t, "local", p.Source())
}

func TestConfigProviderErrorsWithNoSourceAtAll(t *testing.T) {
	p := NewConfigProvider(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, p.Load())
	require.Nil(t, p.Snapshot())
	require.Error(t, p.WaitReady(50*time.Millisecond))
}

func TestConfigProviderKeepsLastGoodDocument(t *testing.T) {
	path := writeLocalConfig(t, testMessagesConfig())

	p := NewConfigProvider(nil, path)
	require.NoError(t, p.Load())

	// The file disappearing must not drop the in-memory document.
	require.NoError(t, os.Remove(path))
	require.NoError(t, p.Reload())
	require.NotNil(t, p.Snapshot())
	require.Equal(t, "local", p.Source())
}

func TestConfigProviderRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	p := NewConfigProvider(nil, path)
	require.Error(t, p.Load())
}
