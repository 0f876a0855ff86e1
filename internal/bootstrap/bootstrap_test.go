package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediagen-api/internal/config"
	"github.com/maauso/mediagen-api/internal/media"
)

const registryDoc = `
services:
  flux-image:
    url: http://localhost:9001/mcp
    kind: image
    name: Flux
  wan-video:
    url: http://localhost:9002/mcp
    kind: video
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryDoc), 0o600))

	return &config.Config{
		ServerBaseURL:        "http://localhost:8080",
		OutputDir:            filepath.Join(dir, "out"),
		RegistryPath:         path,
		DefaultVideoService:  "wan-video",
		ImageMaxPollAttempts: 30,
		VideoMaxPollAttempts: 120,
		MaxOuterRetries:      2,
		FetchMaxAttempts:     3,
		ToolCallTimeoutSec:   120,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDependencies(t *testing.T) {
	cfg := testConfig(t)

	deps, err := NewDependencies(cfg, discardLogger(), "test")
	require.NoError(t, err)

	assert.Equal(t, 2, deps.Registry.Len())
	svc, err := deps.Registry.DefaultFor(media.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "wan-video", svc.ID)

	assert.NotNil(t, deps.Orchestrator)
	assert.NotNil(t, deps.Hub)
	assert.Equal(t, 0, deps.Tracker.Len())
	assert.DirExists(t, deps.OutputDir)
}

func TestNewDependencies_MissingRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.RegistryPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewDependencies(cfg, discardLogger(), "test")
	assert.ErrorContains(t, err, "load service registry")
}

func TestInitPromptTransform(t *testing.T) {
	cfg := testConfig(t)

	transform, err := initPromptTransform(cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "a red fox", transform("  a   red\tfox "))

	dictPath := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, os.WriteFile(dictPath, []byte("zorro: fox\nrojo: red\n"), 0o600))
	cfg.PromptDictionaryPath = dictPath

	transform, err = initPromptTransform(cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "a red fox", transform("a  rojo zorro"))

	cfg.PromptDictionaryPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initPromptTransform(cfg, discardLogger())
	assert.Error(t, err)
}
