package artifact

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-ensemble/internal/config"
)

func TestOpen_FS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	cfg := &config.Config{ArtifactBackend: config.ArtifactBackendFS, ArtifactDir: dir}

	b, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, b)
	require.NoError(t, b.CheckReadiness(context.Background()))
	assert.DirExists(t, dir)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := &config.Config{ArtifactBackend: "s3"}
	_, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestOpen_AzureRejectsBadConnectionString(t *testing.T) {
	cfg := &config.Config{
		ArtifactBackend: config.ArtifactBackendAzure,
		AzureConnString: "not a connection string",
		AzureContainer:  "flood-models",
	}
	_, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
