package artifact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flood-risk-ensemble/internal/config"
)

// Backend is a Store whose reachability can be probed.
type Backend interface {
	Store
	CheckReadiness(ctx context.Context) error
}

// Open builds the backend named by cfg.ArtifactBackend. The Azure
// container is created on first use.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.ArtifactBackend {
	case config.ArtifactBackendAzure:
		s, err := NewAzureStore(cfg.AzureConnString, cfg.AzureContainer, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.ArtifactBackendFS, "":
		s, err := NewFSStore(cfg.ArtifactDir)
		if err != nil {
			return nil, err
		}
		logger.Info("artifact store ready", "dir", cfg.ArtifactDir)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}
}
