package objectstore

import (
	"context"
	"fmt"

	"booklisting/internal/config"
	"booklisting/internal/models"
	"booklisting/internal/staging"
)

type Store interface {
	Upload(ctx context.Context, blob staging.Blob) (*models.StoredObject, error)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.BaseDir, cfg.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.Driver)
	}
}
