package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"tryon/internal/infra"
)

// Open returns the store selected by STORAGE_DRIVER.
func Open(ctx context.Context, cfg *infra.Config) (ObjectStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		store, err := NewMinioStore(ctx, MinioOptions{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBase,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "filesystem", "":
		path := cfg.StoragePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		store, err := NewFileStore(path, cfg.StorageBaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
	}
}
