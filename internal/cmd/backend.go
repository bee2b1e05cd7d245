package cmd

import (
	"context"
	"fmt"

	"github.com/tomasbasham/upload-sas/internal/config"
	"github.com/tomasbasham/upload-sas/internal/grant"
	"github.com/tomasbasham/upload-sas/internal/storage"
)

// newBackend constructs the storage backend selected by cfg. The backend is
// built once per process and shared by every request.
func newBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendAzure:
		return storage.NewAzureBackend(storage.AzureOptions{
			AccountName: cfg.AccountName,
			Endpoint:    cfg.Endpoint,
		})

	case config.BackendGCS:
		return storage.NewGCSBackend(ctx, storage.GCSOptions{
			SignerEmail: cfg.GCS.SignerEmail,
			Endpoint:    cfg.Endpoint,
		})

	case config.BackendS3:
		return storage.NewS3Backend(ctx, storage.S3Options{
			Region:       cfg.S3.Region,
			RoleARN:      cfg.S3.RoleARN,
			Bucket:       cfg.Container,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})

	case config.BackendMinIO:
		return storage.NewMinIOBackend(storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
			Bucket:    cfg.Container,
		})
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// newIssuer validates cfg and wires an issuer to the configured backend.
func newIssuer(ctx context.Context, cfg *config.Config) (*grant.Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ttl, err := cfg.TTL()
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s backend: %w", cfg.Backend, err)
	}

	return grant.NewIssuer(backend, grant.Options{
		Container: cfg.Container,
		TTL:       ttl,
	}), nil
}
