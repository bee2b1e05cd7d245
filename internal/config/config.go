// Package config loads process configuration from the environment once at
// startup. Request handling never reads the environment directly.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/tomasbasham/upload-sas/internal/grant"
)

// Supported storage backends.
const (
	BackendAzure = "azure"
	BackendGCS   = "gcs"
	BackendS3    = "s3"
	BackendMinIO = "minio"
)

// Config is the complete process configuration.
type Config struct {
	// Backend selects the storage provider.
	Backend string `env:"STORAGE_BACKEND" envDefault:"azure"`

	// AccountName is the Azure storage account. Required for azure.
	AccountName string `env:"STORAGE_ACCOUNT_NAME"`

	// Endpoint overrides the provider's default service endpoint.
	Endpoint string `env:"STORAGE_ENDPOINT"`

	// Container receives uploads.
	Container string `env:"UPLOADS_CONTAINER" envDefault:"uploads"`

	// TTLMinutes is kept as text so that malformed values are reported as
	// configuration errors with the offending value.
	TTLMinutes string `env:"SAS_TTL_MINUTES" envDefault:"10"`

	// Port the HTTP server listens on.
	Port int `env:"PORT" envDefault:"8080"`

	// RequestTimeout bounds each HTTP request, including the backend call.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	GCS   GCSConfig
	S3    S3Config
	MinIO MinIOConfig
}

// GCSConfig holds settings for the gcs backend.
type GCSConfig struct {
	SignerEmail string `env:"GCS_SIGNER_EMAIL"`
}

// S3Config holds settings for the s3 backend.
type S3Config struct {
	Region       string `env:"AWS_REGION"`
	RoleARN      string `env:"S3_ROLE_ARN"`
	UsePathStyle bool   `env:"S3_USE_PATH_STYLE"`
}

// MinIOConfig holds settings for the minio backend.
type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	Region    string `env:"MINIO_REGION"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from environ instead of the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, &grant.ConfigError{Setting: "environment", Reason: err.Error()}
	}
	return &cfg, nil
}

// TTL returns the grant lifetime.
func (c *Config) TTL() (time.Duration, error) {
	return grant.ParseTTL(c.TTLMinutes)
}

// Validate checks that every setting the selected backend needs is present.
func (c *Config) Validate() error {
	if _, err := c.TTL(); err != nil {
		return err
	}
	if c.Container == "" {
		return missing("UPLOADS_CONTAINER")
	}
	if !grant.ValidContainer(c.Container) {
		return &grant.ConfigError{Setting: "UPLOADS_CONTAINER", Reason: fmt.Sprintf("%q contains characters outside [A-Za-z0-9_.-]", c.Container)}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &grant.ConfigError{Setting: "PORT", Reason: fmt.Sprintf("%d is not a valid port", c.Port)}
	}

	switch c.Backend {
	case BackendAzure:
		if c.AccountName == "" {
			return missing("STORAGE_ACCOUNT_NAME")
		}
	case BackendGCS:
		if c.GCS.SignerEmail == "" {
			return missing("GCS_SIGNER_EMAIL")
		}
	case BackendS3:
		if c.S3.Region == "" {
			return missing("AWS_REGION")
		}
		if c.S3.RoleARN == "" {
			return missing("S3_ROLE_ARN")
		}
	case BackendMinIO:
		if c.MinIO.Endpoint == "" {
			return missing("MINIO_ENDPOINT")
		}
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return missing("MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	default:
		return &grant.ConfigError{Setting: "STORAGE_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	return nil
}

func missing(setting string) error {
	return &grant.ConfigError{Setting: setting, Reason: "not set"}
}
