package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioDefaultRegion = "us-east-1"

// MinIOOptions configures a MinIOBackend.
type MinIOOptions struct {
	// Endpoint is the host[:port] of the MinIO server.
	Endpoint string

	// AccessKey and SecretKey identify the user allowed to call STS.
	AccessKey string
	SecretKey string

	// UseSSL selects https for both STS and the signed URLs.
	UseSSL bool

	// Region is embedded in signatures. Setting it avoids a bucket location
	// lookup when presigning.
	Region string

	// Bucket scopes the session policy of each assumed role.
	Bucket string
}

// stsAssumer exchanges long-lived MinIO keys for session credentials.
type stsAssumer func(ctx context.Context, stsEndpoint string, opts credentials.STSAssumeRoleOptions) (credentials.Value, error)

// minioAssumeRole calls AssumeRole with an HTTP client bounded by the
// deadline of ctx. minio-go builds the STS request without a context, so the
// client timeout is the only way to stop a hung endpoint.
func minioAssumeRole(ctx context.Context, stsEndpoint string, opts credentials.STSAssumeRoleOptions) (credentials.Value, error) {
	client := &http.Client{Transport: http.DefaultTransport}
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
		if client.Timeout <= 0 {
			return credentials.Value{}, context.DeadlineExceeded
		}
	}

	provider := &credentials.STSAssumeRole{
		Client:      client,
		STSEndpoint: stsEndpoint,
		Options:     opts,
	}
	return provider.Retrieve()
}

// MinIOBackend presigns PUT requests for MinIO and other S3-compatible servers
// that implement the AssumeRole STS API.
type MinIOBackend struct {
	opts   MinIOOptions
	assume stsAssumer
	now    func() time.Time
}

// NewMinIOBackend creates a MinIOBackend.
func NewMinIOBackend(opts MinIOOptions) (*MinIOBackend, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("storage: minio endpoint is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("storage: minio access key and secret key are required")
	}
	if opts.Region == "" {
		opts.Region = minioDefaultRegion
	}
	return &MinIOBackend{opts: opts, assume: minioAssumeRole, now: time.Now}, nil
}

func (b *MinIOBackend) stsEndpoint() string {
	if b.opts.UseSSL {
		return "https://" + b.opts.Endpoint
	}
	return "http://" + b.opts.Endpoint
}

// Delegate obtains session credentials limited to s3:PutObject in the bucket.
func (b *MinIOBackend) Delegate(ctx context.Context, w Window) (*Delegation, error) {
	policy, err := uploadSessionPolicy(b.opts.Bucket)
	if err != nil {
		return nil, err
	}

	slog.Debug("Assuming MinIO upload role",
		"endpoint", b.opts.Endpoint,
		"bucket", b.opts.Bucket)

	value, err := b.assumeRole(ctx, credentials.STSAssumeRoleOptions{
		AccessKey:       b.opts.AccessKey,
		SecretKey:       b.opts.SecretKey,
		Policy:          policy,
		Location:        b.opts.Region,
		DurationSeconds: int(stsDuration(w) / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to assume minio role: %w", err)
	}

	return &Delegation{Window: w, credential: value}, nil
}

// assumeRole runs the STS exchange and gives up when ctx is done, even if the
// exchange itself is still blocked.
func (b *MinIOBackend) assumeRole(ctx context.Context, opts credentials.STSAssumeRoleOptions) (credentials.Value, error) {
	type result struct {
		value credentials.Value
		err   error
	}

	done := make(chan result, 1)
	go func() {
		value, err := b.assume(ctx, b.stsEndpoint(), opts)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return credentials.Value{}, ctx.Err()
	}
}

// Sign presigns a PutObject request for g with the session credentials in d.
func (b *MinIOBackend) Sign(ctx context.Context, d *Delegation, g Grant) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	value, err := delegationCredential[credentials.Value](d)
	if err != nil {
		return "", err
	}
	if _, err := putMethod(g.Permissions); err != nil {
		return "", err
	}

	expires := g.Window.Expiry.Sub(b.now()).Round(time.Second)
	if expires < time.Second {
		return "", fmt.Errorf("storage: grant for %q has already expired", g.ObjectName)
	}

	client, err := minio.New(b.opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(value.AccessKeyID, value.SecretAccessKey, value.SessionToken),
		Secure: b.opts.UseSSL,
		Region: b.opts.Region,
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to create minio client: %w", err)
	}

	u, err := client.PresignedPutObject(ctx, g.Container, g.ObjectName, expires)
	if err != nil {
		return "", fmt.Errorf("storage: failed to presign upload for %q: %w", g.ObjectName, err)
	}

	return u.String(), nil
}
