package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iamcredentials/v1"
	"google.golang.org/api/option"
)

// gcsMaxExpiry is the longest lifetime GCS accepts for a V4 signed URL.
const gcsMaxExpiry = 7 * 24 * time.Hour

// blobSigner signs bytes as a service account without holding its key.
type blobSigner interface {
	SignBlob(ctx context.Context, email string, payload []byte) ([]byte, error)
}

// iamBlobSigner signs through the IAM Credentials API.
type iamBlobSigner struct {
	svc *iamcredentials.Service
}

func (s *iamBlobSigner) SignBlob(ctx context.Context, email string, payload []byte) ([]byte, error) {
	name := "projects/-/serviceAccounts/" + email
	req := &iamcredentials.SignBlobRequest{
		Payload: base64.StdEncoding.EncodeToString(payload),
	}

	resp, err := s.svc.Projects.ServiceAccounts.SignBlob(name, req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(resp.SignedBlob)
}

// gcsDelegation is the capability to sign as a service account for the
// lifetime of a single grant.
type gcsDelegation struct {
	email  string
	signer blobSigner
}

// GCSBackend issues V4 signed PUT URLs for Google Cloud Storage. Signatures
// are produced by the IAM Credentials API on behalf of a signer service
// account, so the process never holds a private key.
type GCSBackend struct {
	client *storage.Client
	signer blobSigner
	email  string
}

// GCSOptions configures a GCSBackend.
type GCSOptions struct {
	// SignerEmail is the service account URLs are signed as.
	SignerEmail string

	// Endpoint overrides the storage API endpoint, e.g. for fake-gcs-server.
	// It does not apply to the IAM Credentials API.
	Endpoint string

	// ClientOptions are passed to both the storage and IAM clients.
	ClientOptions []option.ClientOption
}

// clientOptions splits opts into the options for the storage client and the
// IAM Credentials client.
func (o GCSOptions) clientOptions() (storageOpts, iamOpts []option.ClientOption) {
	iamOpts = append([]option.ClientOption(nil), o.ClientOptions...)
	storageOpts = append([]option.ClientOption(nil), o.ClientOptions...)
	if o.Endpoint != "" {
		storageOpts = append(storageOpts, option.WithEndpoint(o.Endpoint))
	}
	return storageOpts, iamOpts
}

// NewGCSBackend creates a GCSBackend that signs as opts.SignerEmail.
func NewGCSBackend(ctx context.Context, opts GCSOptions) (*GCSBackend, error) {
	if opts.SignerEmail == "" {
		return nil, fmt.Errorf("storage: signer service account email is required")
	}

	storageOpts, iamOpts := opts.clientOptions()

	client, err := storage.NewClient(ctx, storageOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create GCS client: %w", err)
	}

	svc, err := iamcredentials.NewService(ctx, iamOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create IAM credentials client: %w", err)
	}

	return &GCSBackend{
		client: client,
		signer: &iamBlobSigner{svc: svc},
		email:  opts.SignerEmail,
	}, nil
}

// Delegate binds the signer service account to w. GCS has no separate
// delegation key; the IAM signature itself is the delegated capability and is
// requested when the grant is signed.
func (b *GCSBackend) Delegate(_ context.Context, w Window) (*Delegation, error) {
	if w.Duration() > gcsMaxExpiry {
		return nil, fmt.Errorf("storage: window of %s exceeds the GCS maximum of %s", w.Duration(), gcsMaxExpiry)
	}
	return &Delegation{
		Window:     w,
		credential: gcsDelegation{email: b.email, signer: b.signer},
	}, nil
}

// Sign returns a V4 signed URL allowing a single PUT of g.ObjectName.
func (b *GCSBackend) Sign(ctx context.Context, d *Delegation, g Grant) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	del, err := delegationCredential[gcsDelegation](d)
	if err != nil {
		return "", err
	}
	method, err := putMethod(g.Permissions)
	if err != nil {
		return "", err
	}

	slog.Debug("Signing GCS upload URL",
		"bucket", g.Container,
		"object", g.ObjectName,
		"signer", del.email)

	signedURL, err := b.client.Bucket(g.Container).SignedURL(g.ObjectName, &storage.SignedURLOptions{
		GoogleAccessID: del.email,
		SignBytes: func(payload []byte) ([]byte, error) {
			return del.signer.SignBlob(ctx, del.email, payload)
		},
		Method:  method,
		Expires: g.Window.Expiry,
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to sign URL for %q: %w", g.ObjectName, err)
	}

	return signedURL, nil
}

// putMethod maps a permission set onto a single HTTP method for providers
// whose objects are written whole. Such providers cannot append, so a set
// without create or write has no equivalent.
func putMethod(ps Permissions) (string, error) {
	if err := ps.Validate(); err != nil {
		return "", err
	}
	if !ps.Has(PermissionCreate) && !ps.Has(PermissionWrite) {
		return "", fmt.Errorf("storage: permissions %q cannot be expressed as a PUT", ps)
	}
	return http.MethodPut, nil
}
