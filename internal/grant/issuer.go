// Package grant issues single-object, write-only upload grants. A grant is
// a signed URL naming exactly one object, valid for a short window and
// carrying only the create, write and append permissions.
//
// Issuance is stateless: every call validates its input, derives the object
// name, computes a fresh window, obtains its own delegation from the storage
// backend and signs. Nothing is cached or stored between calls.
package grant

import (
	"context"
	"log/slog"
	"time"

	"github.com/tomasbasham/upload-sas/internal/storage"
)

// Options configures an Issuer.
type Options struct {
	// Container is the bucket or container uploads are written to.
	Container string

	// TTL is how long each grant remains valid. It must be a positive whole
	// number of minutes.
	TTL time.Duration

	// Now returns the issuance time. Defaults to time.Now.
	Now func() time.Time
}

// Issuer issues upload grants against a storage backend. It is safe for
// concurrent use provided the backend is.
type Issuer struct {
	backend   storage.Backend
	container string
	ttl       time.Duration
	now       func() time.Time
}

// Grant is an issued upload credential. The URL is a bearer credential:
// whoever holds it may write the object until the window expires.
type Grant struct {
	UploadURL   string
	ObjectName  string
	Container   string
	Permissions storage.Permissions
	Window      storage.Window
	TTL         time.Duration
}

// ExpiresInMinutes is the configured lifetime of the grant in minutes.
func (g *Grant) ExpiresInMinutes() int {
	return int(g.TTL / time.Minute)
}

// NewIssuer creates an Issuer. Configuration is checked on every call to
// Issue so that a misconfigured issuer fails loudly rather than issuing
// malformed grants.
func NewIssuer(backend storage.Backend, opts Options) *Issuer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		backend:   backend,
		container: opts.Container,
		ttl:       opts.TTL,
		now:       now,
	}
}

// Check reports whether the issuer is usable.
func (i *Issuer) Check() error {
	if i.backend == nil {
		return &ConfigError{Setting: "backend", Reason: "no storage backend configured"}
	}
	if !ValidContainer(i.container) {
		return &ConfigError{Setting: "container", Reason: "container name " + i.container + " is invalid"}
	}
	if i.ttl <= 0 || i.ttl%time.Minute != 0 {
		return &ConfigError{Setting: "ttl", Reason: i.ttl.String() + " is not a positive whole number of minutes"}
	}
	return nil
}

// Issue validates req and returns a signed upload grant for it. Errors are
// one of *ValidationError, *ConfigError or *BackendError; no URL is returned
// alongside any of them.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Grant, error) {
	req, err := req.Sanitise()
	if err != nil {
		return nil, err
	}

	if err := i.Check(); err != nil {
		return nil, err
	}

	name := ObjectName(req.SID, req.Label, req.Filename)

	window, err := NewWindow(i.now().UTC(), i.ttl)
	if err != nil {
		return nil, err
	}

	delegation, err := i.backend.Delegate(ctx, window)
	if err != nil {
		return nil, newBackendError("delegate", err)
	}

	url, err := i.backend.Sign(ctx, delegation, storage.Grant{
		Container:   i.container,
		ObjectName:  name,
		Permissions: storage.UploadPermissions,
		Window:      window,
	})
	if err != nil {
		return nil, newBackendError("sign", err)
	}

	slog.Info("Issued upload grant",
		"container", i.container,
		"object", name,
		"permissions", storage.UploadPermissions.String(),
		"start", window.Start,
		"expiry", window.Expiry)

	return &Grant{
		UploadURL:   url,
		ObjectName:  name,
		Container:   i.container,
		Permissions: storage.UploadPermissions,
		Window:      window,
		TTL:         i.ttl,
	}, nil
}
