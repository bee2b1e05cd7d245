// Package storage issues time-limited, write-only signed URLs for single
// objects. Each backend obtains a short-lived delegation capability from its
// provider's identity layer and uses it to sign one grant; the long-lived
// account keys never leave the provider.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Window is the interval during which a delegation or grant is valid.
type Window struct {
	Start  time.Time
	Expiry time.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.Expiry.Sub(w.Start)
}

// Valid reports whether the window starts strictly before it expires.
func (w Window) Valid() bool {
	return w.Start.Before(w.Expiry)
}

// Backend obtains delegation capabilities and signs upload grants.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Delegate obtains a signing capability scoped to exactly w.
	Delegate(ctx context.Context, w Window) (*Delegation, error)

	// Sign produces a fully qualified URL carrying the signed grant.
	Sign(ctx context.Context, d *Delegation, g Grant) (string, error)
}

// Delegation is a time-bounded signing capability issued by a backend's
// identity layer. It is owned by a single issuance and never reused.
type Delegation struct {
	// Window is the validity of the capability itself.
	Window Window

	// credential holds the backend specific material, e.g. an Azure user
	// delegation credential or a set of STS session credentials.
	credential any
}

// Grant describes what a signed URL permits.
type Grant struct {
	// Container is the bucket or container holding the object.
	Container string

	// ObjectName is the object path within Container.
	ObjectName string

	// Permissions is the set of operations the URL authorises.
	Permissions Permissions

	// Window bounds when the URL may be used.
	Window Window
}

// Validate checks the grant before it is handed to a backend.
func (g Grant) Validate() error {
	if g.Container == "" {
		return fmt.Errorf("storage: container is required")
	}
	if g.ObjectName == "" {
		return fmt.Errorf("storage: object name is required")
	}
	if !g.Window.Valid() {
		return fmt.Errorf("storage: grant window start %s is not before expiry %s",
			g.Window.Start.Format(time.RFC3339), g.Window.Expiry.Format(time.RFC3339))
	}
	return g.Permissions.Validate()
}

// delegationCredential extracts the backend specific credential from d,
// failing when d was issued by a different backend.
func delegationCredential[T any](d *Delegation) (T, error) {
	var zero T
	if d == nil {
		return zero, fmt.Errorf("storage: delegation is required")
	}
	c, ok := d.credential.(T)
	if !ok {
		return zero, fmt.Errorf("storage: delegation of type %T was not issued by this backend", d.credential)
	}
	return c, nil
}
