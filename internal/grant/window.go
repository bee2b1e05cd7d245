package grant

import (
	"strconv"
	"time"

	"github.com/tomasbasham/upload-sas/internal/storage"
)

const (
	// ClockSkew backdates every window so that clients with slow clocks can
	// use a grant immediately.
	ClockSkew = time.Minute

	// DefaultTTLMinutes is the grant lifetime when none is configured.
	DefaultTTLMinutes = 10
)

// ParseTTL parses a lifetime in whole minutes.
func ParseTTL(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ConfigError{Setting: "ttl", Reason: strconv.Quote(s) + " is not a whole number of minutes"}
	}
	return TTLMinutes(n)
}

// TTLMinutes converts a positive number of minutes to a duration.
func TTLMinutes(n int) (time.Duration, error) {
	if n <= 0 {
		return 0, &ConfigError{Setting: "ttl", Reason: strconv.Itoa(n) + " minutes is not positive"}
	}
	return time.Duration(n) * time.Minute, nil
}

// NewWindow returns the validity window of a grant issued at now: starting
// ClockSkew in the past and ending ttl in the future.
func NewWindow(now time.Time, ttl time.Duration) (storage.Window, error) {
	if ttl <= 0 || ttl%time.Minute != 0 {
		return storage.Window{}, &ConfigError{Setting: "ttl", Reason: ttl.String() + " is not a positive whole number of minutes"}
	}
	return storage.Window{
		Start:  now.Add(-ClockSkew),
		Expiry: now.Add(ttl),
	}, nil
}
