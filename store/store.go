// Package store provides the durable key/value storage that holds session
// credentials. Every entry carries an expiry; once it passes the entry is
// reported as absent, the way a browser drops an expired cookie.
package store

import (
	"time"

	"github.com/jrsteele09/go-notes-session/internal/errors"
)

// ErrNotFound is returned by Get when a key is absent or has expired.
var ErrNotFound = errors.ErrNotFound

// Store defines the storage operations a session manager needs.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(key string) (string, error)

	// Set stores value under key until expiresAt
	Set(key, value string, expiresAt time.Time) error

	// Remove deletes key. Removing an absent key is not an error
	Remove(key string) error
}

// Option configures the clock used by the expiring stores.
type Option func(*options)

type options struct {
	nowFunc func() time.Time
}

// WithNowFunc overrides the clock used to decide whether an entry has expired.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

// NowFunc returns the clock selected by opts, time.Now when none is set.
func NowFunc(opts ...Option) func() time.Time {
	return applyOptions(opts).nowFunc
}

func applyOptions(opts []Option) options {
	o := options{nowFunc: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
