// Package cache stores HTTP responses for the offline gateway. Entries are
// grouped into version-prefixed buckets so a deploy can retire a whole
// generation of cached responses at once.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Entry is one cached HTTP response.
type Entry struct {
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"stored_at"`
}

// Policy bounds a bucket. Zero values disable the corresponding limit.
type Policy struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Expired reports whether an entry stored at storedAt has outlived the
// policy at time now.
func (p Policy) Expired(storedAt, now time.Time) bool {
	return p.MaxAge > 0 && now.Sub(storedAt) > p.MaxAge
}

type Store interface {
	Get(ctx context.Context, bucket, key string) (*Entry, error)
	Put(ctx context.Context, bucket, key string, entry *Entry) error
	Delete(ctx context.Context, bucket, key string) error

	// Buckets lists every bucket that currently holds entries.
	Buckets(ctx context.Context) ([]string, error)
	// PurgeBucket drops a bucket and everything in it.
	PurgeBucket(ctx context.Context, bucket string) error
	// Trim evicts entries beyond the policy's limits, oldest first, and
	// returns how many were dropped.
	Trim(ctx context.Context, bucket string, policy Policy) (int, error)

	Close() error
}
