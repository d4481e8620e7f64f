// Package ratelimit throttles click tracking per client IP with a fixed
// window counter held in an external store.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMax    = 10
	DefaultWindow = 60 * time.Second

	keyPrefix = "rate:"
)

// KeepTTL passed to CounterStore.Set leaves an existing expiry untouched.
const KeepTTL time.Duration = 0

// CounterStore is a key to integer store with expiry.
type CounterStore interface {
	// Get returns the live count for key; found is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (count int, found bool, err error)
	// Set stores value under key. A ttl of KeepTTL keeps the current expiry
	// so the window stays fixed.
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
}

// Limiter is a fixed-window counter. The read and the write are separate
// store calls, so concurrent clicks from one IP may slip a few past the
// threshold.
type Limiter struct {
	store  CounterStore
	max    int
	window time.Duration
	logger *slog.Logger
}

// New creates a limiter. Non-positive max or window fall back to defaults.
func New(store CounterStore, max int, window time.Duration, logger *slog.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, max: max, window: window, logger: logger}
}

// IsLimited records one observation for ip and reports whether it exceeds
// the threshold. A limited observation does not touch the counter.
func (l *Limiter) IsLimited(ctx context.Context, ip string) (bool, error) {
	key := Key(ip)

	count, found, err := l.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read rate counter: %w", err)
	}

	if !found {
		if err := l.store.Set(ctx, key, 1, l.window); err != nil {
			return false, fmt.Errorf("failed to start rate window: %w", err)
		}
		return false, nil
	}

	if count >= l.max {
		l.logger.Debug("Rate limit reached", slog.String("key", key), slog.Int("count", count))
		return true, nil
	}

	if err := l.store.Set(ctx, key, count+1, KeepTTL); err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	return false, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Key derives the counter key for ip. The raw address is never stored.
func Key(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return keyPrefix + hex.EncodeToString(sum[:])[:32]
}
