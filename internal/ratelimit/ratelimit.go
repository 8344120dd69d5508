package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mailburst/mailburst-backend/internal/cache"
)

// bucketTTL keeps a bucket around for its own hour plus a grace hour, then the
// store drops it. No rollover code exists: the hour changing changes the key.
const bucketTTL = 2 * time.Hour

// Limiter enforces a per-user hourly send quota over an atomic counter store.
// TryReserve claims a quota slot with a single atomic increment, so concurrent
// workers can never push a bucket past the limit. A reservation that does not
// end in a confirmed send must be released, which keeps the settled count equal
// to confirmed sends only.
type Limiter struct {
	Store cache.Store
	Limit int

	// Now is the clock source; overridable in tests
	Now func() time.Time
}

func NewLimiter(store cache.Store, limit int) *Limiter {
	return &Limiter{
		Store: store,
		Limit: limit,
		Now:   time.Now,
	}
}

// Reservation is a provisional grant of one send in a specific hour bucket.
// It pins the bucket key at reservation time, so releasing near an hour
// boundary still credits the bucket that was debited.
type Reservation struct {
	key   string
	store cache.Store
}

// Release hands the quota slot back after a delivery attempt fails.
func (r *Reservation) Release(ctx context.Context) error {
	_, err := r.store.Increment(ctx, r.key, -1)
	return err
}

// bucketKey derives the counting window for a user at time t. Key uniqueness
// per wall-clock hour is what resets the window.
func bucketKey(userID string, t time.Time) string {
	return fmt.Sprintf("rate_limit:%s:%d-%d-%d-%d",
		userID, t.Year(), int(t.Month()), t.Day(), t.Hour())
}

// TryReserve claims one send against the user's current hour bucket. The limit
// is an inclusive cap: the bucket may reach the limit, never exceed it. A
// denial returns ok=false with no reservation; the caller retries later.
func (l *Limiter) TryReserve(ctx context.Context, userID string) (*Reservation, bool, error) {
	key := bucketKey(userID, l.Now())

	count, err := l.Store.Increment(ctx, key, 1)
	if err != nil {
		return nil, false, err
	}
	if count == 1 {
		// first write arms the bucket's self-expiry
		if err := l.Store.Expire(ctx, key, bucketTTL); err != nil {
			return nil, false, err
		}
	}
	if count > int64(l.Limit) {
		// over the cap: hand the slot straight back
		if _, err := l.Store.Increment(ctx, key, -1); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return &Reservation{key: key, store: l.Store}, true, nil
}
