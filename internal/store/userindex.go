package store

import (
	"context"
	"sync"
	"time"

	"spikeingest/internal/logging"
	"spikeingest/internal/model"
)

// UserIndex caches the enrolled user id list with a short TTL so the
// Spike Detector's per-candle hot path never runs a query directly,
// satisfying internal/spike.UserIndex.
type UserIndex struct {
	db  *DB
	ttl time.Duration

	mu       sync.Mutex
	ids      []int64
	loadedAt time.Time
}

func NewUserIndex(db *DB, ttl time.Duration) *UserIndex {
	return &UserIndex{db: db, ttl: ttl}
}

// EnrolledUserIDs returns every enrolled user id regardless of
// exchange; per-exchange and per-pair opt-out is evaluated downstream
// by the detector from each user's own options, so the index need not
// be exchange-aware itself.
func (u *UserIndex) EnrolledUserIDs(_ model.Exchange) []int64 {
	u.mu.Lock()
	fresh := time.Since(u.loadedAt) < u.ttl
	ids := u.ids
	u.mu.Unlock()
	if fresh {
		return ids
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	freshIDs, err := u.db.ListEnrolledUserIDs(ctx)
	if err != nil {
		logging.WithComponent("store").Warn().Err(err).Msg("failed to refresh enrolled user index")
		return ids
	}

	u.mu.Lock()
	u.ids = freshIDs
	u.loadedAt = time.Now()
	u.mu.Unlock()
	return freshIDs
}
