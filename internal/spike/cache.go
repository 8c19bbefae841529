package spike

import (
	"sync"
	"time"

	"spikeingest/internal/logging"
)

// OptionsLoader fetches the current options_json for a user, backed by
// the Alert Store's users table.
type OptionsLoader func(userID int64) (string, bool, error)

// userEntry is one cached, parsed Options blob plus its own series
// history (keyed by strategy index, since series membership depends on
// which strategy's conditions gated it).
type userEntry struct {
	options   Options
	series    map[int]*Series
	loadedAt  time.Time
	parseFail bool
}

// OptionsCache is the read-mostly, write-through-invalidated user
// options cache spec §4.4 requires: TTL-bounded, and explicitly
// invalidated by the HTTP layer on write.
type OptionsCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	loader  OptionsLoader
	entries map[int64]*userEntry
	log     zerologLogger
}

// zerologLogger narrows the dependency to the one method used here, so
// tests can pass a no-op without importing zerolog.
type zerologLogger interface {
	Warn(userID int64, err error)
}

type defaultLogger struct{}

func (defaultLogger) Warn(userID int64, err error) {
	logging.WithComponent("spike").Warn().Int64("user_id", userID).Err(err).Msg("failed to parse user options")
}

// Options returns the entry's parsed options, exported so callers
// outside the package (the dispatcher's template selection) can read
// a user's conditionalTemplates without reaching into cache internals.
func (e *userEntry) Options() Options { return e.options }

func NewOptionsCache(ttl time.Duration, loader OptionsLoader) *OptionsCache {
	return &OptionsCache{
		ttl:     ttl,
		loader:  loader,
		entries: make(map[int64]*userEntry),
		log:     defaultLogger{},
	}
}

// Invalidate drops a cached entry so the next Get reloads it, per the
// HTTP-layer write-through invalidation signal.
func (c *OptionsCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Get returns the user's parsed options and its series state, loading
// or refreshing from the backing store when the cache entry is missing,
// stale, or follows a prior parse failure for a user that has since
// had its options corrected.
func (c *OptionsCache) Get(userID int64) (*userEntry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[userID]
	fresh := ok && time.Since(entry.loadedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		if entry.parseFail {
			return nil, false
		}
		return entry, true
	}

	raw, exists, err := c.loader(userID)
	if err != nil || !exists {
		return nil, false
	}

	opts, err := ParseOptions(raw)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.log.Warn(userID, err)
		c.entries[userID] = &userEntry{loadedAt: time.Now(), parseFail: true}
		return nil, false
	}

	var series map[int]*Series
	if ok && entry != nil && entry.series != nil {
		series = entry.series // carry series history across a refresh
	} else {
		series = make(map[int]*Series)
	}
	e := &userEntry{options: opts, series: series, loadedAt: time.Now()}
	c.entries[userID] = e
	return e, true
}
