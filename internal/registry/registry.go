// Package registry implements the Symbol Registry (§4.1): periodic
// per-(exchange,market) REST refresh, diffed against the last-known
// SymbolSet, emitting add/remove deltas to the Connection Pool.
//
// Grounded on the teacher's market/data_source.go per-exchange URL
// table (generalized from trading-config URLs to listing-endpoint
// URLs for all five exchanges) and market/api_client.go's GET+decode
// pattern, plus other_examples/alert-engine.go's diff-then-emit loop.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"spikeingest/internal/errs"
	"spikeingest/internal/logging"
	"spikeingest/internal/model"
)

// Lister fetches the tradable symbol list for one (exchange, market).
// Implementations are the five exchange-specific REST listing calls.
type Lister interface {
	List(ctx context.Context, market model.Market) ([]string, error)
}

// Delta is an add/remove diff emitted to subscribers.
type Delta struct {
	Exchange model.Exchange
	Market   model.Market
	Added    []string
	Removed  []string
}

// Set is the in-memory, per-(exchange,market) authoritative symbol
// list, guarded by its own RWMutex: the registry's refresh writes under
// it and the Connection Pool reads it through Filter after a reconnect
// backoff. The spot and linear Sets of one exchange have separate locks,
// and the pool's Reconcile takes neither.
type Set struct {
	mu      sync.RWMutex
	symbols map[string]bool
}

func newSet() *Set { return &Set{symbols: make(map[string]bool)} }

// Contains reports whether symbol is currently in the set.
func (s *Set) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbols[symbol]
}

// Snapshot returns every symbol currently in the set, used by callers
// that need the full current membership rather than a filtered subset.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// Filter returns the subset of candidates still present in the set,
// used by the Connection Pool after a reconnect-backoff sleep.
func (s *Set) Filter(candidates []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := candidates[:0:0]
	for _, c := range candidates {
		if s.symbols[c] {
			out = append(out, c)
		}
	}
	return out
}

func (s *Set) replace(symbols []string) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		next[sym] = true
	}

	var added, removed []string
	for sym := range next {
		if !s.symbols[sym] {
			added = append(added, sym)
		}
	}
	for sym := range s.symbols {
		if !next[sym] {
			removed = append(removed, sym)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	s.symbols = next
	return Delta{Added: added, Removed: removed}
}

// Registry periodically refreshes every registered (exchange, market)
// symbol set and publishes deltas.
type Registry struct {
	listers  map[model.Exchange]Lister
	sets     map[model.Exchange]map[model.Market]*Set
	onDelta  func(Delta)
	interval time.Duration
}

// New creates a Registry. onDelta is invoked once for each refreshed
// (exchange, market) whose symbol set changed; a refresh with no
// additions or removals emits nothing.
func New(onDelta func(Delta)) *Registry {
	return &Registry{
		listers:  make(map[model.Exchange]Lister),
		sets:     make(map[model.Exchange]map[model.Market]*Set),
		onDelta:  onDelta,
		interval: 5 * time.Minute,
	}
}

// Register wires one exchange's Lister and preallocates its per-market
// sets for spot and linear.
func (r *Registry) Register(exchange model.Exchange, lister Lister) {
	r.listers[exchange] = lister
	r.sets[exchange] = map[model.Market]*Set{
		model.MarketSpot:   newSet(),
		model.MarketLinear: newSet(),
	}
}

// SetFor returns the live Set for (exchange, market), used by the pool
// to filter owned-symbols after a reconnect backoff.
func (r *Registry) SetFor(exchange model.Exchange, market model.Market) *Set {
	return r.sets[exchange][market]
}

// RefreshOnce runs one refresh pass for every registered
// (exchange, market) pair, used both for the process-start refresh
// (spec §4.1: "first refresh also runs at process start before any
// connections open") and for each periodic tick.
func (r *Registry) RefreshOnce(ctx context.Context) {
	for exchange, lister := range r.listers {
		for _, market := range []model.Market{model.MarketSpot, model.MarketLinear} {
			r.refreshOne(ctx, exchange, market, lister)
		}
	}
}

func (r *Registry) refreshOne(ctx context.Context, exchange model.Exchange, market model.Market, lister Lister) {
	log := logging.Exchange(string(exchange), string(market))
	symbols, err := lister.List(ctx, market)
	if err != nil {
		log.Warn().Err(err).Msg("symbol refresh failed")
		return
	}

	delta := r.sets[exchange][market].replace(symbols)
	if len(delta.Added) > 0 || len(delta.Removed) > 0 {
		delta.Exchange = exchange
		delta.Market = market
		r.onDelta(delta)
	}
}

// Run starts the periodic refresh loop; it blocks until ctx is
// cancelled. Callers should run it in its own goroutine after an
// initial RefreshOnce.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// httpGetJSON is the shared REST helper the per-exchange Listers use,
// grounded on market/api_client.go's GetExchangeInfo retry-free GET.
func httpGetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.NewDataError(err, errs.Fields{}) // malformed request, permanent
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.NewTransientNetworkError(err, errs.Fields{})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errs.NewTransientNetworkError(fmt.Errorf("status %d", resp.StatusCode), errs.Fields{})
	}
	if resp.StatusCode >= 400 {
		return errs.NewDataError(fmt.Errorf("status %d", resp.StatusCode), errs.Fields{}) // malformed/invalid response, permanent
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NewTransientNetworkError(err, errs.Fields{})
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.NewDataError(err, errs.Fields{}) // malformed response, permanent
	}
	return nil
}
