package pool

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spikeingest/internal/logging"
	"spikeingest/internal/model"
)

// rateLimit bounds events to N per sliding W-second window; used both
// for connection attempts (300 per 300s, one limiter per exchange, applied
// to every exchange) and for Hyperliquid's
// outbound message cap (2000 per minute), per spec §4.2.
type rateLimit struct {
	mu       sync.Mutex
	attempts []time.Time
	max      int
	window   time.Duration
}

func (r *rateLimit) wait() {
	for {
		r.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-r.window)
		kept := r.attempts[:0:0]
		for _, t := range r.attempts {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.attempts = kept
		if len(r.attempts) < r.max {
			r.attempts = append(r.attempts, now)
			r.mu.Unlock()
			return
		}
		oldest := r.attempts[0]
		r.mu.Unlock()
		time.Sleep(time.Until(oldest.Add(r.window)) + time.Second)
	}
}

// Stats is the read-only statistics view for one (exchange, market).
type Stats struct {
	ActiveConnections int
	ActiveSymbols     int
}

// Pool maintains live WebSocket subscriptions for one exchange across
// both markets, reconciling against Symbol Registry deltas.
type Pool struct {
	driver Driver
	log    zerolog.Logger

	onTrade       func(model.Trade)
	onCandleDirect func(model.Candle)
	onError       func(error)

	mu          sync.RWMutex
	connections map[model.Market][]*Connection

	limiters map[model.Exchange]*rateLimit
	limMu    sync.Mutex

	msgLimiters map[model.Exchange]*rateLimit
	msgLimMu    sync.Mutex

	liveSymbolsFn func(exchange model.Exchange, market model.Market, owned []string) []string
}

// New creates a Pool for one exchange driver.
func New(driver Driver, onTrade func(model.Trade), onCandleDirect func(model.Candle), onError func(error)) *Pool {
	return &Pool{
		driver:         driver,
		log:            logging.Exchange(string(driver.Exchange()), ""),
		onTrade:        onTrade,
		onCandleDirect: onCandleDirect,
		onError:        onError,
		connections:    make(map[model.Market][]*Connection),
		limiters:       make(map[model.Exchange]*rateLimit),
		msgLimiters:    make(map[model.Exchange]*rateLimit),
	}
}

// SetLiveSymbolsFn wires the callback the pool uses, after a backoff
// sleep, to filter a reconnecting connection's owned-symbols down to
// those still present in the authoritative SymbolSet.
func (p *Pool) SetLiveSymbolsFn(fn func(exchange model.Exchange, market model.Market, owned []string) []string) {
	p.liveSymbolsFn = fn
}

func (p *Pool) liveSymbols(exchange model.Exchange, market model.Market, owned []string) []string {
	if p.liveSymbolsFn == nil {
		return owned
	}
	return p.liveSymbolsFn(exchange, market, owned)
}

func (p *Pool) rateLimiter(exchange model.Exchange) *rateLimit {
	p.limMu.Lock()
	defer p.limMu.Unlock()
	rl, ok := p.limiters[exchange]
	if !ok {
		rl = &rateLimit{max: 300, window: 300 * time.Second}
		p.limiters[exchange] = rl
	}
	return rl
}

// messageLimiter returns the shared outbound-message-rate accountant for
// exchange, or nil when the driver declares no limit (spec §4.2/§5: only
// Hyperliquid, at 2000/minute, needs one). Every Connection for the same
// exchange shares the one instance, since the limit is process-wide, not
// per-socket.
func (p *Pool) messageLimiter(exchange model.Exchange) *rateLimit {
	max, window := p.driver.OutboundMessageLimit()
	if max <= 0 {
		return nil
	}
	p.msgLimMu.Lock()
	defer p.msgLimMu.Unlock()
	rl, ok := p.msgLimiters[exchange]
	if !ok {
		rl = &rateLimit{max: max, window: window}
		p.msgLimiters[exchange] = rl
	}
	return rl
}

// Start opens connections for the initial symbol set of one market,
// chunked by the driver's per-market streams-per-connection cap.
func (p *Pool) Start(market model.Market, symbols []string) {
	cap := p.driver.StreamsPerConnection(market)
	if cap <= 0 {
		cap = len(symbols)
	}
	for i := 0; i < len(symbols); i += cap {
		end := i + cap
		if end > len(symbols) {
			end = len(symbols)
		}
		p.spawn(market, symbols[i:end])
	}
}

func (p *Pool) spawn(market model.Market, symbols []string) *Connection {
	conn := newConnection(p, p.driver, market, symbols)
	p.mu.Lock()
	p.connections[market] = append(p.connections[market], conn)
	p.mu.Unlock()
	go conn.run()
	return conn
}

// Reconcile applies a Symbol Registry delta: removed symbols are
// unsubscribed from every connection holding them; added symbols are
// appended to the least-loaded connection under cap, or a new
// connection is spawned when all are full.
func (p *Pool) Reconcile(market model.Market, added, removed []string) {
	if len(removed) > 0 {
		p.mu.RLock()
		conns := append([]*Connection(nil), p.connections[market]...)
		p.mu.RUnlock()

		for _, c := range conns {
			owned := c.OwnedSymbols()
			var hit []string
			ownedSet := make(map[string]bool, len(owned))
			for _, s := range owned {
				ownedSet[s] = true
			}
			for _, r := range removed {
				if ownedSet[r] {
					hit = append(hit, r)
				}
			}
			empty := false
			for _, r := range hit {
				empty = c.RemoveSymbols([]string{r})
			}
			if empty {
				c.Stop()
				p.drop(market, c)
			}
		}
	}

	cap := p.driver.StreamsPerConnection(market)
	for _, s := range added {
		target := p.leastLoaded(market, cap)
		if target == nil {
			target = p.spawn(market, nil)
		}
		target.AddSymbols([]string{s})
	}
}

func (p *Pool) leastLoaded(market model.Market, cap int) *Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var best *Connection
	for _, c := range p.connections[market] {
		if cap > 0 && c.Count() >= cap {
			continue
		}
		if best == nil || c.Count() < best.Count() {
			best = c
		}
	}
	return best
}

func (p *Pool) drop(market model.Market, target *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.connections[market]
	for i, c := range list {
		if c == target {
			p.connections[market] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Stop terminates every connection across all markets.
func (p *Pool) Stop() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, conns := range p.connections {
		for _, c := range conns {
			c.Stop()
		}
	}
}

// Statistics reports per-market connection/symbol counts.
func (p *Pool) Statistics() map[model.Market]Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[model.Market]Stats, len(p.connections))
	for market, conns := range p.connections {
		st := Stats{ActiveConnections: len(conns)}
		for _, c := range conns {
			st.ActiveSymbols += c.Count()
		}
		out[market] = st
	}
	return out
}
