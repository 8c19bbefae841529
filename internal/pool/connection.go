package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"spikeingest/internal/errs"
	"spikeingest/internal/metrics"
	"spikeingest/internal/model"
)

type state int

const (
	stateConnecting state = iota
	stateSubscribing
	stateRunning
	stateReconnectBackoff
	stateClosing
)

// Connection is one WebSocket socket owning a slice of symbols. It is
// the single writer of its own owned-symbols slice; the Pool mutates it
// only by calling Connection methods that take the write lock.
type Connection struct {
	ID       string
	Exchange model.Exchange
	Market   model.Market

	driver Driver
	pool   *Pool
	log    zerolog.Logger

	mu      sync.RWMutex
	symbols []string

	wasConnected bool
	attempt      int

	conn *websocket.Conn
	done chan struct{}

	closeOnce sync.Once
}

func newConnection(p *Pool, driver Driver, market model.Market, symbols []string) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:       id,
		Exchange: driver.Exchange(),
		Market:   market,
		driver:   driver,
		pool:     p,
		log:      p.log.With().Str("connection_id", id).Logger(),
		symbols:  append([]string(nil), symbols...),
		done:     make(chan struct{}),
	}
}

// OwnedSymbols returns a snapshot of the connection's current symbols.
func (c *Connection) OwnedSymbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.symbols...)
}

// Count returns the number of owned symbols.
func (c *Connection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols)
}

// AddSymbols appends symbols and, if connected, sends a live subscribe
// frame for them.
func (c *Connection) AddSymbols(symbols []string) {
	c.mu.Lock()
	c.symbols = append(c.symbols, symbols...)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		for _, frame := range c.driver.SubscribeFrames(c.Market, symbols) {
			_ = c.writeMessageRateLimited(frame)
		}
	}
}

// RemoveSymbols drops symbols from ownership and, if connected, sends
// an unsubscribe frame. Returns true if the connection now owns zero
// symbols (caller should close it).
func (c *Connection) RemoveSymbols(symbols []string) bool {
	remove := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		remove[s] = true
	}

	c.mu.Lock()
	kept := c.symbols[:0:0]
	for _, s := range c.symbols {
		if !remove[s] {
			kept = append(kept, s)
		}
	}
	c.symbols = kept
	empty := len(c.symbols) == 0
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.writeMessageRateLimited(c.driver.UnsubscribeFrame(c.Market, symbols))
	}
	return empty
}

// run drives the connection's state machine until ctx-equivalent Stop
// is called (closing done) or the connection terminates permanently
// (no symbols left after a SymbolSet reconciliation).
func (c *Connection) run() {
	st := stateConnecting
	for {
		select {
		case <-c.done:
			return
		default:
		}

		switch st {
		case stateConnecting:
			st = c.doConnect()
		case stateSubscribing:
			st = c.doSubscribe()
		case stateRunning:
			st = c.doRun()
		case stateReconnectBackoff:
			st = c.doBackoff()
		case stateClosing:
			c.closeSocket()
			if c.Count() == 0 {
				return
			}
			st = stateConnecting
		}
	}
}

func (c *Connection) doConnect() state {
	c.pool.rateLimiter(c.Exchange).wait()

	url := c.driver.DialURL(c.Market)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		c.log.Warn().Err(err).Str("url", url).Msg("dial failed")
		metrics.RecordConnection(string(c.Exchange), string(c.Market), false)
		return stateReconnectBackoff
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	metrics.RecordConnection(string(c.Exchange), string(c.Market), true)
	return stateSubscribing
}

func (c *Connection) doSubscribe() state {
	symbols := c.OwnedSymbols()
	batch := c.driver.SubscribeBatchSize()
	if batch <= 0 {
		batch = len(symbols)
		if batch == 0 {
			batch = 1
		}
	}

	for i := 0; i < len(symbols); i += batch {
		end := i + batch
		if end > len(symbols) {
			end = len(symbols)
		}
		for _, frame := range c.driver.SubscribeFrames(c.Market, symbols[i:end]) {
			if err := c.writeMessageRateLimited(frame); err != nil {
				c.log.Warn().Err(err).Msg("subscribe write failed")
				return stateReconnectBackoff
			}
		}
	}

	// Confirmation is either an explicit ack or the first data frame;
	// doRun's read loop treats any successfully parsed frame as proof
	// of life, so transition straight to Running and let the deadline
	// be enforced there via a short read-with-timeout on first pass.
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return stateReconnectBackoff
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.driver.SubscribeAckDeadline()))
	return stateRunning
}

func (c *Connection) writeMessage(b []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

// writeMessageRateLimited writes a non-ping outbound frame, blocking on
// the exchange's shared message-rate accountant first when the driver
// declares one (spec §4.2/§5: Hyperliquid's 2000/minute cap). PING
// frames must never go through this path.
func (c *Connection) writeMessageRateLimited(b []byte) error {
	if rl := c.pool.messageLimiter(c.Exchange); rl != nil {
		rl.wait()
	}
	return c.writeMessage(b)
}

func (c *Connection) doRun() state {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return stateReconnectBackoff
	}

	c.wasConnected = true
	c.attempt = 0

	scheduledAt := time.Now().Add(c.driver.ScheduledReconnectInterval())
	pingInterval := c.driver.PingInterval()

	stopPing := make(chan struct{})
	var wg sync.WaitGroup
	if pingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					_ = c.writeMessage(c.driver.PingMessage(c.Market))
				case <-stopPing:
					return
				}
			}
		}()
	}
	defer func() {
		close(stopPing)
		wg.Wait()
	}()

	// The first read runs under the subscribe-ack deadline doSubscribe
	// set; once any frame has arrived, reads use the idle deadline.
	confirmed := false
	for {
		select {
		case <-c.done:
			return stateClosing
		default:
		}

		if time.Now().After(scheduledAt) {
			metrics.RecordReconnect(string(c.Exchange), string(c.Market), true)
			return stateClosing
		}

		if confirmed {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn().Err(err).Msg("read error")
			metrics.RecordDisconnect(string(c.Exchange), string(c.Market), "read_error")
			return stateReconnectBackoff
		}
		confirmed = true
		metrics.RecordMessage(string(c.Exchange), string(c.Market))

		if handled, rejected := c.driver.IsControlFrame(raw); handled {
			if rejected != "" {
				c.RemoveSymbols([]string{rejected})
				c.log.Warn().Str("symbol", rejected).Msg("symbol rejected by exchange")
				if c.Count() == 0 {
					return stateClosing
				}
			}
			continue
		}

		result, err := c.driver.Decode(c.Market, raw)
		if err != nil {
			c.pool.onError(errs.NewDataError(err, errs.Fields{
				Exchange: string(c.Exchange), Market: string(c.Market), ConnectionID: c.ID,
			}))
			continue
		}
		for _, tr := range result.Trades {
			c.pool.onTrade(tr)
		}
		for _, cd := range result.Candles {
			c.pool.onCandleDirect(cd)
		}
	}
}

func (c *Connection) doBackoff() state {
	metrics.RecordReconnect(string(c.Exchange), string(c.Market), false)
	c.closeSocket()

	delay := time.Duration(1<<uint(min(c.attempt, 6))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	c.attempt++

	select {
	case <-time.After(delay):
	case <-c.done:
		return stateClosing
	}

	live := c.pool.liveSymbols(c.Exchange, c.Market, c.OwnedSymbols())
	c.mu.Lock()
	c.symbols = live
	c.mu.Unlock()

	if len(live) == 0 {
		return stateClosing
	}
	return stateConnecting
}

func (c *Connection) closeSocket() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Stop terminates the connection's run loop and closes its socket.
func (c *Connection) Stop() {
	c.closeOnce.Do(func() { close(c.done) })
	c.closeSocket()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
