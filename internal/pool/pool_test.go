package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeingest/internal/decode"
	"spikeingest/internal/model"
)

type fakeDriver struct{}

func (fakeDriver) Exchange() model.Exchange                                { return model.ExchangeBinance }
func (fakeDriver) DialURL(model.Market) string                             { return "wss://example.invalid" }
func (fakeDriver) SubscribeFrames(model.Market, []string) [][]byte        { return nil }
func (fakeDriver) UnsubscribeFrame(model.Market, []string) []byte         { return nil }
func (fakeDriver) PingInterval() time.Duration                            { return 0 }
func (fakeDriver) PingMessage(model.Market) []byte                        { return nil }
func (fakeDriver) IsControlFrame([]byte) (bool, string)                   { return false, "" }
func (fakeDriver) Decode(model.Market, []byte) (decode.Result, error)     { return decode.Result{}, nil }
func (fakeDriver) StreamsPerConnection(model.Market) int                  { return 2 }
func (fakeDriver) SubscribeBatchSize() int                                { return 0 }
func (fakeDriver) ScheduledReconnectInterval() time.Duration              { return time.Hour }
func (fakeDriver) SubscribeAckDeadline() time.Duration                    { return time.Second }
func (fakeDriver) OutboundMessageLimit() (int, time.Duration)             { return 0, 0 }

func newTestPool() *Pool {
	return New(fakeDriver{}, func(model.Trade) {}, func(model.Candle) {}, func(error) {})
}

func TestReconcile_AddedSymbolPicksLeastLoadedConnection(t *testing.T) {
	p := newTestPool()
	c1 := newConnection(p, fakeDriver{}, model.MarketSpot, []string{"AAA"})
	c2 := newConnection(p, fakeDriver{}, model.MarketSpot, []string{})
	p.connections[model.MarketSpot] = []*Connection{c1, c2}

	p.Reconcile(model.MarketSpot, []string{"BBB"}, nil)

	assert.Contains(t, c2.OwnedSymbols(), "BBB")
	assert.NotContains(t, c1.OwnedSymbols(), "BBB")
}

func TestReconcile_AddedSymbolSpawnsNewConnectionWhenAllFull(t *testing.T) {
	p := newTestPool()
	c1 := newConnection(p, fakeDriver{}, model.MarketSpot, []string{"AAA", "BBB"}) // at cap (2)
	p.connections[model.MarketSpot] = []*Connection{c1}

	p.Reconcile(model.MarketSpot, []string{"CCC"}, nil)

	require.Len(t, p.connections[model.MarketSpot], 2)
	assert.NotContains(t, c1.OwnedSymbols(), "CCC")
}

func TestReconcile_RemovedSymbolDropsEmptyConnection(t *testing.T) {
	p := newTestPool()
	c1 := newConnection(p, fakeDriver{}, model.MarketSpot, []string{"AAA"})
	c1.done = make(chan struct{}) // fresh done channel for Stop() to close; closeSocket skips the nil conn
	p.connections[model.MarketSpot] = []*Connection{c1}

	p.Reconcile(model.MarketSpot, nil, []string{"AAA"})

	assert.Len(t, p.connections[model.MarketSpot], 0)
}

func TestRateLimit_AllowsUnderMax(t *testing.T) {
	rl := &rateLimit{max: 2, window: time.Minute}
	start := time.Now()
	rl.wait()
	rl.wait()
	assert.Less(t, time.Since(start), time.Second)
}
