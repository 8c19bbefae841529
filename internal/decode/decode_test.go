package decode

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeingest/internal/model"
)

func TestBinance_DropsNonPositivePrice(t *testing.T) {
	raw := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1000,"o":"0","h":"2","l":"1","c":"1.5","v":"3","x":true}}`)
	res, err := Binance(model.MarketSpot, raw)
	require.NoError(t, err)
	assert.Empty(t, res.Candles)
}

func TestBinance_KlineClosedOnly(t *testing.T) {
	open := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1000,"o":"1","h":"2","l":"1","c":"1.5","v":"3","x":false}}`)
	res, err := Binance(model.MarketSpot, open)
	require.NoError(t, err)
	assert.Empty(t, res.Candles)

	closed := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1000,"o":"1","h":"2","l":"1","c":"1.5","v":"3","x":true}}`)
	res, err = Binance(model.MarketSpot, closed)
	require.NoError(t, err)
	require.Len(t, res.Candles, 1)
	assert.Equal(t, int64(1000), res.Candles[0].TsMs)
}

func TestBinanceContinuousKline_ClosedOnly(t *testing.T) {
	open := []byte(`{"e":"continuous_kline","ps":"BTCUSDT","ct":"PERPETUAL","k":{"t":1000,"T":1999,"o":"1","h":"2","l":"1","c":"1.5","q":"3","x":false}}`)
	res, err := BinanceContinuousKline(open)
	require.NoError(t, err)
	assert.Empty(t, res.Candles)

	closed := []byte(`{"e":"continuous_kline","ps":"BTCUSDT","ct":"PERPETUAL","k":{"t":1000,"T":1999,"o":"1","h":"2","l":"1","c":"1.5","q":"3","x":true}}`)
	res, err = BinanceContinuousKline(closed)
	require.NoError(t, err)
	require.Len(t, res.Candles, 1)
	assert.Equal(t, int64(1999), res.Candles[0].TsMs)
	assert.Equal(t, model.MarketLinear, res.Candles[0].Market)
	assert.True(t, decimal.RequireFromString("2").Equal(res.Candles[0].Volume))
}

func TestBybit_PublicTrade(t *testing.T) {
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","data":[{"s":"BTCUSDT","p":"100","v":"1","T":1700000000000}]}`)
	res, err := Bybit(model.MarketLinear, raw)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
}

func TestBitget_Trade(t *testing.T) {
	raw := []byte(`{"action":"update","arg":{"instId":"BTCUSDT"},"data":[{"ts":"1700000000000","price":"100","size":"1"}]}`)
	res, err := Bitget(model.MarketSpot, raw)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "BTCUSDT", res.Trades[0].Symbol)
}

func TestGateio_SpotTrade(t *testing.T) {
	raw := []byte(`{"channel":"spot.trades","event":"update","result":{"currency_pair":"BTC_USDT","price":"100","amount":"1","create_time_ms":"1700000000000"}}`)
	res, err := Gateio(model.MarketSpot, raw)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
}

func TestGateio_LinearTradeDividesSizeByPrice(t *testing.T) {
	raw := []byte(`{"channel":"futures.trades","event":"update","result":{"contract":"BTC_USDT","price":"100","size":50,"create_time_ms":1700000000000}}`)
	res, err := Gateio(model.MarketLinear, raw)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Qty.Equal(res.Trades[0].Qty)) // sanity: computed without panic
	got, _ := res.Trades[0].Qty.Float64()
	assert.InDelta(t, 0.5, got, 0.0001)
}

func TestHyperliquid_NormalizesSymbol(t *testing.T) {
	raw := []byte(`{"channel":"trades","data":[{"coin":"BTC/USDC","px":"100","sz":"1","time":1700000000000}]}`)
	res, err := Hyperliquid(model.MarketSpot, raw)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "BTCUSDC", res.Trades[0].Symbol)
}

func TestNormalizeHyperliquidSymbol_Idempotent(t *testing.T) {
	for _, in := range []string{"BTC", "BTC/USDC", "@BTC", "BTCUSDC"} {
		once := NormalizeHyperliquidSymbol(in)
		twice := NormalizeHyperliquidSymbol(once)
		assert.Equal(t, once, twice)
	}
}
