// Package metrics declares the Prometheus instrumentation for the
// ingestion pipeline (§4.7), adapted from the teacher's metrics package:
// same promauto declaration style, renamed from user/trading metrics to
// candle/trade/connection/alert/notification metrics.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spikeingest"

var (
	AppInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "app_info", Help: "Static build info.",
	}, []string{"version", "go_version"})

	AppStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "app_start_time_seconds", Help: "Unix timestamp of process start.",
	})

	WSConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_connections_total", Help: "WebSocket connection attempts.",
	}, []string{"exchange", "market", "result"})

	WSActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ws_active_connections", Help: "Currently open WebSocket connections.",
	}, []string{"exchange", "market"})

	WSDisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_disconnects_total", Help: "WebSocket disconnects by reason.",
	}, []string{"exchange", "market", "reason"})

	WSReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_reconnects_total", Help: "Unscheduled reconnects (excludes scheduled lifetime refreshes).",
	}, []string{"exchange", "market"})

	WSMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ws_messages_total", Help: "Raw frames received.",
	}, []string{"exchange", "market"})

	SubscribedSymbols = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "subscribed_symbols", Help: "Symbols currently subscribed.",
	}, []string{"exchange", "market"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "trades_total", Help: "Canonical trades decoded.",
	}, []string{"exchange", "market"})

	CandlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "candles_total", Help: "Candles emitted by the builder.",
	}, []string{"exchange", "market"})

	LastCandleTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "last_candle_time_seconds", Help: "Unix ts of the last emitted candle.",
	}, []string{"exchange", "market"})

	TicksPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "ticks_per_second", Help: "Rolling trade rate.",
	}, []string{"exchange", "market"})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "detections_total", Help: "Spike detections emitted.",
	}, []string{"exchange", "market"})

	AlertsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "alerts_inserted_total", Help: "New canonical alert rows inserted.",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "notifications_sent_total", Help: "Telegram sends by result.",
	}, []string{"result"})

	NotificationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "notifications_in_flight", Help: "In-flight Telegram sends under the concurrency cap.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "Requests to the internal health/metrics server.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds", Help: "Latency of the internal server.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "http_requests_in_flight", Help: "In-flight requests to the internal server.",
	})
)

// Version can be injected at build time.
var Version = "dev"

// Init records static app info at startup.
func Init() {
	AppInfo.WithLabelValues(Version, runtime.Version()).Set(1)
	AppStartTime.Set(float64(time.Now().Unix()))
}

// RecordConnection records a connect attempt's outcome.
func RecordConnection(exchange, market string, success bool) {
	result := "success"
	if !success {
		result = "failed"
	}
	WSConnectionsTotal.WithLabelValues(exchange, market, result).Inc()
	if success {
		WSActiveConnections.WithLabelValues(exchange, market).Inc()
	}
}

// RecordDisconnect records a connection closing for reason.
func RecordDisconnect(exchange, market, reason string) {
	WSDisconnectsTotal.WithLabelValues(exchange, market, reason).Inc()
	WSActiveConnections.WithLabelValues(exchange, market).Dec()
}

// RecordReconnect increments the reconnect counter unless scheduled is
// true, per invariant 6 — scheduled reconnects never count.
func RecordReconnect(exchange, market string, scheduled bool) {
	if scheduled {
		return
	}
	WSReconnectsTotal.WithLabelValues(exchange, market).Inc()

	key := exchMarket{exchange, market}
	snapMu.Lock()
	reconnectCounts[key]++
	snapMu.Unlock()
}

// SnapshotReconnects returns the unscheduled-reconnect count tracked
// alongside ws_reconnects_total, for the exchange_statistics upsert
// task.
func SnapshotReconnects(exchange, market string) int64 {
	key := exchMarket{exchange, market}
	snapMu.Lock()
	defer snapMu.Unlock()
	return reconnectCounts[key]
}

// RecordMessage counts one raw frame received.
func RecordMessage(exchange, market string) {
	WSMessagesTotal.WithLabelValues(exchange, market).Inc()
}

// SetSubscribedSymbols sets the current subscribed-symbol gauge.
func SetSubscribedSymbols(exchange, market string, count int) {
	SubscribedSymbols.WithLabelValues(exchange, market).Set(float64(count))
}

// RecordTrade and RecordCandle feed the per-(exchange,market) counters
// the snapshot task reads to populate ExchangeStatistics.
func RecordTrade(exchange, market string) {
	TradesTotal.WithLabelValues(exchange, market).Inc()
	TrackTrade(exchange, market)
}

func RecordCandle(exchange, market string, tsMs int64) {
	TrackCandle(exchange, market, tsMs)
	CandlesTotal.WithLabelValues(exchange, market).Inc()
	LastCandleTime.WithLabelValues(exchange, market).Set(float64(tsMs) / 1000.0)
}

func RecordDetection(exchange, market string) {
	DetectionsTotal.WithLabelValues(exchange, market).Inc()
}

// exchMarket keys the in-process counters the 15s statistics snapshot
// task reads back (spec §4.7); Prometheus vectors aren't readable
// in-process without scraping, so these are tracked alongside them.
type exchMarket struct{ exchange, market string }

var (
	snapMu          sync.Mutex
	candleCounts    = map[exchMarket]int64{}
	lastCandleMsMap = map[exchMarket]int64{}
	tradeTimestamps = map[exchMarket][]time.Time{}
	reconnectCounts = map[exchMarket]int64{}
)

const ticksWindow = 15 * time.Second

// TrackCandle records a candle for the statistics snapshot, alongside
// RecordCandle's Prometheus counters.
func TrackCandle(exchange, market string, tsMs int64) {
	key := exchMarket{exchange, market}
	snapMu.Lock()
	defer snapMu.Unlock()
	candleCounts[key]++
	lastCandleMsMap[key] = tsMs
}

// TrackTrade records a trade tick for the rolling ticks-per-second rate,
// alongside RecordTrade's Prometheus counter.
func TrackTrade(exchange, market string) {
	key := exchMarket{exchange, market}
	snapMu.Lock()
	defer snapMu.Unlock()
	tradeTimestamps[key] = append(tradeTimestamps[key], time.Now())
}

// SnapshotRates returns the candle count, last candle timestamp, and
// trailing-15-second trade rate for one (exchange, market), for the
// exchange_statistics upsert task.
func SnapshotRates(exchange, market string) (candles int64, lastCandleMs int64, ticksPerSecond float64) {
	key := exchMarket{exchange, market}
	snapMu.Lock()
	defer snapMu.Unlock()

	cutoff := time.Now().Add(-ticksWindow)
	kept := tradeTimestamps[key][:0:0]
	for _, t := range tradeTimestamps[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	tradeTimestamps[key] = kept

	return candleCounts[key], lastCandleMsMap[key], float64(len(kept)) / ticksWindow.Seconds()
}

func RecordNotification(success bool) {
	result := "success"
	if !success {
		result = "failed"
	}
	NotificationsSentTotal.WithLabelValues(result).Inc()
}
