// Command spikeingest is the market ingestion and spike-detection
// process: it runs the Symbol Registry, one Connection Pool per
// exchange, the Candle Builder, the Spike Detector, the Alert Store,
// the Notification Dispatcher, and the internal health/metrics server,
// wired together through bootstrap's priority-ordered startup hooks.
//
// Kept from the teacher's main.go: godotenv.Load, the os/signal
// graceful-shutdown skeleton. Everything else is rewritten for this
// process's components.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"spikeingest/bootstrap"
	"spikeingest/internal/api"
	"spikeingest/internal/candle"
	"spikeingest/internal/config"
	"spikeingest/internal/health"
	"spikeingest/internal/logging"
	"spikeingest/internal/metrics"
	"spikeingest/internal/model"
	"spikeingest/internal/notify"
	"spikeingest/internal/pool"
	"spikeingest/internal/pool/exchange"
	"spikeingest/internal/registry"
	"spikeingest/internal/spike"
	"spikeingest/internal/store"
)

// enabledExchanges lists every exchange the Connection Pools hook may
// register a pool for; the periodic statistics/summary tasks walk the
// same list to find each pool under its poolKey.
var enabledExchanges = []model.Exchange{
	model.ExchangeBinance, model.ExchangeBybit, model.ExchangeBitget,
	model.ExchangeGateio, model.ExchangeHyperliquid,
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logging.Init(cfg.Log.Level)
	startedAt := time.Now()
	metrics.Init()

	bootstrap.Register("Database", bootstrap.PriorityDatabase, func(c *bootstrap.Context) error {
		db, err := store.Open(c.Config.Database.Path, c.Config.Database.BusyTimeoutSeconds)
		if err != nil {
			return fmt.Errorf("opening main db: %w", err)
		}
		normDB, err := store.OpenNormalization(c.Config.Database.SymbolNormalizationPath, c.Config.Database.BusyTimeoutSeconds)
		if err != nil {
			return fmt.Errorf("opening normalization db: %w", err)
		}
		c.Set("db", db)
		c.Set("normdb", normDB)
		c.Set("errorLogger", store.NewErrorLogger(db, 256))
		return nil
	})

	bootstrap.Register("SymbolRegistry", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		reg := registry.New(func(delta registry.Delta) {
			logging.WithComponent("registry").Info().
				Str("exchange", string(delta.Exchange)).Str("market", string(delta.Market)).
				Int("added", len(delta.Added)).Int("removed", len(delta.Removed)).
				Msg("symbol set changed")
			if p, ok := c.Get(poolKey(delta.Exchange)); ok {
				p.(*pool.Pool).Reconcile(delta.Market, delta.Added, delta.Removed)
			}
			metrics.SetSubscribedSymbols(string(delta.Exchange), string(delta.Market), len(reg.SetFor(delta.Exchange, delta.Market).Snapshot()))
		})
		hyperliquid := registry.NewHyperliquidLister()
		if normDB, ok := c.Get("normdb"); ok {
			db := normDB.(*store.DB)
			hyperliquid.SetNormalizationRecorder(func(exchange, market, original, normalized string) {
				if err := db.RecordNormalization(context.Background(), exchange, market, original, normalized); err != nil {
					logging.WithComponent("registry").Warn().Err(err).Msg("failed to record symbol normalization")
				}
			})
		}

		reg.Register(model.ExchangeBinance, registry.NewBinanceLister())
		reg.Register(model.ExchangeBybit, registry.NewBybitLister())
		reg.Register(model.ExchangeBitget, registry.NewBitgetLister())
		reg.Register(model.ExchangeGateio, registry.NewGateioLister())
		reg.Register(model.ExchangeHyperliquid, hyperliquid)
		c.Set("registry", reg)
		return nil
	})

	bootstrap.Register("CandleBuilder", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		builder := candle.New(
			func(cd model.Candle) {
				metrics.RecordCandle(string(cd.Exchange), string(cd.Market), cd.TsMs)
				if detectorIface, ok := c.Get("detector"); ok {
					detectorIface.(*spike.Detector).HandleCandle(cd)
				}
			},
			func(err error) {
				logging.WithComponent("candle").Warn().Err(err).Msg("trade rejected")
				if el, ok := c.Get("errorLogger"); ok {
					el.(*store.ErrorLogger).Enqueue(store.RecordFromError("data_error", err))
				}
			},
		)
		c.Set("builder", builder)
		return nil
	})

	bootstrap.Register("SpikeDetector", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		db := c.MustGet("db").(*store.DB)
		userIndex := store.NewUserIndex(db, 30*time.Second)
		ttl := time.Duration(c.Config.Detector.OptionsCacheTTLSeconds) * time.Second
		cache := spike.NewOptionsCache(ttl, func(userID int64) (string, bool, error) {
			return db.GetUserOptions(context.Background(), userID)
		})

		det := spike.NewDetector(cache, userIndex, func(d model.Detection) {
			metrics.DetectionsTotal.WithLabelValues(string(d.Candle.Exchange), string(d.Candle.Market)).Inc()
			m := spike.ComputeMetrics(d.Candle)
			id, err := db.AddAlert(context.Background(), d.Candle,
				m.Delta.InexactFloat64(), m.WickPct.InexactFloat64(), m.VolumeUSDT.InexactFloat64(), d.UserID, "")
			if err != nil {
				logging.WithComponent("spike").Warn().Err(err).Msg("failed to persist alert")
				return
			}
			if id > 0 {
				metrics.AlertsInsertedTotal.Inc()
			}
			if dispatcherIface, ok := c.Get("dispatcher"); ok {
				go dispatcherIface.(*notify.Dispatcher).Dispatch(context.Background(), d)
			}
		})
		c.Set("detector", det)
		c.Set("userIndex", userIndex)
		return nil
	})

	bootstrap.Register("NotificationDispatcher", bootstrap.PriorityCore, func(c *bootstrap.Context) error {
		db := c.MustGet("db").(*store.DB)

		lookupOptions := func(userID int64) (spike.Options, bool) {
			detectorIface, ok := c.Get("detector")
			if !ok {
				return spike.Options{}, false
			}
			return detectorIface.(*spike.Detector).LookupOptions(userID)
		}
		lookupUser := func(userID int64) (int64, string, bool) {
			u, ok, err := db.GetUser(context.Background(), userID)
			if err != nil || !ok {
				return 0, "", false
			}
			return u.ChatID, u.TgToken, true
		}
		fetchTrades := binanceTradeFetcher()

		if c.Config.Telegram.BotToken == "" {
			logging.WithComponent("notify").Warn().Msg("no telegram bot token configured, notifications disabled")
			return nil
		}
		disp, err := notify.NewDispatcher(c.Config.Telegram.BotToken, lookupOptions, lookupUser, fetchTrades)
		if err != nil {
			return fmt.Errorf("starting notification dispatcher: %w", err)
		}
		c.Set("dispatcher", disp)
		return nil
	})

	bootstrap.Register("ConnectionPools", bootstrap.PriorityBusiness, func(c *bootstrap.Context) error {
		builder := c.MustGet("builder").(*candle.Builder)
		reg := c.MustGet("registry").(*registry.Registry)

		drivers := map[model.Exchange]pool.Driver{
			model.ExchangeBinance:     exchange.Binance{},
			model.ExchangeBybit:       exchange.Bybit{},
			model.ExchangeBitget:      exchange.NewBitget(),
			model.ExchangeGateio:      exchange.Gateio{},
			model.ExchangeHyperliquid: exchange.Hyperliquid{},
		}

		for ex, driver := range drivers {
			exCfg, ok := c.Config.Exchanges[string(ex)]
			if ok && !exCfg.Enabled {
				continue
			}
			driver := driver
			ex := ex
			p := pool.New(driver,
				func(t model.Trade) {
					metrics.RecordTrade(string(t.Exchange), string(t.Market))
					builder.AddTrade(t.Exchange, t.Market, t.Symbol, t.Price, t.Qty, t.TsMs)
				},
				func(cd model.Candle) {
					metrics.RecordCandle(string(cd.Exchange), string(cd.Market), cd.TsMs)
					if detectorIface, ok := c.Get("detector"); ok {
						detectorIface.(*spike.Detector).HandleCandle(cd)
					}
				},
				func(err error) {
					logging.WithComponent("pool").Warn().Err(err).Str("exchange", string(ex)).Msg("pool error")
					if el, ok := c.Get("errorLogger"); ok {
						el.(*store.ErrorLogger).Enqueue(store.RecordFromError("transient_network_error", err))
					}
				},
			)
			p.SetLiveSymbolsFn(func(exch model.Exchange, market model.Market, owned []string) []string {
				return reg.SetFor(exch, market).Filter(owned)
			})
			c.Set(poolKey(ex), p)
		}
		return nil
	})

	bootstrap.Register("StartPoolsAndRegistry", bootstrap.PriorityBackground, func(c *bootstrap.Context) error {
		reg := c.MustGet("registry").(*registry.Registry)
		ctx := context.Background()

		// The first refresh populates every Set from empty, so its delta
		// is the full initial symbol list; Registry's onDelta callback
		// (registered above) routes it straight to each Pool's Reconcile,
		// which spawns connections as needed — no separate Start call.
		reg.RefreshOnce(ctx)
		go reg.Run(ctx)
		return nil
	})

	bootstrap.Register("PeriodicTasks", bootstrap.PriorityBackground, func(c *bootstrap.Context) error {
		db := c.MustGet("db").(*store.DB)

		monitor, err := health.NewMonitor()
		if err != nil {
			return fmt.Errorf("starting health monitor: %w", err)
		}

		go runStatisticsSnapshot(c, db)
		go runExchangeSummary(c)
		go runHealthMonitor(monitor)
		return nil
	})

	ctx := bootstrap.NewContext(cfg)
	if err := bootstrap.Run(ctx); err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	sentinelPath := "data/spikeingest.started"
	if err := api.WriteStartSentinel(sentinelPath, startedAt); err != nil {
		logging.WithComponent("api").Warn().Err(err).Msg("failed to write start sentinel")
	}

	var invalidator api.Invalidator
	if detIface, ok := ctx.Get("detector"); ok {
		invalidator = detIface.(*spike.Detector)
	}
	server := api.NewServer(fmt.Sprintf(":%d", cfg.MetricsPort), invalidator, startedAt)
	go func() {
		if err := server.Start(); err != nil {
			logging.WithComponent("api").Error().Err(err).Msg("internal server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logging.WithComponent("main").Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if dbIface, ok := ctx.Get("db"); ok {
		_ = dbIface.(*store.DB).Close()
	}
	if normIface, ok := ctx.Get("normdb"); ok {
		_ = normIface.(*store.DB).Close()
	}
	if elIface, ok := ctx.Get("errorLogger"); ok {
		elIface.(*store.ErrorLogger).Stop()
	}
}

func poolKey(ex model.Exchange) string { return "pool:" + string(ex) }

// runStatisticsSnapshot implements the 15-second exchange_statistics
// upsert task (spec.md §4.7): one row per (exchange, market) combining
// each Pool's live connection/symbol counts with the candle/tick
// counters internal/metrics tracks alongside its Prometheus vectors.
func runStatisticsSnapshot(c *bootstrap.Context, db *store.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		for _, ex := range enabledExchanges {
			pIface, ok := c.Get(poolKey(ex))
			if !ok {
				continue
			}
			p := pIface.(*pool.Pool)
			for market, st := range p.Statistics() {
				candles, lastCandleMs, ticksPerSecond := metrics.SnapshotRates(string(ex), string(market))
				batchesPerWS := 0
				if st.ActiveConnections > 0 {
					batchesPerWS = st.ActiveSymbols / st.ActiveConnections
				}
				stat := model.ExchangeStatistics{
					Exchange:       ex,
					Market:         market,
					SymbolsCount:   st.ActiveSymbols,
					WSConnections:  st.ActiveConnections,
					BatchesPerWS:   batchesPerWS,
					Reconnects:     metrics.SnapshotReconnects(string(ex), string(market)),
					CandlesCount:   candles,
					LastCandleTime: lastCandleMs,
					TicksPerSecond: ticksPerSecond,
				}
				if err := db.UpsertStatistics(context.Background(), stat); err != nil {
					logging.WithComponent("stats").Warn().Err(err).
						Str("exchange", string(ex)).Str("market", string(market)).
						Msg("failed to upsert exchange statistics")
				}
			}
		}
	}
}

// runExchangeSummary implements the 30-second per-(exchange,market)
// text summary log (spec.md §4.7): a compact human-readable line an
// operator can tail, separate from the machine-readable Prometheus and
// exchange_statistics outputs.
func runExchangeSummary(c *bootstrap.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	log := logging.WithComponent("summary")
	for range ticker.C {
		for _, ex := range enabledExchanges {
			pIface, ok := c.Get(poolKey(ex))
			if !ok {
				continue
			}
			p := pIface.(*pool.Pool)
			for market, st := range p.Statistics() {
				candles, lastCandleMs, ticksPerSecond := metrics.SnapshotRates(string(ex), string(market))
				reconnects := metrics.SnapshotReconnects(string(ex), string(market))
				log.Info().
					Str("exchange", string(ex)).Str("market", string(market)).
					Int("connections", st.ActiveConnections).Int("symbols", st.ActiveSymbols).
					Int64("reconnects", reconnects).Int64("candles", candles).
					Float64("ticks_per_second", ticksPerSecond).Int64("last_candle_ms", lastCandleMs).
					Msgf("%s %s: %d conns, %d symbols, %.1f ticks/s, %d candles",
						ex, market, st.ActiveConnections, st.ActiveSymbols, ticksPerSecond, candles)
			}
		}
	}
}

// runHealthMonitor implements the 60-second process health sampler
// (spec.md §4.7).
func runHealthMonitor(monitor *health.Monitor) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		monitor.Sample()
	}
}

// binanceTradeFetcher fetches recent public trades from Binance for
// chart rendering; spec §4.6 scopes chart support to one exchange's
// REST shape, and Binance is the only exchange with a grounded SDK
// client in this pack (internal/registry.BinanceLister).
func binanceTradeFetcher() notify.TradeFetcher {
	spotClient := binance.NewClient("", "")
	return func(ctx context.Context, c model.Candle) ([]notify.Tick, error) {
		if c.Market != model.MarketSpot {
			return nil, fmt.Errorf("chart data only supported for binance spot")
		}
		trades, err := spotClient.NewRecentTradesService().Symbol(c.Symbol).Limit(1000).Do(ctx)
		if err != nil {
			return nil, err
		}
		ticks := make([]notify.Tick, 0, len(trades))
		for _, t := range trades {
			price, err := decimal.NewFromString(t.Price)
			if err != nil {
				continue
			}
			ticks = append(ticks, notify.Tick{
				Price: price,
				IsBuy: !t.IsBuyerMaker,
				TsMs:  t.Time,
			})
		}
		return ticks, nil
	}
}
