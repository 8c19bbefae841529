// Package notify implements the Notification Dispatcher (spec §4.6):
// given a Detection, it selects the matching strategy's message
// template (or the user's default, or the fixed fallback), sanitizes it
// to Telegram's HTML whitelist, optionally attaches a chart, and sends
// it through the Telegram Bot API with bounded concurrency and retry.
//
// Grounded on romanzzaa-code-bybit-options-roller/internal/bot/handler.go
// for tgbotapi.BotAPI construction and tgbotapi.NewMessage/bot.Send usage,
// and on other_examples' altcoins-monitor main.go for the minimal
// bot.Send(tgbotapi.NewMessage(...)) shape this dispatcher generalizes.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"spikeingest/internal/errs"
	"spikeingest/internal/logging"
	"spikeingest/internal/model"
	"spikeingest/internal/spike"
)

const (
	maxConcurrentSends = 30
	maxSendAttempts    = 3
)

// OptionsLookup resolves a user's cached, parsed options, backed by
// *spike.Detector's own options cache so the dispatcher never caches
// options independently.
type OptionsLookup func(userID int64) (spike.Options, bool)

// UserLookup resolves the Telegram chat a user's alerts should be sent
// to, and their bot token when the user has configured one.
type UserLookup func(userID int64) (chatID int64, tgToken string, ok bool)

// TradeFetcher fetches recent public trades for a chart, when a
// matching strategy or the user's pair settings request one.
type TradeFetcher func(ctx context.Context, c model.Candle) ([]Tick, error)

// Dispatcher sends one Telegram message per Detection, with a
// process-wide concurrency cap and retry on transient failures.
type Dispatcher struct {
	defaultBot *tgbotapi.BotAPI

	lookupOptions OptionsLookup
	lookupUser    UserLookup
	fetchTrades   TradeFetcher
	charts        *ChartCache

	sem chan struct{}
	log zerologDispatchLogger
}

// zerologDispatchLogger narrows the logging dependency to what this
// file uses, consistent with the rest of the package's logger seams.
type zerologDispatchLogger interface {
	Warn(userID int64, strategy string, err error)
}

type defaultDispatchLogger struct{}

func (defaultDispatchLogger) Warn(userID int64, strategy string, err error) {
	logging.WithComponent("notify").Warn().
		Int64("user_id", userID).Str("strategy", strategy).Err(err).Msg("notification send failed")
}

// NewDispatcher builds a Dispatcher around the process's bot token,
// which is used for every user's sends (a user's own tg_token is not
// used), capping concurrent sends at 30 in-flight Telegram API calls.
func NewDispatcher(defaultToken string, lookupOptions OptionsLookup, lookupUser UserLookup, fetchTrades TradeFetcher) (*Dispatcher, error) {
	bot, err := tgbotapi.NewBotAPI(defaultToken)
	if err != nil {
		return nil, errs.NewAuthError(err, errs.Fields{})
	}
	return &Dispatcher{
		defaultBot:    bot,
		lookupOptions: lookupOptions,
		lookupUser:    lookupUser,
		fetchTrades:   fetchTrades,
		charts:        NewChartCache(),
		sem:           make(chan struct{}, maxConcurrentSends),
		log:           defaultDispatchLogger{},
	}, nil
}

// Dispatch renders, sanitizes, and sends the notification for one
// Detection, blocking until a concurrency slot is free. Safe to call
// from multiple goroutines.
func (d *Dispatcher) Dispatch(ctx context.Context, det model.Detection) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.sem }()

	chatID, _, ok := d.lookupUser(det.UserID)
	if !ok {
		return
	}

	metrics := spike.ComputeMetrics(det.Candle)
	text, sendChart := d.selectTemplate(det, metrics)
	body := SanitizeHTML(text)

	if sendChart && d.fetchTrades != nil {
		d.sendWithChart(ctx, chatID, body, det)
		return
	}

	if err := d.sendText(ctx, chatID, body); err != nil {
		d.log.Warn(det.UserID, firstOrEmpty(det.Matched), err)
	}
}

// selectTemplate implements the template-selection contract: the first
// matched strategy carrying a non-empty messageTemplate wins; failing
// that, the user's own default messageTemplate; failing that, the
// fixed fallback message.
func (d *Dispatcher) selectTemplate(det model.Detection, metrics spike.CandleMetrics) (text string, sendChart bool) {
	opts, ok := d.lookupOptions(det.UserID)
	if !ok {
		return DefaultMessage(det, metrics), false
	}

	matchedSet := make(map[string]bool, len(det.Matched))
	for _, name := range det.Matched {
		matchedSet[name] = true
	}

	for _, strat := range opts.ConditionalTemplates {
		if !strat.Enabled || !matchedSet[strat.Name] {
			continue
		}
		if strat.MessageTemplate != "" {
			return Render(strat.MessageTemplate, det, metrics, opts.Timezone), pairWantsChart(opts, det.Candle)
		}
	}

	if opts.MessageTemplate != "" {
		return Render(opts.MessageTemplate, det, metrics, opts.Timezone), pairWantsChart(opts, det.Candle)
	}

	return DefaultMessage(det, metrics), pairWantsChart(opts, det.Candle)
}

func pairWantsChart(opts spike.Options, c model.Candle) bool {
	_, quote := spike.SplitSymbol(c.Symbol)
	p, ok := opts.PairSettings[spike.PairKey(string(c.Exchange), string(c.Market), quote)]
	return ok && p.SendChart
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// sendText sends a text message, retrying transient failures up to
// maxSendAttempts times with exponential backoff. Bot-API 4xx logical
// errors (invalid chat, blocked bot) are not retried.
func (d *Dispatcher) sendText(ctx context.Context, chatID int64, body string) error {
	msg := tgbotapi.NewMessage(chatID, body)
	msg.ParseMode = "HTML"
	return d.send(ctx, func() error {
		_, err := d.defaultBot.Send(msg)
		return err
	})
}

func (d *Dispatcher) sendWithChart(ctx context.Context, chatID int64, caption string, det model.Detection) {
	key := fmt.Sprintf("%s|%s|%s|%d", det.Candle.Exchange, det.Candle.Market, det.Candle.Symbol, det.Candle.TsMs)
	png, ok := d.charts.Get(key)
	if !ok {
		ticks, err := d.fetchTrades(ctx, det.Candle)
		if err != nil {
			d.log.Warn(det.UserID, firstOrEmpty(det.Matched), err)
			_ = d.sendText(ctx, chatID, caption)
			return
		}
		png, err = RenderChart(ticks, det.Candle.Open)
		if err != nil {
			d.log.Warn(det.UserID, firstOrEmpty(det.Matched), err)
			_ = d.sendText(ctx, chatID, caption)
			return
		}
		d.charts.Put(key, png)
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "chart.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = "HTML"
	err := d.send(ctx, func() error {
		_, err := d.defaultBot.Send(photo)
		return err
	})
	if err != nil {
		d.log.Warn(det.UserID, firstOrEmpty(det.Matched), err)
	}
}

// send runs fn with up to maxSendAttempts tries, doubling the backoff
// delay between attempts, stopping early on a Bot API error carrying an
// ErrorCode (a permanent, non-retryable rejection).
func (d *Dispatcher) send(ctx context.Context, fn func() error) error {
	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *tgbotapi.Error
		if ok := asTgbotapiError(err, &apiErr); ok && apiErr.Code != 0 {
			return errs.NewAuthError(err, errs.Fields{})
		}

		if attempt == maxSendAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return errs.NewTransientNetworkError(lastErr, errs.Fields{})
}

func asTgbotapiError(err error, target **tgbotapi.Error) bool {
	apiErr, ok := err.(*tgbotapi.Error)
	if ok {
		*target = apiErr
	}
	return ok
}
