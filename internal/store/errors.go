package store

import (
	"context"
	"time"

	"spikeingest/internal/errs"
	"spikeingest/internal/logging"
)

// ErrorRecord is one row destined for the errors table.
type ErrorRecord struct {
	Exchange     string
	ErrorType    string
	ErrorMessage string
	ConnectionID string
	Market       string
	Symbol       string
	StackTrace   string
}

// ErrorLogger is the single-writer queue spec §7 requires so that
// persisting error records never blocks the hot path: callers enqueue
// non-blockingly and a background goroutine drains to SQLite.
type ErrorLogger struct {
	db    *DB
	queue chan ErrorRecord
	done  chan struct{}
}

// NewErrorLogger starts the background writer. capacity bounds memory
// under a burst; records are dropped, each with its own warning log
// line, if the queue is full rather than ever blocking a caller.
func NewErrorLogger(db *DB, capacity int) *ErrorLogger {
	l := &ErrorLogger{db: db, queue: make(chan ErrorRecord, capacity), done: make(chan struct{})}
	go l.run()
	return l
}

func (l *ErrorLogger) Enqueue(rec ErrorRecord) {
	select {
	case l.queue <- rec:
	default:
		logging.WithComponent("store").Warn().Str("error_type", rec.ErrorType).Msg("error queue full, dropping record")
	}
}

func (l *ErrorLogger) run() {
	for {
		select {
		case rec := <-l.queue:
			l.write(rec)
		case <-l.done:
			return
		}
	}
}

func (l *ErrorLogger) write(rec ErrorRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO errors (exchange, error_type, error_message, connection_id, market, symbol, stack_trace)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Exchange, rec.ErrorType, rec.ErrorMessage, rec.ConnectionID, rec.Market, rec.Symbol, rec.StackTrace)
	if err != nil {
		logging.WithComponent("store").Error().Err(err).Msg("failed to persist error record")
	}
}

func (l *ErrorLogger) Stop() { close(l.done) }

// RecordFromError builds an ErrorRecord from one of internal/errs'
// typed errors, used by every component that calls into ErrorLogger.
func RecordFromError(errorType string, err error) ErrorRecord {
	rec := ErrorRecord{ErrorType: errorType, ErrorMessage: err.Error()}
	type fielder interface{ Fields() errs.Fields }
	if fe, ok := err.(fielder); ok {
		f := fe.Fields()
		rec.Exchange = f.Exchange
		rec.Market = f.Market
		rec.Symbol = f.Symbol
		rec.ConnectionID = f.ConnectionID
	}
	return rec
}
