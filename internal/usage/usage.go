// Package usage implements per-API-key usage accounting (spec §4.7).
// Every request that completes through an API key records a delta
// (request count, tokens, cost) against an (api_key_id, endpoint,
// date, hour) bucket. The Open Question on counter atomicity (spec's
// design notes offered a single-writer goroutine OR a relational
// upsert) is resolved here by combining both: a single background
// goroutine drains a channel of deltas and applies each one as a
// SQLite upsert, so there is exactly one writer goroutine and the
// persistence itself is still crash-safe and restart-idempotent.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Delta is one usage increment to apply to a bucket.
type Delta struct {
	APIKeyID string
	Endpoint string
	Tokens   int64
	Cost     float64
	At       time.Time
}

// Bucket is the aggregated usage for one (api key, endpoint, hour).
type Bucket struct {
	APIKeyID     string
	Endpoint     string
	Date         string
	Hour         int
	RequestCount int64
	Tokens       int64
	Cost         float64
}

// Writer owns the single goroutine permitted to write to the usage
// table, serializing all increments through a buffered channel.
type Writer struct {
	db      *sql.DB
	deltas  chan Delta
	done    chan struct{}
	flushed chan struct{}
}

// NewWriter starts the writer's background goroutine. Callers must call
// Close during shutdown to drain pending deltas before exit.
func NewWriter(db *sql.DB, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	w := &Writer{
		db:      db,
		deltas:  make(chan Delta, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	go w.run()
	return w
}

// Record enqueues a usage delta. It never blocks the caller on the
// database; back-pressure only occurs if the channel buffer is full, in
// which case Record blocks until a slot frees up.
func (w *Writer) Record(d Delta) {
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	select {
	case w.deltas <- d:
	case <-w.done:
	}
}

// Close stops accepting new deltas and waits for the writer goroutine to
// drain everything already enqueued.
func (w *Writer) Close() {
	close(w.done)
	<-w.flushed
}

func (w *Writer) run() {
	defer close(w.flushed)
	for {
		select {
		case d := <-w.deltas:
			if err := w.apply(d); err != nil {
				slog.Error("usage writer: failed to apply delta", "error", err, "api_key_id", d.APIKeyID)
			}
		case <-w.done:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case d := <-w.deltas:
					if err := w.apply(d); err != nil {
						slog.Error("usage writer: failed to apply delta during drain", "error", err, "api_key_id", d.APIKeyID)
					}
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) apply(d Delta) error {
	date := d.At.Format("2006-01-02")
	hour := d.At.Hour()
	_, err := w.db.Exec(`
		INSERT INTO rampart_api_key_usage (api_key_id, endpoint, date, hour, request_count, tokens, cost)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(api_key_id, endpoint, date, hour) DO UPDATE SET
			request_count = request_count + 1,
			tokens = tokens + excluded.tokens,
			cost = cost + excluded.cost`,
		d.APIKeyID, d.Endpoint, date, hour, d.Tokens, d.Cost,
	)
	if err != nil {
		return fmt.Errorf("upserting usage bucket: %w", err)
	}
	return nil
}

// QueryRange reads every bucket for apiKeyID between fromDate and
// toDate (inclusive, "2006-01-02" format), for usage-reporting
// endpoints.
func QueryRange(ctx context.Context, db *sql.DB, apiKeyID, fromDate, toDate string) ([]Bucket, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT api_key_id, endpoint, date, hour, request_count, tokens, cost
		FROM rampart_api_key_usage
		WHERE api_key_id = ? AND date >= ? AND date <= ?
		ORDER BY date, hour`, apiKeyID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.APIKeyID, &b.Endpoint, &b.Date, &b.Hour, &b.RequestCount, &b.Tokens, &b.Cost); err != nil {
			return nil, fmt.Errorf("scanning usage bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Totals sums every bucket in a slice, for summary responses.
func Totals(buckets []Bucket) (requests, tokens int64, cost float64) {
	for _, b := range buckets {
		requests += b.RequestCount
		tokens += b.Tokens
		cost += b.Cost
	}
	return
}
