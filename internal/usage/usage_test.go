package usage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage_test.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE rampart_api_key_usage (
		api_key_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		request_count INTEGER NOT NULL DEFAULT 0,
		tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (api_key_id, endpoint, date, hour)
	)`)
	if err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWriterAccumulatesRepeatedDeltasIntoOneBucket(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 16)

	at := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		w.Record(Delta{APIKeyID: "key-1", Endpoint: "/api/v1/security/analyze", Tokens: 10, Cost: 0.01, At: at})
	}
	w.Close()

	buckets, err := QueryRange(context.Background(), db, "key-1", "2026-07-31", "2026-07-31")
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected exactly one bucket, got %d", len(buckets))
	}
	b := buckets[0]
	if b.RequestCount != 5 {
		t.Fatalf("expected request_count 5, got %d", b.RequestCount)
	}
	if b.Tokens != 50 {
		t.Fatalf("expected tokens 50, got %d", b.Tokens)
	}
	if b.Cost < 0.0499 || b.Cost > 0.0501 {
		t.Fatalf("expected cost ~0.05, got %f", b.Cost)
	}
}

func TestWriterSeparatesDistinctHourBuckets(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, 16)

	hour0 := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	hour1 := time.Date(2026, 7, 31, 11, 0, 0, 0, time.UTC)
	w.Record(Delta{APIKeyID: "key-1", Endpoint: "e", Tokens: 1, At: hour0})
	w.Record(Delta{APIKeyID: "key-1", Endpoint: "e", Tokens: 1, At: hour1})
	w.Close()

	buckets, err := QueryRange(context.Background(), db, "key-1", "2026-07-31", "2026-07-31")
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 distinct hour buckets, got %d", len(buckets))
	}
}

func TestTotalsSumsAcrossBuckets(t *testing.T) {
	buckets := []Bucket{
		{RequestCount: 3, Tokens: 100, Cost: 0.1},
		{RequestCount: 2, Tokens: 50, Cost: 0.05},
	}
	req, tok, cost := Totals(buckets)
	if req != 5 || tok != 150 {
		t.Fatalf("unexpected totals: req=%d tok=%d", req, tok)
	}
	if cost < 0.149 || cost > 0.151 {
		t.Fatalf("unexpected cost total: %f", cost)
	}
}
