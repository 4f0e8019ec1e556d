package storage

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"ocr-lab/domain"
)

func testDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult() *domain.CompleteResult {
	return &domain.CompleteResult{
		Result: &domain.EngineResult{
			Engine:     domain.EngineTesseract,
			Text:       "cached invoice text",
			Confidence: 0.91,
		},
		Method:        "single",
		Agreement:     1.0,
		Score:         0.87,
		CorrelationID: "req-1",
		CompletedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestResultCache_RoundTrip(t *testing.T) {
	req := require.New(t)
	cache := NewResultCache(testDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour)
	ctx := context.Background()

	stored := sampleResult()
	req.NoError(cache.Store(ctx, "digest|eng", stored))

	fetched, ok, err := cache.Lookup(ctx, "digest|eng")
	req.NoError(err)
	req.True(ok)
	req.Equal(stored.Result.Text, fetched.Result.Text)
	req.InDelta(stored.Score, fetched.Score, 1e-9)
	req.Equal(stored.Method, fetched.Method)
}

func TestResultCache_Miss(t *testing.T) {
	req := require.New(t)
	cache := NewResultCache(testDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour)

	result, ok, err := cache.Lookup(context.Background(), "never stored")
	req.NoError(err)
	req.False(ok)
	req.Nil(result)
}

func TestResultCache_KeysAreIsolated(t *testing.T) {
	req := require.New(t)
	cache := NewResultCache(testDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour)
	ctx := context.Background()

	a := sampleResult()
	b := sampleResult()
	b.Result.Text = "other text"

	req.NoError(cache.Store(ctx, "digest|eng", a))
	req.NoError(cache.Store(ctx, "digest|fra", b))

	fetched, ok, err := cache.Lookup(ctx, "digest|fra")
	req.NoError(err)
	req.True(ok)
	req.Equal("other text", fetched.Result.Text)
}

func TestResultCache_ExpiredEntryIsAMiss(t *testing.T) {
	req := require.New(t)
	cache := NewResultCache(testDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), 50*time.Millisecond)
	ctx := context.Background()

	req.NoError(cache.Store(ctx, "digest|eng", sampleResult()))
	time.Sleep(1100 * time.Millisecond) // badger TTLs have second granularity

	_, ok, err := cache.Lookup(ctx, "digest|eng")
	req.NoError(err)
	req.False(ok)
}

func TestResultCache_UndecodableEntryIsAMiss(t *testing.T) {
	req := require.New(t)
	db := testDB(t)
	cache := NewResultCache(db, logs.GetLoggerFromLevel(slog.LevelDebug), time.Hour)

	req.NoError(db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey("digest|eng"), []byte("not json at all"))
	}))

	result, ok, err := cache.Lookup(context.Background(), "digest|eng")
	req.NoError(err)
	req.False(ok)
	req.Nil(result)
}
