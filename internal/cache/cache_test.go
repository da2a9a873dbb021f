package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "cache.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("new cache store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func expireEntry(t *testing.T, store *Store, key string) {
	t.Helper()
	if _, err := store.db.Exec(
		`UPDATE cache_entries SET expires_at_unix = ? WHERE key = ?`,
		time.Now().Add(-time.Minute).Unix(), key,
	); err != nil {
		t.Fatalf("expire entry: %v", err)
	}
}

func TestSetThenGetRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type candidate struct {
		Title  string `json:"title"`
		PageID int64  `json:"page_id"`
	}
	stored := []candidate{{Title: "围棋", PageID: 42}, {Title: "围棋 (棋类)", PageID: 7}}
	store.Set(ctx, SearchKey("wikipedia", "围棋"), stored, time.Hour)

	var loaded []candidate
	if !store.Get(ctx, SearchKey("wikipedia", "围棋"), &loaded) {
		t.Fatal("expected cache hit")
	}
	if len(loaded) != 2 || loaded[0].Title != "围棋" || loaded[1].PageID != 7 {
		t.Fatalf("unexpected value after roundtrip: %+v", loaded)
	}
}

func TestGetMissesAfterExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, DocKey("moegirl", "初音未来"), "full text", time.Hour)
	var out string
	if !store.Get(ctx, DocKey("moegirl", "初音未来"), &out) {
		t.Fatal("expected hit before expiry")
	}

	expireEntry(t, store, DocKey("moegirl", "初音未来"))
	if store.Get(ctx, DocKey("moegirl", "初音未来"), &out) {
		t.Fatal("expected miss after expiry, before any janitor sweep")
	}
}

func TestSetOverwritesValueAndTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, FactKey("苹果.创始人"), "old", time.Hour)
	store.Set(ctx, FactKey("苹果.创始人"), "new", time.Hour)

	var out string
	if !store.Get(ctx, FactKey("苹果.创始人"), &out) {
		t.Fatal("expected hit")
	}
	if out != "new" {
		t.Fatalf("expected refreshed value, got %q", out)
	}
}

func TestCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc:wikipedia:a", "x", time.Hour)

	var out string
	keys := []string{"doc:wikipedia:a", "doc:wikipedia:b", "doc:wikipedia:c"}
	for _, key := range keys {
		store.Get(ctx, key, &out)
	}

	stats := store.Stats()
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Fatalf("expected 1 hit / 2 misses, got %+v", stats)
	}
	if got := stats.Hits + stats.Misses; got != uint64(len(keys)) {
		t.Fatalf("hits+misses = %d, want %d", got, len(keys))
	}
	if rate := stats.HitRate(); rate < 0.33 || rate > 0.34 {
		t.Fatalf("unexpected hit rate %v", rate)
	}

	store.ResetStats()
	if stats := store.Stats(); stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
}

func TestHitRateWithoutObservations(t *testing.T) {
	if rate := (Stats{}).HitRate(); rate != 0 {
		t.Fatalf("expected 0 hit rate, got %v", rate)
	}
}

func TestDeleteExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc:wikipedia:keep", "x", time.Hour)
	store.Set(ctx, "doc:wikipedia:drop", "y", time.Hour)
	expireEntry(t, store, "doc:wikipedia:drop")

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed row, got %d", removed)
	}

	var out string
	if !store.Get(ctx, "doc:wikipedia:keep", &out) {
		t.Fatal("live entry must survive the sweep")
	}
}

func TestSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "doc:wikipedia:a", "x", time.Hour)
	store.Set(ctx, "doc:wikipedia:b", "y", time.Hour)
	expireEntry(t, store, "doc:wikipedia:b")

	total, expired, err := store.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if total != 2 || expired != 1 {
		t.Fatalf("total = %d, expired = %d", total, expired)
	}
}

func TestUndecodableEntryBehavesAsMiss(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "search:wikipedia:x", "just a string", time.Hour)

	var out []int
	if store.Get(ctx, "search:wikipedia:x", &out) {
		t.Fatal("type-mismatched entry must behave as a miss")
	}
	if stats := store.Stats(); stats.Misses != 1 {
		t.Fatalf("expected the failed decode to count as a miss, got %+v", stats)
	}
}

func TestKeyNamespaces(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{DocKey("wikipedia", "朱祁镇"), "doc:wikipedia:朱祁镇"},
		{SearchKey("moegirl", "初音未来"), "search:moegirl:初音未来"},
		{FactKey("朱祁镇.父亲"), "fact:朱祁镇.父亲"},
		{HistoryKey("114514"), "history:114514"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("key = %q, want %q", tc.got, tc.want)
		}
	}
}
