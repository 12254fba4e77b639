package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type factorRow struct {
	Symbol string  `parquet:"symbol"`
	Score  float64 `parquet:"score"`
}

func momentumRows() []factorRow {
	return []factorRow{
		{Symbol: "AAPL", Score: 0.42},
		{Symbol: "MSFT", Score: -0.17},
		{Symbol: "NVDA", Score: 1.03},
	}
}

func newTestCache(t *testing.T) (*Cache[[]factorRow], *Store) {
	t.Helper()
	store, err := NewStore(t.TempDir(), 7, ParquetExtension, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := New[[]factorRow](store, ParquetCodec[factorRow]{})
	require.NoError(t, err)
	return c, store
}

func TestNewStore(t *testing.T) {
	t.Run("CreatesDirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "cache")
		store, err := NewStore(dir, 0, "", zerolog.Nop())
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
		assert.Equal(t, DefaultExtension, store.Extension())
		assert.Equal(t, time.Duration(DefaultTTLDays)*24*time.Hour, store.TTL())
	})

	t.Run("EmptyDirRejected", func(t *testing.T) {
		_, err := NewStore("", 7, ParquetExtension, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("CodecExtensionMismatch", func(t *testing.T) {
		store, err := NewStore(t.TempDir(), 7, ".json", zerolog.Nop())
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		_, err = New[[]factorRow](store, ParquetCodec[factorRow]{})
		assert.Error(t, err)
	})
}

func TestGetOrCompute(t *testing.T) {
	c, _ := newTestCache(t)
	key := testKey()

	calls := 0
	compute := func() ([]factorRow, error) {
		calls++
		return momentumRows(), nil
	}

	got, cached, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, momentumRows(), got)
	assert.Equal(t, 1, calls)

	// Identical key components: served from cache, compute not invoked.
	again, cached, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, calls)

	t.Run("SnapshotChangeForcesRecompute", func(t *testing.T) {
		other := testKey()
		other.SnapshotID = "snap_456"
		_, cached, err := c.GetOrCompute(other, compute)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, 2, calls)
	})

	t.Run("ConfigChangeForcesRecompute", func(t *testing.T) {
		other := testKey()
		other.ConfigHash = "cfg_456"
		_, cached, err := c.GetOrCompute(other, compute)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, 3, calls)
	})

	t.Run("ComputeErrorPropagates", func(t *testing.T) {
		other := testKey()
		other.ArtifactName = "reversal_1m"
		boom := errors.New("upstream unavailable")
		_, _, err := c.GetOrCompute(other, func() ([]factorRow, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)

		// A failed compute must not leave a file or a row.
		_, ok := c.Get(other)
		assert.False(t, ok)
	})
}

func TestGetAndSet(t *testing.T) {
	c, store := newTestCache(t)
	key := testKey()

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, momentumRows()))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, momentumRows(), got)

	t.Run("ExpiredIsAbsent", func(t *testing.T) {
		path := filepath.Join(store.Dir(), key.Filename(store.Extension()))
		stale := time.Now().Add(-8 * 24 * time.Hour)
		require.NoError(t, os.Chtimes(path, stale, stale))

		_, ok := c.Get(key)
		assert.False(t, ok)
	})
}

func TestGetCorruptionDeletesFile(t *testing.T) {
	c, store := newTestCache(t)
	key := testKey()

	path := filepath.Join(store.Dir(), key.Filename(store.Extension()))
	require.NoError(t, os.WriteFile(path, []byte("not parquet at all"), 0o600))

	_, ok := c.Get(key)
	assert.False(t, ok)

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "corrupt file should be deleted")
}

func TestSetRollsBackOnIndexFailure(t *testing.T) {
	c, store := newTestCache(t)
	key := testKey()

	// A closed catalog makes the upsert fail right after the artifact write.
	require.NoError(t, store.catalog.close())

	err := c.Set(key, momentumRows())
	require.Error(t, err)
	assert.Equal(t, KindIndex, KindOf(err))

	path := filepath.Join(store.Dir(), key.Filename(store.Extension()))
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "artifact should be rolled back")
}

func TestInvalidateBySnapshot(t *testing.T) {
	c, store := newTestCache(t)

	keyA1 := testKey()
	keyA2 := testKey()
	keyA2.ArtifactName = "reversal_1m"
	keyB := testKey()
	keyB.SnapshotID = "snap_B"

	for _, k := range []Key{keyA1, keyA2, keyB} {
		require.NoError(t, c.Set(k, momentumRows()))
	}

	removed, err := store.InvalidateBySnapshot("snap_123")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := c.Get(keyA1)
	assert.False(t, ok)
	_, ok = c.Get(keyA2)
	assert.False(t, ok)

	got, ok := c.Get(keyB)
	require.True(t, ok)
	assert.Equal(t, momentumRows(), got)
}

func TestInvalidateByDatasetUpdate(t *testing.T) {
	c, store := newTestCache(t)

	oldKey := testKey()
	oldKey.DatasetVersions = map[string]string{"crsp": "v1.0.0"}
	newKey := testKey()
	newKey.DatasetVersions = map[string]string{"crsp": "v2.0.0"}
	unrelated := testKey()
	unrelated.DatasetVersions = map[string]string{"ibes": "v1.0.0"}

	for _, k := range []Key{oldKey, newKey, unrelated} {
		require.NoError(t, c.Set(k, momentumRows()))
	}

	removed, err := store.InvalidateByDatasetUpdate("crsp", "v2.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(oldKey)
	assert.False(t, ok)
	_, ok = c.Get(newKey)
	assert.True(t, ok)
	_, ok = c.Get(unrelated)
	assert.True(t, ok, "entries with no recorded crsp version are kept")
}

func TestInvalidateByConfigChange(t *testing.T) {
	c, store := newTestCache(t)

	momentum := testKey()
	other := testKey()
	other.ArtifactName = "reversal_1m"
	require.NoError(t, c.Set(momentum, momentumRows()))
	require.NoError(t, c.Set(other, momentumRows()))

	removed, err := store.InvalidateByConfigChange("momentum_12m")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(momentum)
	assert.False(t, ok)
	_, ok = c.Get(other)
	assert.True(t, ok)

	// Catalog rows go with the files; no dangling references remain.
	names, err := store.catalog.allFilenames()
	require.NoError(t, err)
	assert.Equal(t, []string{other.Filename(store.Extension())}, names)
}

func TestInvalidateAll(t *testing.T) {
	c, store := newTestCache(t)

	momentum := testKey()
	other := testKey()
	other.ArtifactName = "reversal_1m"
	require.NoError(t, c.Set(momentum, momentumRows()))
	require.NoError(t, c.Set(other, momentumRows()))

	t.Run("Filtered", func(t *testing.T) {
		removed, err := store.InvalidateAll("momentum_12m")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, ok := c.Get(other)
		assert.True(t, ok)
	})

	t.Run("Blanket", func(t *testing.T) {
		removed, err := store.InvalidateAll("")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		st, err := store.Stats()
		require.NoError(t, err)
		assert.Zero(t, st.EntryCount)
	})
}

func TestCleanup(t *testing.T) {
	t.Run("ZeroTTLRemovesEverything", func(t *testing.T) {
		c, store := newTestCache(t)
		require.NoError(t, c.Set(testKey(), momentumRows()))
		other := testKey()
		other.SnapshotID = "snap_B"
		require.NoError(t, c.Set(other, momentumRows()))

		removed, err := store.CleanupWithTTL(0)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		st, err := store.Stats()
		require.NoError(t, err)
		assert.Zero(t, st.EntryCount)
	})

	t.Run("OrphansRemovedRegardlessOfAge", func(t *testing.T) {
		c, store := newTestCache(t)
		key := testKey()
		require.NoError(t, c.Set(key, momentumRows()))

		// A cache-extension file with no catalog row, e.g. left behind by a
		// crash between write and index in an earlier run.
		orphan := filepath.Join(store.Dir(), "stray_2024-01-01_deadbeef"+store.Extension())
		require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))

		removed, err := store.CleanupExpired()
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, statErr := os.Stat(orphan)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))

		// The fresh, indexed entry is untouched.
		_, ok := c.Get(key)
		assert.True(t, ok)
	})
}

func TestStats(t *testing.T) {
	c, store := newTestCache(t)

	st, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.EntryCount)
	assert.True(t, st.OldestEntry.IsZero())

	require.NoError(t, c.Set(testKey(), momentumRows()))
	other := testKey()
	other.ConfigHash = "cfg_456"
	require.NoError(t, c.Set(other, momentumRows()))

	st, err = store.Stats()
	require.NoError(t, err)
	// Exactly the two artifacts; the catalog database is not counted.
	assert.Equal(t, 2, st.EntryCount)
	assert.Positive(t, st.TotalSizeBytes)
	assert.False(t, st.OldestEntry.IsZero())
	assert.False(t, st.NewestEntry.Before(st.OldestEntry))
}

// End-to-end scenario: a 7-day cache serving a momentum factor table.
func TestEndToEnd(t *testing.T) {
	c, _ := newTestCache(t)

	key := Key{
		ArtifactName:    "momentum_12m",
		AsOfDate:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DatasetVersions: map[string]string{"crsp": "v1.0.0"},
		SnapshotID:      "snap_123",
		ConfigHash:      "cfg_123",
	}

	table := momentumRows()
	got, cached, err := c.GetOrCompute(key, func() ([]factorRow, error) { return table, nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, table, got)

	got, cached, err = c.GetOrCompute(key, func() ([]factorRow, error) {
		t.Fatal("compute must not run on a warm cache")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, table, got)

	fresh := []factorRow{{Symbol: "TSLA", Score: 2.71}}
	key.SnapshotID = "snap_456"
	got, cached, err = c.GetOrCompute(key, func() ([]factorRow, error) { return fresh, nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, fresh, got)
}
