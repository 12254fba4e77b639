package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for Store construction.
const (
	// DefaultTTLDays is the default entry lifetime.
	DefaultTTLDays = 7

	// DefaultExtension is the artifact extension used when none is
	// configured. Parquet is the platform's columnar artifact format.
	DefaultExtension = ParquetExtension
)

const hoursPerDay = 24

// Store owns one cache directory and its metadata catalog. It implements
// everything that does not need to know the artifact type: invalidation,
// expiry cleanup, orphan reconciliation, and statistics. Pair it with a
// Codec via New to read and write typed artifacts.
//
// A single mutex serializes catalog access and check-then-read sequences
// against concurrent mutation. Only one Store instance may own a directory
// at a time; concurrent processes sharing a directory are unsupported.
type Store struct {
	dir    string
	ttl    time.Duration
	ext    string
	logger zerolog.Logger

	mu      sync.Mutex
	catalog *catalog
}

// NewStore opens a cache rooted at dir with entries expiring after ttlDays.
// The directory and catalog are created if absent, and the one-shot legacy
// catalog migration runs before the store is returned. Zero or negative
// ttlDays selects DefaultTTLDays; an empty ext selects DefaultExtension.
func NewStore(dir string, ttlDays int, ext string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	if ext == "" {
		ext = DefaultExtension
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	logger = logger.With().Str("component", "cache").Logger()
	cat, err := openCatalog(filepath.Join(dir, catalogFilename), logger)
	if err != nil {
		return nil, err
	}
	cat.migrateLegacy(filepath.Join(dir, legacyCatalogFilename))

	return &Store{
		dir:     dir,
		ttl:     time.Duration(ttlDays) * hoursPerDay * time.Hour,
		ext:     ext,
		logger:  logger,
		catalog: cat,
	}, nil
}

// Close releases the catalog handle. The Store must not be used afterwards.
func (s *Store) Close() error {
	return s.catalog.close()
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Extension returns the artifact file extension, including the dot.
func (s *Store) Extension() string {
	return s.ext
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// InvalidateBySnapshot removes every entry recorded under snapshotID:
// artifact files first (best-effort), then their catalog rows. Returns the
// number of files actually removed from disk.
func (s *Store) InvalidateBySnapshot(snapshotID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filenames, err := s.catalog.findBySnapshot(snapshotID)
	if err != nil {
		return 0, fmt.Errorf("find by snapshot: %w", err)
	}
	removed := s.removeFiles(filenames)
	if err := s.catalog.deleteMany(filenames); err != nil {
		return removed, fmt.Errorf("delete index rows: %w", err)
	}

	s.logger.Info().Str("snapshot_id", snapshotID).Int("removed", removed).Msg("invalidated by snapshot")
	return removed, nil
}

// InvalidateByDatasetUpdate removes every entry whose recorded version for
// dataset differs from newVersion. Entries with no recorded version for the
// dataset are left alone. Returns the number of files removed from disk.
func (s *Store) InvalidateByDatasetUpdate(dataset, newVersion string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filenames, err := s.catalog.findByDatasetNotVersion(dataset, newVersion)
	if err != nil {
		return 0, fmt.Errorf("find by dataset version: %w", err)
	}
	removed := s.removeFiles(filenames)
	if err := s.catalog.deleteMany(filenames); err != nil {
		return removed, fmt.Errorf("delete index rows: %w", err)
	}

	s.logger.Info().
		Str("dataset", dataset).
		Str("new_version", newVersion).
		Int("removed", removed).
		Msg("invalidated by dataset update")
	return removed, nil
}

// InvalidateByConfigChange removes every artifact file whose name matches
// the "{artifact}_*" prefix glob. The selection runs against the filesystem
// rather than the catalog, so it also catches files the catalog does not
// know about; matching catalog rows are deleted afterwards so the catalog
// never holds dangling references. Returns the number of files removed.
func (s *Store) InvalidateByConfigChange(artifactName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pattern := filepath.Join(s.dir, sanitizeSegment(artifactName)+"_*"+s.ext)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("glob cache files: %w", err)
	}

	removed := 0
	filenames := make([]string, 0, len(matches))
	for _, path := range matches {
		filenames = append(filenames, filepath.Base(path))
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("file", filepath.Base(path)).Msg("could not remove cache file")
			continue
		}
		removed++
	}
	if err := s.catalog.deleteMany(filenames); err != nil {
		return removed, fmt.Errorf("delete index rows: %w", err)
	}

	s.logger.Info().Str("artifact", artifactName).Int("removed", removed).Msg("invalidated by config change")
	return removed, nil
}

// InvalidateAll removes every catalog-known entry, optionally restricted to
// artifacts whose filename prefix matches artifactName. Returns the number
// of files removed from disk.
func (s *Store) InvalidateAll(artifactName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var filenames []string
	var err error
	if artifactName != "" {
		filenames, err = s.catalog.findByPrefix(sanitizeSegment(artifactName) + "_")
	} else {
		filenames, err = s.catalog.allFilenames()
	}
	if err != nil {
		return 0, fmt.Errorf("list index rows: %w", err)
	}

	removed := s.removeFiles(filenames)
	if err := s.catalog.deleteMany(filenames); err != nil {
		return removed, fmt.Errorf("delete index rows: %w", err)
	}

	s.logger.Info().Str("artifact", artifactName).Int("removed", removed).Msg("invalidated all")
	return removed, nil
}

// CleanupExpired removes entries older than the store TTL, plus any orphan
// artifact files (cache-extension files with no catalog row, typically left
// by a crash between write and index in an earlier run). Returns the total
// number of files removed.
func (s *Store) CleanupExpired() (int, error) {
	return s.CleanupWithTTL(s.ttl)
}

// CleanupWithTTL is CleanupExpired with an explicit lifetime. A zero ttl
// expires every entry regardless of age. Orphans are removed unconditionally
// either way.
func (s *Store) CleanupWithTTL(ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()
	expired, err := s.catalog.createdAtOrBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("find expired entries: %w", err)
	}
	removed := s.removeFiles(expired)
	if err := s.catalog.deleteMany(expired); err != nil {
		return removed, fmt.Errorf("delete index rows: %w", err)
	}

	orphans, err := s.removeOrphans()
	if err != nil {
		return removed, err
	}

	s.logger.Info().Int("expired", removed).Int("orphans", orphans).Msg("cleanup finished")
	return removed + orphans, nil
}

// removeOrphans deletes artifact files that have no catalog row. Must be
// called with the lock held, after expired rows have been deleted.
func (s *Store) removeOrphans() (int, error) {
	known, err := s.catalog.allFilenames()
	if err != nil {
		return 0, fmt.Errorf("list index rows: %w", err)
	}
	indexed := make(map[string]struct{}, len(known))
	for _, name := range known {
		indexed[name] = struct{}{}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != s.ext {
			continue
		}
		if _, ok := indexed[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("could not remove orphan cache file")
			continue
		}
		s.logger.Debug().Str("file", name).Msg("removed orphan cache file")
		removed++
	}
	return removed, nil
}

// removeFiles best-effort deletes the named artifact files. Individual
// failures are logged and skipped; a file already gone counts as removed by
// someone else and is not counted here. Must be called with the lock held.
func (s *Store) removeFiles(filenames []string) int {
	removed := 0
	for _, name := range filenames {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn().Err(err).Str("file", name).Msg("could not remove cache file")
			}
			continue
		}
		removed++
	}
	return removed
}

// Stats describes the physical state of the cache directory.
type Stats struct {
	// EntryCount is the number of artifact files on disk, orphans included.
	EntryCount int

	// TotalSizeBytes is the summed size of those files.
	TotalSizeBytes int64

	// OldestEntry and NewestEntry are modification times of the oldest and
	// newest artifact files; zero when the cache is empty.
	OldestEntry time.Time
	NewestEntry time.Time
}

// Stats scans artifact files on disk, so the result reflects physical state
// including any orphans the catalog does not know about.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("read cache directory: %w", err)
	}

	var st Stats
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != s.ext {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		st.EntryCount++
		st.TotalSizeBytes += info.Size()
		mtime := info.ModTime()
		if st.OldestEntry.IsZero() || mtime.Before(st.OldestEntry) {
			st.OldestEntry = mtime
		}
		if mtime.After(st.NewestEntry) {
			st.NewestEntry = mtime
		}
	}
	return st, nil
}
