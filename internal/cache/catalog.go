package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// Catalog and legacy-catalog filenames inside the cache directory.
const (
	catalogFilename       = "cache_index.db"
	legacyCatalogFilename = "cache_metadata.json"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS cache_index (
	filename    TEXT PRIMARY KEY,
	snapshot_id TEXT NOT NULL,
	config_hash TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_versions (
	filename TEXT NOT NULL REFERENCES cache_index(filename) ON DELETE CASCADE,
	dataset  TEXT NOT NULL,
	version  TEXT NOT NULL,
	PRIMARY KEY (filename, dataset)
);
CREATE INDEX IF NOT EXISTS idx_cache_index_snapshot ON cache_index(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_cache_versions_dataset ON cache_versions(dataset);
`

// catalog is the embedded metadata index for the cache directory: one row
// per artifact file in cache_index, plus its (dataset, version) pairs in
// cache_versions. It is the single source of truth for which artifacts are
// live; all access is serialized by the owning Store's lock.
type catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// openCatalog opens (creating if absent) the SQLite catalog at
// dir/cache_index.db, applies the schema, and runs the one-shot legacy
// JSON catalog migration. WAL journaling and foreign-key cascades are
// enabled via DSN pragmas so they apply to every pooled connection.
func openCatalog(path string, logger zerolog.Logger) (*catalog, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	// One open connection serializes writes and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	c := &catalog{db: db, logger: logger}
	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}
	return c, nil
}

func (c *catalog) close() error {
	return c.db.Close()
}

// upsert replaces the cache_index row for filename and rewrites its
// cache_versions set, as a single transaction.
func (c *catalog) upsert(filename, snapshotID, configHash string, versions map[string]string, createdAt time.Time) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO cache_index (filename, snapshot_id, config_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (filename) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			config_hash = excluded.config_hash,
			created_at  = excluded.created_at
	`, filename, snapshotID, configHash, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert index row: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM cache_versions WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("clear version rows: %w", err)
	}
	for dataset, version := range versions {
		_, err := tx.Exec(`INSERT INTO cache_versions (filename, dataset, version) VALUES (?, ?, ?)`,
			filename, dataset, version)
		if err != nil {
			return fmt.Errorf("insert version row: %w", err)
		}
	}

	return tx.Commit()
}

// deleteMany removes the given filenames from cache_index; version rows go
// with them via the foreign-key cascade. Unknown filenames are ignored.
func (c *catalog) deleteMany(filenames []string) error {
	if len(filenames) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`DELETE FROM cache_index WHERE filename = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, name := range filenames {
		if _, err := stmt.Exec(name); err != nil {
			return fmt.Errorf("delete index row %s: %w", name, err)
		}
	}

	return tx.Commit()
}

func (c *catalog) findBySnapshot(snapshotID string) ([]string, error) {
	return c.queryFilenames(`SELECT filename FROM cache_index WHERE snapshot_id = ?`, snapshotID)
}

// findByDatasetNotVersion returns filenames whose recorded version for
// dataset differs from version. Entries with no recorded version for the
// dataset are not selected.
func (c *catalog) findByDatasetNotVersion(dataset, version string) ([]string, error) {
	return c.queryFilenames(
		`SELECT filename FROM cache_versions WHERE dataset = ? AND version != ?`,
		dataset, version)
}

func (c *catalog) findByPrefix(prefix string) ([]string, error) {
	pattern := likeEscaper.Replace(prefix) + "%"
	return c.queryFilenames(`SELECT filename FROM cache_index WHERE filename LIKE ? ESCAPE '\'`, pattern)
}

func (c *catalog) allFilenames() ([]string, error) {
	return c.queryFilenames(`SELECT filename FROM cache_index`)
}

// createdAtOrBefore returns filenames of entries whose creation time is at
// or before the cutoff (epoch seconds).
func (c *catalog) createdAtOrBefore(cutoff int64) ([]string, error) {
	return c.queryFilenames(`SELECT filename FROM cache_index WHERE created_at <= ?`, cutoff)
}

// Cache filenames contain '_', which LIKE treats as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (c *catalog) queryFilenames(query string, args ...any) ([]string, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var filenames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		filenames = append(filenames, name)
	}
	return filenames, rows.Err()
}

// legacyEntry is one record of the pre-SQLite flat-file catalog: a JSON
// object mapping filename to snapshot, config hash, and dataset versions.
type legacyEntry struct {
	SnapshotID string            `json:"snapshot_id"`
	ConfigHash string            `json:"config_hash"`
	VersionIDs map[string]string `json:"version_ids"`
}

// migrateLegacy imports the legacy JSON catalog at path, then deletes it.
// Best-effort and one-shot: a missing file is normal, and any read, parse,
// or import failure logs a warning and leaves normal operation untouched.
func (c *catalog) migrateLegacy(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn().Err(err).Str("path", path).Msg("could not read legacy catalog, skipping migration")
		}
		return
	}

	var entries map[string]legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("malformed legacy catalog, skipping migration")
		return
	}

	// The legacy format carried no creation time; migrated entries start
	// their TTL clock at import.
	now := time.Now()
	for filename, entry := range entries {
		if err := c.upsert(filename, entry.SnapshotID, entry.ConfigHash, entry.VersionIDs, now); err != nil {
			c.logger.Warn().Err(err).Str("file", filename).Msg("could not import legacy catalog entry, skipping migration")
			return
		}
	}

	if err := os.Remove(path); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("could not remove legacy catalog after migration")
		return
	}
	c.logger.Info().Int("entries", len(entries)).Msg("migrated legacy catalog")
}
