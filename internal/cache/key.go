package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// dateLayout is the unambiguous calendar format used in key strings and
// filename prefixes.
const dateLayout = "2006-01-02"

// filenameDigestLen is the number of hex characters of the SHA-256 digest
// kept in filenames. 128 bits; a collision at this length is an accepted
// risk, consistent with content-addressed designs.
const filenameDigestLen = 32

// Key is the composite identity of one cached artifact. All five components
// participate in the derived key string, so a change to any of them — the
// artifact name, the as-of date, any single dataset version, the snapshot,
// or the config hash — yields a different filename.
type Key struct {
	// ArtifactName is the logical name of the computation, e.g. "momentum_12m".
	ArtifactName string

	// AsOfDate is the point-in-time date the artifact was computed for.
	// Only the calendar date participates in the key.
	AsOfDate time.Time

	// DatasetVersions maps upstream dataset names to their version tags.
	// Insertion order is irrelevant; the derived key is canonical.
	DatasetVersions map[string]string

	// SnapshotID identifies a consistent frozen view of all upstream data.
	SnapshotID string

	// ConfigHash is a digest of the computation's configuration.
	ConfigHash string
}

// VersionID renders DatasetVersions as "name-version" pairs sorted by
// dataset name and joined with "_". Two maps with the same contents always
// produce the same string regardless of insertion order.
func (k Key) VersionID() string {
	names := make([]string, 0, len(k.DatasetVersions))
	for name := range k.DatasetVersions {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "-" + k.DatasetVersions[name]
	}
	return strings.Join(parts, "_")
}

// String returns the full composite key:
// artifact:as-of-date:version-id:snapshot:config-hash.
func (k Key) String() string {
	return strings.Join([]string{
		k.ArtifactName,
		k.AsOfDate.Format(dateLayout),
		k.VersionID(),
		k.SnapshotID,
		k.ConfigHash,
	}, ":")
}

// Filename derives the on-disk name for this key: a sanitized
// "artifact_date" prefix for human debuggability, followed by the first 32
// hex characters of the SHA-256 digest of the key string, followed by ext.
// Pure function of the key; no error conditions.
func (k Key) Filename(ext string) string {
	sum := sha256.Sum256([]byte(k.String()))
	digest := hex.EncodeToString(sum[:])[:filenameDigestLen]
	prefix := sanitizeSegment(k.ArtifactName) + "_" + sanitizeSegment(k.AsOfDate.Format(dateLayout))
	return prefix + "_" + digest + ext
}

// sanitizeSegment keeps alphanumerics, '-' and '_'; everything else becomes
// '_' so the filename prefix is safe on any filesystem.
func sanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
