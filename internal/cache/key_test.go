package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() Key {
	return Key{
		ArtifactName: "momentum_12m",
		AsOfDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DatasetVersions: map[string]string{
			"crsp":      "v1.0.0",
			"compustat": "v2.3.1",
		},
		SnapshotID: "snap_123",
		ConfigHash: "cfg_123",
	}
}

func TestVersionID(t *testing.T) {
	key := testKey()
	assert.Equal(t, "compustat-v2.3.1_crsp-v1.0.0", key.VersionID())

	t.Run("OrderInvariant", func(t *testing.T) {
		other := testKey()
		other.DatasetVersions = map[string]string{
			"compustat": "v2.3.1",
			"crsp":      "v1.0.0",
		}
		assert.Equal(t, key.VersionID(), other.VersionID())
		assert.Equal(t, key.String(), other.String())
		assert.Equal(t, key.Filename(ParquetExtension), other.Filename(ParquetExtension))
	})

	t.Run("Empty", func(t *testing.T) {
		key := testKey()
		key.DatasetVersions = nil
		assert.Empty(t, key.VersionID())
	})
}

func TestKeyString(t *testing.T) {
	key := testKey()
	want := "momentum_12m:2024-01-15:compustat-v2.3.1_crsp-v1.0.0:snap_123:cfg_123"
	assert.Equal(t, want, key.String())

	// Pure and deterministic.
	assert.Equal(t, key.String(), key.String())
}

func TestFilename(t *testing.T) {
	key := testKey()
	name := key.Filename(ParquetExtension)

	assert.True(t, strings.HasPrefix(name, "momentum_12m_2024-01-15_"), name)
	assert.True(t, strings.HasSuffix(name, ParquetExtension), name)
	assert.Equal(t, name, key.Filename(ParquetExtension))

	digest := strings.TrimSuffix(strings.TrimPrefix(name, "momentum_12m_2024-01-15_"), ParquetExtension)
	require.Len(t, digest, filenameDigestLen)
	assert.Regexp(t, "^[0-9a-f]+$", digest)

	t.Run("Sanitized", func(t *testing.T) {
		key := testKey()
		key.ArtifactName = "alpha/beta.v2"
		name := key.Filename(ParquetExtension)
		assert.True(t, strings.HasPrefix(name, "alpha_beta_v2_"), name)
	})
}

// Changing exactly one identity component must change the derived filename.
func TestFilenameComponentSensitivity(t *testing.T) {
	base := testKey().Filename(ParquetExtension)

	mutations := map[string]func(*Key){
		"artifact name":   func(k *Key) { k.ArtifactName = "momentum_6m" },
		"as-of date":      func(k *Key) { k.AsOfDate = k.AsOfDate.AddDate(0, 0, 1) },
		"dataset version": func(k *Key) { k.DatasetVersions["crsp"] = "v1.0.1" },
		"added dataset":   func(k *Key) { k.DatasetVersions["ibes"] = "v1.0.0" },
		"snapshot id":     func(k *Key) { k.SnapshotID = "snap_456" },
		"config hash":     func(k *Key) { k.ConfigHash = "cfg_456" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			key := testKey()
			// testKey returns a fresh map each call, safe to mutate.
			mutate(&key)
			assert.NotEqual(t, base, key.Filename(ParquetExtension))
		})
	}
}
