// Package cache implements a point-in-time-safe disk cache for computed
// analytical artifacts (factor values, risk inputs).
//
// Cache identity is a composite of five components: artifact name, as-of
// date, upstream dataset versions, snapshot id, and config hash. A hit is
// returned only when all five match exactly, which is what makes the cache
// safe for point-in-time research: any change to an upstream dataset
// version, the snapshot, or the computation config produces a different key
// and therefore a miss.
//
// Artifacts live as individual files in a single cache directory, written
// only via atomic temp-file-then-rename. Entry metadata (snapshot id,
// config hash, dataset versions, creation time) lives in an embedded SQLite
// catalog next to the artifacts, which makes targeted invalidation — by
// snapshot, by one dataset's version bump, or by artifact name — a metadata
// query instead of a scan over every cached file.
//
// A Store owns one cache directory and its catalog for the lifetime of the
// process; concurrent processes sharing a directory are not supported.
package cache
