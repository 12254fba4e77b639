package cache

import (
	"errors"
	"fmt"
)

// FailureKind classifies cache failures so call sites can decide between
// degrading gracefully (treat as miss, skip the file) and propagating.
type FailureKind int

const (
	// KindIO is a transient filesystem failure on read or delete. The file
	// may be fine; recover by recomputing without touching it.
	KindIO FailureKind = iota + 1

	// KindCorruption means the artifact file exists and its bytes were read,
	// but it failed to deserialize. Recover by deleting the file and
	// recomputing, otherwise every future read fails the same way.
	KindCorruption

	// KindWrite is a failure during the atomic artifact write (serialization
	// or rename). The temp file is cleaned up; the error propagates.
	KindWrite

	// KindIndex is a failure committing the catalog upsert after a
	// successful artifact write. The artifact is rolled back (deleted) and
	// the error propagates, so a failed mutation never leaves an orphan.
	KindIndex
)

// String returns a short name for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindWrite:
		return "write"
	case KindIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Error is a cache failure tagged with its kind, the operation that failed,
// and the file it concerns.
type Error struct {
	Kind FailureKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s: %s failure on %s: %v", e.Op, e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the FailureKind from err, or 0 if err does not carry one.
func KindOf(err error) FailureKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
