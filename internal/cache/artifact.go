package cache

import (
	"bytes"
	"os"

	"github.com/oklog/ulid/v2"
)

// artifactStore performs crash-safe reads and writes of single artifact
// files. The destination path is only ever reached via rename, which is
// atomic on the same filesystem, so a partial file is never visible at the
// final path.
type artifactStore[T any] struct {
	codec Codec[T]
}

// write serializes the artifact into a temp file next to path (same
// directory, same filesystem) and renames it into place. On any failure the
// temp file is removed and a KindWrite error is returned.
func (s artifactStore[T]) write(path string, artifact T) error {
	tmp := path + ".tmp-" + ulid.Make().String()

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return &Error{Kind: KindWrite, Op: "write", Path: path, Err: err}
	}

	if err := s.codec.Encode(f, artifact); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return &Error{Kind: KindWrite, Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return &Error{Kind: KindWrite, Op: "write", Path: path, Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &Error{Kind: KindWrite, Op: "write", Path: path, Err: err}
	}
	return nil
}

// read loads and deserializes the artifact at path. Failures are classified
// so the caller can pick the right recovery: KindIO (missing file,
// permissions, disk error — recompute, leave the file alone) versus
// KindCorruption (bytes read but decode failed — delete and recompute).
func (s artifactStore[T]) read(path string) (T, error) {
	var zero T

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, &Error{Kind: KindIO, Op: "read", Path: path, Err: err}
	}

	// The decode source is an in-memory buffer, so any decode error is a
	// malformed artifact rather than a transient read failure.
	artifact, err := s.codec.Decode(bytes.NewReader(data))
	if err != nil {
		return zero, &Error{Kind: KindCorruption, Op: "read", Path: path, Err: err}
	}
	return artifact, nil
}
