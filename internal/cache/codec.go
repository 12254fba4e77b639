package cache

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Default artifact extensions.
const (
	ParquetExtension = ".parquet"
	JSONExtension    = ".json"
)

// Codec serializes artifacts of type T. The cache treats artifacts as
// opaque blobs; the codec owns the binary layout and the file extension.
type Codec[T any] interface {
	Encode(w io.Writer, artifact T) error
	Decode(r io.Reader) (T, error)
	Ext() string
}

// ParquetCodec stores row slices as Parquet, the platform's columnar
// artifact format. R is the row type; its exported fields become columns.
type ParquetCodec[R any] struct{}

func (ParquetCodec[R]) Encode(w io.Writer, rows []R) error {
	return parquet.Write(w, rows)
}

func (ParquetCodec[R]) Decode(r io.Reader) ([]R, error) {
	// Parquet needs random access (the footer holds the metadata), so the
	// file is buffered in full before decoding.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parquet.Read[R](bytes.NewReader(data), int64(len(data)))
}

func (ParquetCodec[R]) Ext() string { return ParquetExtension }

// JSONCodec stores artifacts as JSON, for non-tabular artifacts and tests.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(w io.Writer, artifact T) error {
	return json.NewEncoder(w).Encode(artifact)
}

func (JSONCodec[T]) Decode(r io.Reader) (T, error) {
	var artifact T
	err := json.NewDecoder(r).Decode(&artifact)
	return artifact, err
}

func (JSONCodec[T]) Ext() string { return JSONExtension }
