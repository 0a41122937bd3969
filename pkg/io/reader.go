// Package io provides input utilities for data ingestion.
package io

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hed1ad/densityguard/pkg/dataset"
)

// Reader is the interface for reading a dataset from a source.
type Reader interface {
	// Read returns the complete dataset.
	Read() (*dataset.Dataset, error)

	// Close releases resources.
	Close() error
}

// Compression identifies the stream codec of an input file.
type Compression uint8

const (
	// CompressionNone reads the file as is.
	CompressionNone Compression = iota
	// CompressionGzip reads .gz files.
	CompressionGzip
	// CompressionZstd reads .zst files.
	CompressionZstd
	// CompressionLZ4 reads .lz4 files.
	CompressionLZ4
)

// DetectCompression picks the codec from the file extension.
func DetectCompression(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	}
	return CompressionNone
}

// TrimCompression strips a compression extension from path, so that
// "flows.csv.gz" reports its format extension ".csv".
func TrimCompression(path string) string {
	if DetectCompression(path) == CompressionNone {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Open opens path and transparently decompresses it by extension.
// Closing the returned reader closes the file.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	rc, err := Decompress(f, DetectCompression(path))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return rc, nil
}

// Decompress wraps rc with the decoder for c. Closing the result closes rc.
func Decompress(rc io.ReadCloser, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return rc, nil
	case CompressionGzip:
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return nil, err
		}
		return &stream{Reader: gz, closers: []func() error{gz.Close, rc.Close}}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(rc)
		if err != nil {
			return nil, err
		}
		return &stream{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			rc.Close,
		}}, nil
	case CompressionLZ4:
		return &stream{Reader: lz4.NewReader(rc), closers: []func() error{rc.Close}}, nil
	}
	return nil, fmt.Errorf("unknown compression %d", c)
}

type stream struct {
	io.Reader
	closers []func() error
}

func (s *stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
