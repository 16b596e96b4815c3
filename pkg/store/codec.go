package store

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"sync"
)

// Blobs are stored gzip-compressed. Rows that do not start with the gzip
// magic are returned unchanged.
var gzipMagic = []byte{0x1f, 0x8b}

var (
	zipWriters = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	zipBuffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}
)

// pack compresses data. If compression fails the raw bytes are stored.
func pack(data []byte) []byte {
	buf := zipBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer zipBuffers.Put(buf)

	zw := zipWriters.Get().(*gzip.Writer)
	defer zipWriters.Put(zw)
	zw.Reset(buf)

	if _, err := zw.Write(data); err != nil {
		slog.Debug("Storing blob uncompressed", "error", err)
		return data
	}
	if err := zw.Close(); err != nil {
		slog.Debug("Storing blob uncompressed", "error", err)
		return data
	}
	return bytes.Clone(buf.Bytes())
}

// unpack reverses pack. A corrupt stream is returned as-is.
func unpack(data []byte) []byte {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return data
	}
	return out
}
