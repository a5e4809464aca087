package grpcserver

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
)

// Well-known compressor names, as they appear verbatim on the wire in
// grpc-encoding / grpc-accept-encoding.
const (
	CompressionIdentity = "identity"
	CompressionGzip     = "gzip"
	CompressionDeflate  = "deflate"
	CompressionSnappy   = "snappy"
)

// Compressor transforms a complete message buffer in either direction. A
// Compressor must be safe for concurrent use on independent buffers and
// must not retain a reference to an input buffer after returning.
type Compressor interface {
	// Name is the encoding token this compressor is registered under.
	Name() string
	// Compress returns the compressed form of p. The identity compressor
	// returns p itself.
	Compress(p []byte) ([]byte, error)
	// Decompress returns the decompressed form of p. The identity
	// compressor returns p itself.
	Decompress(p []byte) ([]byte, error)
}

// CompressorRegistry owns one instance of every configured Compressor,
// keyed by its wire encoding name. It's built once at startup and shared,
// read-only, by every exchange — construction is the only place state
// changes.
type CompressorRegistry struct {
	byName map[string]Compressor
	names  []string // stable order for advertising in grpc-accept-encoding
}

// RegistryOption configures a CompressorRegistry at construction.
type RegistryOption interface {
	applyToRegistry(*CompressorRegistry)
}

type registryOptionFunc func(*CompressorRegistry)

func (f registryOptionFunc) applyToRegistry(r *CompressorRegistry) { f(r) }

// WithCompressor registers an additional (or replacement) Compressor.
func WithCompressor(c Compressor) RegistryOption {
	return registryOptionFunc(func(r *CompressorRegistry) { r.register(c) })
}

// WithGzipLevel replaces the built-in gzip compressor with one that uses
// the given compression level. The default is gzip.DefaultCompression,
// which compress/gzip runs at level 6. Window size and memory level are
// not configurable: compress/gzip does not expose them.
func WithGzipLevel(level int) RegistryOption {
	return registryOptionFunc(func(r *CompressorRegistry) {
		r.register(&gzipCompressor{level: level})
	})
}

// WithSnappy registers the optional snappy compressor under the name
// "snappy". It's off by default because snappy isn't part of the gRPC
// core compression set; servers that know their clients support it can
// opt in explicitly.
func WithSnappy() RegistryOption {
	return registryOptionFunc(func(r *CompressorRegistry) {
		r.register(&snappyCompressor{})
	})
}

// NewCompressorRegistry builds a registry with "identity", "gzip" and
// "deflate" registered by default, plus any opts.
func NewCompressorRegistry(opts ...RegistryOption) *CompressorRegistry {
	r := &CompressorRegistry{byName: make(map[string]Compressor)}
	r.register(identityCompressor{})
	r.register(&gzipCompressor{level: gzip.DefaultCompression})
	r.register(&deflateCompressor{level: flate.DefaultCompression})
	for _, opt := range opts {
		opt.applyToRegistry(r)
	}
	return r
}

func (r *CompressorRegistry) register(c Compressor) {
	name := c.Name()
	if _, exists := r.byName[name]; !exists {
		r.names = append(r.names, name)
	}
	r.byName[name] = c
}

// Resolve returns the compressor registered under name, or false if none
// is registered.
func (r *CompressorRegistry) Resolve(name string) (Compressor, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ResolveFirst returns the first name in names that's registered, or false
// if none match (including when names is empty).
func (r *CompressorRegistry) ResolveFirst(names ...string) (Compressor, bool) {
	for _, name := range names {
		if c, ok := r.byName[name]; ok {
			return c, true
		}
	}
	return nil, false
}

// Encodings returns every registered encoding name, suitable for joining
// into a grpc-accept-encoding header.
func (r *CompressorRegistry) Encodings() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

type identityCompressor struct{}

func (identityCompressor) Name() string                        { return CompressionIdentity }
func (identityCompressor) Compress(p []byte) ([]byte, error)   { return p, nil }
func (identityCompressor) Decompress(p []byte) ([]byte, error) { return p, nil }

type gzipCompressor struct {
	level int
	pool  sync.Pool // *gzip.Writer, reset per use
}

func (c *gzipCompressor) Name() string { return CompressionGzip }

func (c *gzipCompressor) Compress(p []byte) ([]byte, error) {
	level := c.level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, ok := c.pool.Get().(*gzip.Writer)
	if !ok {
		var err error
		w, err = gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, fmt.Errorf("grpcserver: gzip compress: %w", err)
		}
	} else {
		w.Reset(&buf)
	}
	defer func() {
		w.Reset(io.Discard)
		c.pool.Put(w)
	}()
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("grpcserver: gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("grpcserver: gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *gzipCompressor) Decompress(p []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, fmt.Errorf("grpcserver: gzip decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: gzip decompress: %w", err)
	}
	return out, nil
}

type deflateCompressor struct {
	level int
}

func (c *deflateCompressor) Name() string { return CompressionDeflate }

func (c *deflateCompressor) Compress(p []byte) ([]byte, error) {
	level := c.level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: deflate compress: %w", err)
	}
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("grpcserver: deflate compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("grpcserver: deflate compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *deflateCompressor) Decompress(p []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(p))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: deflate decompress: %w", err)
	}
	return out, nil
}

type snappyCompressor struct{}

func (snappyCompressor) Name() string { return CompressionSnappy }

func (snappyCompressor) Compress(p []byte) ([]byte, error) {
	return snappy.Encode(nil, p), nil
}

func (snappyCompressor) Decompress(p []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, p)
	if err != nil {
		return nil, fmt.Errorf("grpcserver: snappy decompress: %w", err)
	}
	return out, nil
}
