package grpcserver

import "testing"

func TestCompressorRegistryDefaults(t *testing.T) {
	r := NewCompressorRegistry()
	for _, name := range []string{CompressionIdentity, CompressionGzip, CompressionDeflate} {
		if _, ok := r.Resolve(name); !ok {
			t.Errorf("expected %q to be registered by default", name)
		}
	}
	if _, ok := r.Resolve(CompressionSnappy); ok {
		t.Error("snappy should not be registered unless WithSnappy is passed")
	}
}

func TestCompressorRegistryWithSnappy(t *testing.T) {
	r := NewCompressorRegistry(WithSnappy())
	if _, ok := r.Resolve(CompressionSnappy); !ok {
		t.Error("expected snappy to be registered after WithSnappy()")
	}
}

func TestCompressorRegistryResolveFirst(t *testing.T) {
	r := NewCompressorRegistry()
	c, ok := r.ResolveFirst("snappy", "gzip", "identity")
	if !ok || c.Name() != CompressionGzip {
		t.Errorf("ResolveFirst = (%v, %v), want (gzip, true)", c, ok)
	}
	if _, ok := r.ResolveFirst("snappy", "lz4"); ok {
		t.Error("ResolveFirst with no registered match should report false")
	}
	if _, ok := r.ResolveFirst(); ok {
		t.Error("ResolveFirst with no names should report false")
	}
}

func testCompressorRoundTrip(t *testing.T, c Compressor) {
	t.Helper()
	original := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")
	compressed, err := c.Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(decompressed) != string(original) {
		t.Errorf("round trip through %s: got %q, want %q", c.Name(), decompressed, original)
	}
}

func TestCompressorRoundTrips(t *testing.T) {
	r := NewCompressorRegistry(WithSnappy())
	for _, name := range []string{CompressionIdentity, CompressionGzip, CompressionDeflate, CompressionSnappy} {
		c, ok := r.Resolve(name)
		if !ok {
			t.Fatalf("compressor %q not registered", name)
		}
		t.Run(name, func(t *testing.T) { testCompressorRoundTrip(t, c) })
	}
}

func TestCompressorRegistryEncodingsStableOrder(t *testing.T) {
	r := NewCompressorRegistry()
	first := r.Encodings()
	second := r.Encodings()
	if len(first) != len(second) {
		t.Fatalf("Encodings() lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Encodings() order changed at index %d: %q vs %q", i, first[i], second[i])
		}
	}
}
