package compression

import (
	"bytes"
	"testing"
)

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"title":"draft","body":"![x](./img/cat.png)"}`), 64)

	for _, name := range []string{Zstd, Gzip, None} {
		t.Run(name, func(t *testing.T) {
			c, err := New(name)
			if err != nil {
				t.Fatalf("Expected compressor, got %v", err)
			}
			if c.Name() != name {
				t.Errorf("Expected name %q, got %q", name, c.Name())
			}

			packed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if name != None && len(packed) >= len(payload) {
				t.Errorf("Expected %s to shrink repetitive payload", name)
			}

			unpacked, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(unpacked, payload) {
				t.Error("Expected original payload after decompress")
			}
		})
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("lz4"); err == nil {
		t.Error("Expected error for unknown compression")
	}
	if c, err := New(""); err != nil || c.Name() != Zstd {
		t.Error("Expected empty name to default to zstd")
	}
}
