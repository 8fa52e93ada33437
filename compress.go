package couchview

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Revision bodies at or above this size are stored zstd-compressed.
const compressThreshold = 128

// Both are safe for concurrent use and expensive to construct.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressBody returns the stored form of a body and whether it is compressed.
func compressBody(data []byte) ([]byte, bool) {
	if len(data) < compressThreshold {
		return data, false
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, false
	}
	return compressed, true
}

func decompressBody(stored []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return stored, nil
	}
	out, err := zstdDecoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}
