// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// compressionThreshold is the minimum payload size, in bytes, before
// NewBlob attempts zstd compression. Small payloads (text/plain
// renderings, short HTML) gain nothing and would pay the frame-header
// overhead.
const compressionThreshold = 4096

// encodingZstd marks a blob whose Bytes field holds a zstd frame.
const encodingZstd = "zstd"

// zstdEncoder and zstdDecoder are shared stateless instances used in
// EncodeAll/DecodeAll mode. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic("wire: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("wire: zstd decoder initialization failed: " + err.Error())
	}
}

// Blob carries one binary display payload on the wire. The bytes are
// exactly what the kernel emitted — the codec never routes them
// through text escaping — optionally wrapped in a zstd frame when the
// payload is large enough for compression to pay off.
type Blob struct {
	// Bytes is the payload, compressed when Encoding says so.
	Bytes []byte `cbor:"bytes"`

	// Encoding is "" for raw bytes or "zstd" for a zstd frame.
	Encoding string `cbor:"encoding,omitempty"`

	// UncompressedSize is the original payload size when Encoding is
	// "zstd". Zero for raw blobs.
	UncompressedSize int `cbor:"uncompressed_size,omitempty"`
}

// NewBlob wraps a payload for the wire. Payloads at or above the
// compression threshold are zstd-compressed; compression is kept only
// when it actually shrinks the payload (already-compressed formats
// like PNG typically do not).
func NewBlob(data []byte) Blob {
	if len(data) < compressionThreshold {
		return Blob{Bytes: data}
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return Blob{Bytes: data}
	}
	return Blob{
		Bytes:            compressed,
		Encoding:         encodingZstd,
		UncompressedSize: len(data),
	}
}

// Open returns the original payload bytes, decompressing when needed.
func (b Blob) Open() ([]byte, error) {
	switch b.Encoding {
	case "":
		return b.Bytes, nil
	case encodingZstd:
		data, err := zstdDecoder.DecodeAll(b.Bytes, nil)
		if err != nil {
			return nil, fmt.Errorf("wire: decompressing blob: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("wire: unknown blob encoding %q", b.Encoding)
	}
}

// Size returns the payload's uncompressed size in bytes.
func (b Blob) Size() int {
	if b.Encoding == encodingZstd {
		return b.UncompressedSize
	}
	return len(b.Bytes)
}

// Digest returns the hex BLAKE3 digest of a payload. Diagnostics use
// it to identify artifacts without dumping binary content.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the hex BLAKE3 digest of the uncompressed payload.
// Returns an error only when decompression fails.
func (b Blob) Digest() (string, error) {
	data, err := b.Open()
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}

// RawDigest returns the hex BLAKE3 digest of the payload bytes exactly
// as they appeared on the wire, without decompressing. Usable even
// when the blob is corrupt, which is when diagnostics most need an
// identifier for it.
func (b Blob) RawDigest() string {
	return Digest(b.Bytes)
}
