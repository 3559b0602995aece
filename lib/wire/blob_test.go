// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"testing"
)

func TestBlobSmallPayloadStaysRaw(t *testing.T) {
	payload := []byte("a short text/plain rendering")
	blob := NewBlob(payload)

	if blob.Encoding != "" {
		t.Errorf("small payload was compressed: encoding %q", blob.Encoding)
	}
	if !bytes.Equal(blob.Bytes, payload) {
		t.Error("raw blob bytes differ from payload")
	}
	if blob.Size() != len(payload) {
		t.Errorf("Size: got %d, want %d", blob.Size(), len(payload))
	}
}

func TestBlobCompressibleLargePayload(t *testing.T) {
	// Highly repetitive, well above the threshold: must compress.
	payload := bytes.Repeat([]byte("the quick brown fox "), 1024)
	blob := NewBlob(payload)

	if blob.Encoding != encodingZstd {
		t.Fatalf("large compressible payload not compressed: encoding %q", blob.Encoding)
	}
	if len(blob.Bytes) >= len(payload) {
		t.Errorf("compression did not shrink payload: %d >= %d", len(blob.Bytes), len(payload))
	}
	if blob.Size() != len(payload) {
		t.Errorf("Size: got %d, want %d", blob.Size(), len(payload))
	}

	opened, err := blob.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Error("compressed blob did not round-trip exactly")
	}
}

func TestBlobIncompressiblePayloadStaysRaw(t *testing.T) {
	// Pseudo-random bytes do not compress; NewBlob must keep them raw
	// rather than shipping a larger zstd frame.
	payload := make([]byte, 8192)
	state := uint32(0x9e3779b9)
	for i := range payload {
		state = state*1664525 + 1013904223
		payload[i] = byte(state >> 24)
	}
	blob := NewBlob(payload)

	if blob.Encoding != "" {
		t.Errorf("incompressible payload was compressed: encoding %q", blob.Encoding)
	}
	opened, err := blob.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Error("raw blob did not round-trip")
	}
}

func TestBlobDigestStableAcrossEncapsulation(t *testing.T) {
	payload := bytes.Repeat([]byte("plot data "), 2048)

	compressed := NewBlob(payload)
	raw := Blob{Bytes: payload}

	compressedDigest, err := compressed.Digest()
	if err != nil {
		t.Fatalf("Digest (compressed): %v", err)
	}
	rawDigest, err := raw.Digest()
	if err != nil {
		t.Fatalf("Digest (raw): %v", err)
	}
	if compressedDigest != rawDigest {
		t.Errorf("digest differs across encapsulation: %s != %s", compressedDigest, rawDigest)
	}
	if len(compressedDigest) != 64 {
		t.Errorf("digest length: got %d hex chars, want 64", len(compressedDigest))
	}
}

func TestBlobRawDigestWorksOnCorruptBlob(t *testing.T) {
	blob := Blob{
		Bytes:            []byte("definitely not a zstd frame"),
		Encoding:         encodingZstd,
		UncompressedSize: 1 << 20,
	}
	if _, err := blob.Digest(); err == nil {
		t.Fatal("Digest succeeded on a corrupt blob")
	}
	rawDigest := blob.RawDigest()
	if len(rawDigest) != 64 {
		t.Fatalf("RawDigest length: got %d hex chars, want 64", len(rawDigest))
	}
	if rawDigest != Digest(blob.Bytes) {
		t.Error("RawDigest differs from the digest of the wire bytes")
	}
}

func TestDigestMatchesBlobDigest(t *testing.T) {
	payload := []byte("the same payload either way")
	blobDigest, err := NewBlob(payload).Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if got := Digest(payload); got != blobDigest {
		t.Errorf("package Digest = %s, blob Digest = %s", got, blobDigest)
	}
}

func TestBlobUnknownEncoding(t *testing.T) {
	blob := Blob{Bytes: []byte("x"), Encoding: "lzma"}
	if _, err := blob.Open(); err == nil {
		t.Error("Open accepted an unknown encoding")
	}
}
