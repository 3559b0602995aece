// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// sampleEnvelope is a representative wire message using cbor struct
// tags, the convention for all protocol types.
type sampleEnvelope struct {
	Type          string `cbor:"type"`
	CorrelationID string `cbor:"correlation_id,omitempty"`
	Text          string `cbor:"text,omitempty"`
	Payload       []byte `cbor:"payload,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEnvelope{
		Type:          "stream",
		CorrelationID: "c9d2aa10-5f7e-4f2c-9f5b-0c1e4b8a7d3e",
		Text:          "hello",
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != original.Type || decoded.CorrelationID != original.CorrelationID || decoded.Text != original.Text {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestRoundtripUnicodeText(t *testing.T) {
	original := sampleEnvelope{
		Type: "stream",
		Text: "héllo wörld — ≤≥ 数式 🧪\n",
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Text != original.Text {
		t.Errorf("unicode text corrupted: got %q, want %q", decoded.Text, original.Text)
	}
}

func TestRoundtripBinaryPayload(t *testing.T) {
	// All 256 byte values, including NUL and high bytes that would
	// corrupt under any text-escaping transport.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	original := sampleEnvelope{Type: "display_data", Payload: payload}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleEnvelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Error("binary payload did not round-trip exactly")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleEnvelope{Type: "status", Text: "idle"}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	messages := []sampleEnvelope{
		{Type: "stream", Text: "first"},
		{Type: "stream", Text: "second"},
		{Type: "status", Text: "idle"},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got sampleEnvelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got.Type != want.Type || got.Text != want.Text {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalMalformedReturnsDecodeError(t *testing.T) {
	var target sampleEnvelope
	err := Unmarshal([]byte{0xff, 0x00, 0x01}, &target)
	if err == nil {
		t.Fatal("Unmarshal accepted malformed CBOR")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Errorf("error type: got %T, want *DecodeError", err)
	}
}

func TestUnmarshalAsNamesStage(t *testing.T) {
	var target sampleEnvelope
	err := UnmarshalAs("broadcast event", []byte{0xff, 0x00, 0x01}, &target)
	if err == nil {
		t.Fatal("UnmarshalAs accepted malformed CBOR")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error type: got %T, want *DecodeError", err)
	}
	if decodeErr.Context != "broadcast event" {
		t.Errorf("Context: got %q, want %q", decodeErr.Context, "broadcast event")
	}
	if !strings.Contains(err.Error(), "broadcast event") {
		t.Errorf("error message omits the decode stage: %q", err.Error())
	}

	data, err := Marshal(sampleEnvelope{Type: "status", Text: "idle"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := UnmarshalAs("broadcast event", data, &target); err != nil {
		t.Errorf("UnmarshalAs rejected valid CBOR: %v", err)
	}
}
