// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical message always
// produces identical bytes.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are silently ignored so older clients keep working
// when a kernel adds envelope fields.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The wire protocol never uses non-string map keys. When the
		// decoder's target is any (display payload metadata, transient
		// hints), it must pick a concrete Go map type; the CBOR default
		// of map[interface{}]interface{} is incompatible with most Go
		// code expecting map[string]any. Struct field decoding is
		// unaffected by this setting.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Malformed input is reported as
// *DecodeError.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// UnmarshalAs decodes CBOR data into v like Unmarshal, naming the
// decode stage in any resulting *DecodeError. Channel read loops use
// it so a drop diagnostic says what was being decoded ("broadcast
// event", "execute reply") rather than just that a frame was bad.
func UnmarshalAs(stage string, data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return &DecodeError{Context: stage, Err: err}
	}
	return nil
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value. The wire envelope carries
// its content field as a RawMessage so the typed payload is decoded
// only after the message type is known.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w using the
// standard Core Deterministic Encoding configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r using the
// standard decoding configuration.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// DecodeError reports a malformed or truncated wire frame. It is a
// recoverable per-message fault: the transport drops the frame, logs a
// diagnostic, and continues reading the channel. It must never tear
// down the session.
type DecodeError struct {
	// Context names the decode stage that failed (e.g., "envelope",
	// "stream content"). Empty when the failure is a bare Unmarshal.
	Context string

	// Err is the underlying CBOR decoding error.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("codec: decoding frame: %v", e.Err)
	}
	return fmt.Sprintf("codec: decoding %s: %v", e.Context, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
