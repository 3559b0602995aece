// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/replwire/replwire/lib/codec"
)

func TestExecuteRequestCorrelation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	message := NewExecuteRequest("session-1", "x = 1", now)

	if message.ID == "" {
		t.Fatal("request has no message id")
	}
	if message.CorrelationID != message.ID {
		t.Errorf("correlation id %q does not match message id %q", message.CorrelationID, message.ID)
	}
	if message.ExecuteRequest == nil || message.ExecuteRequest.Code != "x = 1" {
		t.Errorf("request content: got %+v", message.ExecuteRequest)
	}
	if err := message.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	second := NewExecuteRequest("session-1", "x = 1", now)
	if second.CorrelationID == message.CorrelationID {
		t.Error("two submissions share a correlation id")
	}
}

func TestMessageEnvelopeRoundtrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	original := Message{
		ID:            NewID(),
		CorrelationID: NewID(),
		SessionID:     "session-7",
		Type:          TypeStream,
		Timestamp:     now,
		Stream:        &StreamContent{Name: Stdout, Text: "héllo 🌍\n"},
	}

	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Message
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("Validate after roundtrip: %v", err)
	}
	if decoded.Stream == nil || decoded.Stream.Text != original.Stream.Text {
		t.Errorf("stream content: got %+v, want %+v", decoded.Stream, original.Stream)
	}
	if decoded.CorrelationID != original.CorrelationID {
		t.Errorf("correlation id: got %q, want %q", decoded.CorrelationID, original.CorrelationID)
	}
}

func TestValidateRejectsMismatchedContent(t *testing.T) {
	message := Message{
		ID:     NewID(),
		Type:   TypeError,
		Stream: &StreamContent{Name: Stdout, Text: "x"},
	}
	if err := message.Validate(); err == nil {
		t.Error("Validate accepted an error message with no error content")
	}

	message = Message{ID: NewID(), Type: MessageType("bogus")}
	if err := message.Validate(); err == nil {
		t.Error("Validate accepted an unknown message type")
	}
}

func TestIsEvent(t *testing.T) {
	events := []MessageType{TypeStream, TypeDisplayData, TypeExecuteResult, TypeError, TypeStatus}
	for _, messageType := range events {
		if !(&Message{Type: messageType}).IsEvent() {
			t.Errorf("%s: IsEvent = false, want true", messageType)
		}
	}
	nonEvents := []MessageType{TypeExecuteRequest, TypeExecuteReply, TypePing, TypePong}
	for _, messageType := range nonEvents {
		if (&Message{Type: messageType}).IsEvent() {
			t.Errorf("%s: IsEvent = true, want false", messageType)
		}
	}
}

func TestPongEchoesPingID(t *testing.T) {
	now := time.Now()
	ping := NewPing("session-1", now)
	pong := NewPong(ping, now)
	if pong.CorrelationID != ping.ID {
		t.Errorf("pong correlation id %q, want ping id %q", pong.CorrelationID, ping.ID)
	}
}

func TestDisplayDataBinaryRoundtrip(t *testing.T) {
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	original := Message{
		ID:            NewID(),
		CorrelationID: NewID(),
		Type:          TypeDisplayData,
		Timestamp:     time.Now(),
		DisplayData: &DisplayDataContent{
			Data: map[string]Blob{"image/png": NewBlob(payload)},
		},
	}

	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Message
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	blob, ok := decoded.DisplayData.Data["image/png"]
	if !ok {
		t.Fatal("image/png payload missing after roundtrip")
	}
	opened, err := blob.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Error("binary payload did not round-trip exactly")
	}
}
