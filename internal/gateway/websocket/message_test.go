package websocket

import (
	"testing"
	"time"

	"github.com/aetherflow/collabedit/internal/transform"
)

func TestMessageRoundTrip(t *testing.T) {
	original := NewMessage(MessageTypeOperation, OperationData{
		Operation: transform.Operation{
			ID:        "op1",
			Type:      transform.TypeInsert,
			Position:  5,
			Content:   "hello",
			UserID:    "u1",
			Timestamp: time.UnixMilli(100),
		},
		BaseVersion: 3,
	})

	data, err := original.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	parsed, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if parsed.ID != original.ID || parsed.Type != MessageTypeOperation {
		t.Errorf("envelope fields lost: %+v", parsed)
	}

	var payload OperationData
	if err := parsed.DecodeData(&payload); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if payload.Operation.ID != "op1" || payload.Operation.Content != "hello" {
		t.Errorf("payload fields lost: %+v", payload.Operation)
	}
	if payload.BaseVersion != 3 {
		t.Errorf("expected base version 3, got %d", payload.BaseVersion)
	}
}

func TestNewMessageGeneratesIDs(t *testing.T) {
	a := NewMessage(MessageTypePing, nil)
	b := NewMessage(MessageTypePing, nil)

	if a.ID == "" || b.ID == "" {
		t.Error("messages must carry ids")
	}
	if a.ID == b.ID {
		t.Error("message ids must be unique")
	}
	if a.Data != nil {
		t.Errorf("nil payload should produce empty data, got %s", a.Data)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("something broke")

	if msg.Type != MessageTypeError {
		t.Errorf("expected error type, got %s", msg.Type)
	}
	if msg.Error != "something broke" {
		t.Errorf("unexpected error text: %q", msg.Error)
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	parsed, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if parsed.Error != "something broke" {
		t.Errorf("error text lost on the wire: %q", parsed.Error)
	}
}

func TestFromJSONInvalid(t *testing.T) {
	if _, err := FromJSON([]byte(`{not valid`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestDecodeDataAuth(t *testing.T) {
	msg := NewMessage(MessageTypeAuth, AuthData{
		Token:      "tok",
		UserID:     "u1",
		DocumentID: "doc1",
	})

	var auth AuthData
	if err := msg.DecodeData(&auth); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if auth.Token != "tok" || auth.UserID != "u1" || auth.DocumentID != "doc1" {
		t.Errorf("unexpected auth payload: %+v", auth)
	}
}
