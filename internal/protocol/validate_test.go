package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func clientMessage(msgType string, payload map[string]interface{}) []byte {
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)
	return data
}

func TestNewMessage(t *testing.T) {
	payload := SessionUpdatePayload{
		ID:    "test-id",
		State: "active",
		Label: "test",
	}

	msg, err := NewMessage(TypeSessionUpdate, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != TypeSessionUpdate {
		t.Errorf("expected type %s, got %s", TypeSessionUpdate, msg.Type)
	}

	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p SessionUpdatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ID != "test-id" {
		t.Errorf("expected ID 'test-id', got %s", p.ID)
	}
}

func TestValidateClientMessage_ValidInput(t *testing.T) {
	data := clientMessage(TypeConsoleInput, map[string]interface{}{"sessionId": "abc-123", "text": "ls -l"})

	result, err := ValidateClientMessage(data)
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
	if result.Type != TypeConsoleInput {
		t.Errorf("expected type %s, got %s", TypeConsoleInput, result.Type)
	}
}

func TestValidateClientMessage_EmptyInputTextAllowed(t *testing.T) {
	data := clientMessage(TypeConsoleInput, map[string]interface{}{"sessionId": "abc-123", "text": ""})

	if _, err := ValidateClientMessage(data); err != nil {
		t.Fatalf("expected empty text to be valid, got error: %v", err)
	}
}

func TestValidateClientMessage_SessionOnlyTypes(t *testing.T) {
	for _, msgType := range []string{
		TypeConsoleSubmit,
		TypeConsoleRecallPrevious,
		TypeConsoleRecallNext,
		TypeConsoleSnapshot,
	} {
		data := clientMessage(msgType, map[string]interface{}{"sessionId": "abc"})
		if _, err := ValidateClientMessage(data); err != nil {
			t.Errorf("%s: expected valid message, got error: %v", msgType, err)
		}

		data = clientMessage(msgType, map[string]interface{}{})
		if _, err := ValidateClientMessage(data); err == nil {
			t.Errorf("%s: expected error for missing sessionId", msgType)
		}
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	_, err := ValidateClientMessage([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	data := clientMessage("", map[string]interface{}{})

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	data := clientMessage("unknown.action", map[string]interface{}{})

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateClientMessage_ServerTypeRejected(t *testing.T) {
	data := clientMessage(TypeConsoleState, map[string]interface{}{"sessionId": "abc"})

	if _, err := ValidateClientMessage(data); err == nil {
		t.Fatal("expected error for server-only message type")
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	data := []byte(`{"type":"console.submit","timestamp":"2024-01-01T00:00:00.000Z"}`)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestValidateClientMessage_InputMissingSessionID(t *testing.T) {
	data := clientMessage(TypeConsoleInput, map[string]interface{}{"text": "hello"})

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing sessionId")
	}
}

func TestValidateClientMessage_InputWrongFieldType(t *testing.T) {
	data := clientMessage(TypeConsoleInput, map[string]interface{}{"sessionId": "abc", "text": 42})

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for non-string text")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrSessionNotFound, "session xyz not found")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrSessionNotFound, p.Code)
	}
}
