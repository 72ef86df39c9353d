package console

import (
	"fmt"
	"testing"
)

func makeDiagnostic(id int) Diagnostic {
	return Diagnostic{
		Op:      "execute",
		Kind:    "transport",
		Message: fmt.Sprintf("failure-%d", id),
	}
}

func TestRingBuffer_EmptyRead(t *testing.T) {
	rb := NewRingBuffer(10)
	records := rb.ReadAll()
	if len(records) != 0 {
		t.Errorf("expected empty buffer, got %d records", len(records))
	}
}

func TestRingBuffer_PartialFill(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.Write(makeDiagnostic(i))
	}

	records := rb.ReadAll()
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	for i, d := range records {
		expected := fmt.Sprintf("failure-%d", i)
		if d.Message != expected {
			t.Errorf("record %d: expected %s, got %s", i, expected, d.Message)
		}
		if d.Timestamp.IsZero() {
			t.Errorf("record %d: expected timestamp to be filled in", i)
		}
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 0; i < 8; i++ {
		rb.Write(makeDiagnostic(i))
	}

	records := rb.ReadAll()
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	// Oldest three were overwritten.
	for i, d := range records {
		expected := fmt.Sprintf("failure-%d", i+3)
		if d.Message != expected {
			t.Errorf("record %d: expected %s, got %s", i, expected, d.Message)
		}
	}
}

func TestRingBuffer_ExactCapacity(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 3; i++ {
		rb.Write(makeDiagnostic(i))
	}

	records := rb.ReadAll()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	for i, d := range records {
		expected := fmt.Sprintf("failure-%d", i)
		if d.Message != expected {
			t.Errorf("record %d: expected %s, got %s", i, expected, d.Message)
		}
	}
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	rb.Write(makeDiagnostic(1))
	rb.Write(makeDiagnostic(2))

	records := rb.ReadAll()
	if len(records) != 1 || records[0].Message != "failure-2" {
		t.Errorf("expected only the latest record, got %+v", records)
	}
}
