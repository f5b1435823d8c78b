package httpapi

import "testing"

func TestSetMaxBodyBytes_DefaultWhenNonPositive(t *testing.T) {
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(0)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("expected default 1MiB on zero, got %d", maxBodyBytes)
	}
}

func TestSetMaxBodyBytes_PositiveSetsValue(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
}

func TestSetEventBuffer_NormalizesNonPositive(t *testing.T) {
	defer SetEventBuffer(0)
	SetEventBuffer(-5)
	if eventBuffer != 256 {
		t.Fatalf("expected 256, got %d", eventBuffer)
	}
	SetEventBuffer(8)
	if eventBuffer != 8 {
		t.Fatalf("expected 8, got %d", eventBuffer)
	}
}
