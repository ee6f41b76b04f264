package signature

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStore_SaveAndRestore(t *testing.T) {
	s := NewMemoryStore(0, 0)
	ctx := context.Background()
	key := Key{SessionID: "sess1", Model: "claude-3", TextHash: "abc"}

	if _, ok, err := s.Restore(ctx, key, 1000); err != nil || ok {
		t.Fatalf("expected no entry before Save, got ok=%v err=%v", ok, err)
	}

	if err := s.Save(ctx, key, "sig-value", "claude", 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entry, ok, err := s.Restore(ctx, key, 1001)
	if err != nil || !ok {
		t.Fatalf("expected entry after Save, got ok=%v err=%v", ok, err)
	}
	if entry.Signature != "sig-value" || entry.Family != "claude" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(0, 500) // 500ms TTL
	ctx := context.Background()
	key := Key{SessionID: "sess1", Model: "gemini-pro", TextHash: "h1"}

	if err := s.Save(ctx, key, "sig", "gemini", 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, ok, _ := s.Restore(ctx, key, 1400); !ok {
		t.Fatal("expected entry to still be present before TTL elapses")
	}
	if _, ok, _ := s.Restore(ctx, key, 1500); !ok {
		t.Fatal("expected entry to still be present exactly at the TTL boundary")
	}
	if _, ok, _ := s.Restore(ctx, key, 2000); ok {
		t.Fatal("expected entry to be swept after TTL elapses")
	}
}

func TestMemoryStore_EvictsLowestTimestampOverCap(t *testing.T) {
	s := NewMemoryStore(3, 0)
	ctx := context.Background()
	sessionID := "sessCap"

	for i := 0; i < 5; i++ {
		key := Key{SessionID: sessionID, Model: "claude-3", TextHash: fmt.Sprintf("h%d", i)}
		if err := s.Save(ctx, key, fmt.Sprintf("sig%d", i), "claude", int64(1000+i)); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	for i := 0; i < 2; i++ {
		key := Key{SessionID: sessionID, Model: "claude-3", TextHash: fmt.Sprintf("h%d", i)}
		if _, ok, _ := s.Restore(ctx, key, 9999); ok {
			t.Fatalf("expected entry %d to have been evicted (oldest over cap)", i)
		}
	}
	for i := 2; i < 5; i++ {
		key := Key{SessionID: sessionID, Model: "claude-3", TextHash: fmt.Sprintf("h%d", i)}
		if _, ok, _ := s.Restore(ctx, key, 9999); !ok {
			t.Fatalf("expected entry %d to survive eviction", i)
		}
	}
}

func TestMemoryStore_ClearSession(t *testing.T) {
	s := NewMemoryStore(0, 0)
	ctx := context.Background()
	key := Key{SessionID: "sessClear", Model: "gpt-4", TextHash: "h1"}

	if err := s.Save(ctx, key, "sig", "openai", 1000); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.ClearSession(ctx, "sessClear"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if _, ok, _ := s.Restore(ctx, key, 1001); ok {
		t.Fatal("expected no entry after ClearSession")
	}
}

func TestValidate(t *testing.T) {
	short := "too-short"
	long := ""
	for i := 0; i < 60; i++ {
		long += "x"
	}
	if Validate(short) {
		t.Fatal("expected short signature to be invalid")
	}
	if !Validate(long) {
		t.Fatal("expected 60-char signature to be valid")
	}
}

func TestTextHash_Deterministic(t *testing.T) {
	h1 := TextHash("hello world")
	h2 := TextHash("hello world")
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %q and %q", h1, h2)
	}
	if TextHash("hello world") == TextHash("hello world!") {
		t.Fatal("expected different text to (almost certainly) hash differently")
	}
}

func TestModelFamily(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-20250514": "claude",
		"gemini-pro":               "gemini",
		"gpt-4":                    "openai",
		"gemini-claude-hybrid":     "claude",
	}
	for model, want := range cases {
		if got := ModelFamily(model); got != want {
			t.Errorf("ModelFamily(%q) = %q, want %q", model, got, want)
		}
	}
}
