package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Memory store tests
// ---------------------------------------------------------------------------

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	p := NewProcedure("p", nil)

	m.Set("p", p)
	if !m.Has("p") {
		t.Fatal("Has should report stored key")
	}
	got, err := m.Get("p")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != p {
		t.Error("Get returned a different procedure")
	}
}

func TestMemoryGetAbsentKeyFails(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestMemorySetOverwritesAtZeroRefCount(t *testing.T) {
	m := NewMemory()
	m.Set("p", NewProcedure("old", nil))
	m.Retain("p")
	m.Set("p", NewProcedure("new", nil))
	if m.RefCount("p") != 0 {
		t.Errorf("overwrite should reset refCount to 0, got %d", m.RefCount("p"))
	}
}

func TestMemoryRetainRelease(t *testing.T) {
	m := NewMemory()
	m.Set("p", NewProcedure("p", nil))

	m.Retain("p")
	m.Retain("p")
	if m.RefCount("p") != 2 {
		t.Fatalf("refCount = %d, want 2", m.RefCount("p"))
	}

	m.Release("p")
	if !m.Has("p") {
		t.Fatal("entry evicted while refCount > 0")
	}
	m.Release("p")
	if m.Has("p") {
		t.Error("entry should be evicted when refCount drops to 0")
	}
}

func TestMemoryReleaseWithoutRetainEvicts(t *testing.T) {
	// Entries start at refCount 0, so a single release drops them below
	// zero and evicts.
	m := NewMemory()
	m.Set("p", NewProcedure("p", nil))
	m.Release("p")
	if m.Has("p") {
		t.Error("entry should be evicted at refCount <= 0")
	}
}

func TestMemoryRetainAbsentKeyIsNoop(t *testing.T) {
	m := NewMemory()
	m.Retain("missing")
	m.Release("missing")
	if m.Len() != 0 {
		t.Error("retain/release of absent keys should not create entries")
	}
}
