package vm

import "fmt"

// ---------------------------------------------------------------------------
// Memory: reference-counted global code store
// ---------------------------------------------------------------------------

// memoryEntry pairs a stored procedure with its reference count.
type memoryEntry struct {
	procedure *CompiledProcedure
	refCount  int
}

// Memory is a keyed store of loaded procedures with explicit reference
// counting. It lets the compiler and closures keep a shared procedure alive
// across multiple referencing contexts without a garbage collector. An entry
// is evicted when a Release drops its count to zero or below.
type Memory struct {
	entries map[string]*memoryEntry
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry)}
}

// Set creates or overwrites the entry for key with refCount 0.
func (m *Memory) Set(key string, procedure *CompiledProcedure) {
	m.entries[key] = &memoryEntry{procedure: procedure}
}

// Has reports whether key is present.
func (m *Memory) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Get returns the procedure stored under key. An absent key is an error,
// never a silent nil.
func (m *Memory) Get(key string) (*CompiledProcedure, error) {
	entry, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("memory %q: %w", key, ErrKeyNotFound)
	}
	return entry.procedure, nil
}

// Retain increments the reference count for key. Retaining an absent key is
// a no-op.
func (m *Memory) Retain(key string) {
	if entry, ok := m.entries[key]; ok {
		entry.refCount++
	}
}

// Release decrements the reference count for key and evicts the entry when
// the count drops to zero or below. Releasing an absent key is a no-op.
func (m *Memory) Release(key string) {
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount <= 0 {
		delete(m.entries, key)
	}
}

// RefCount returns the current reference count for key, or 0 if absent.
func (m *Memory) RefCount(key string) int {
	if entry, ok := m.entries[key]; ok {
		return entry.refCount
	}
	return 0
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	return len(m.entries)
}

// clone copies the store for a machine snapshot. Entry structs are copied
// because reference counts are mutable; the procedures themselves are
// immutable and shared.
func (m *Memory) clone() *Memory {
	entries := make(map[string]*memoryEntry, len(m.entries))
	for key, entry := range m.entries {
		copied := *entry
		entries[key] = &copied
	}
	return &Memory{entries: entries}
}
