package vm

import (
	"bytes"
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Structural cloning tests
// ---------------------------------------------------------------------------

func TestCloneIsolatesVariables(t *testing.T) {
	m := startMachine(t, Literal(1.0))
	m.CurrentProcedureContext().Set("x", 1.0)

	clone := m.Clone()
	clone.CurrentProcedureContext().Set("x", 99.0)

	if v, _ := m.CurrentProcedureContext().Get("x"); v != 1.0 {
		t.Errorf("original x = %v after mutating the clone, want 1", v)
	}
	if v, _ := clone.CurrentProcedureContext().Get("x"); v != 99.0 {
		t.Errorf("clone x = %v, want 99", v)
	}
}

func TestCloneIsolatesStacks(t *testing.T) {
	m := startMachine(t)
	m.CurrentProcedureContext().Push("original")

	clone := m.Clone()
	clone.CurrentProcedureContext().Push("extra")

	if got := m.CurrentProcedureContext().StackSize(); got != 1 {
		t.Errorf("original stack size = %d after pushing to clone, want 1", got)
	}
}

func TestCloneIsolatesMemoryRefCounts(t *testing.T) {
	m := startMachine(t)
	m.LoadMemory("p", NewProcedure("p", nil))
	m.Memory().Retain("p")

	clone := m.Clone()
	clone.Memory().Release("p")

	if !m.Memory().Has("p") {
		t.Error("releasing in the clone must not evict from the original")
	}
	if clone.Memory().Has("p") {
		t.Error("clone should have evicted its own entry")
	}
}

func TestClonePreservesAliasing(t *testing.T) {
	m, outer, inner := newScopedMachine(t)
	outer.Set("x", 1.0)

	clone := m.Clone()
	cloneOuter := clone.callStack[0]
	cloneInner := clone.callStack[1]

	// Within the clone the binding still aliases across contexts.
	cloneInner.Set("x", 2.0)
	if v, _ := cloneOuter.Get("x"); v != 2.0 {
		t.Errorf("clone outer x = %v after clone inner set, want 2", v)
	}
	// And the original is untouched.
	if v, _ := inner.Get("x"); v != 1.0 {
		t.Errorf("original x = %v after mutating the clone, want 1", v)
	}
}

func TestCloneResolvesLexicalParents(t *testing.T) {
	m, _, _ := newScopedMachine(t)
	clone := m.Clone()

	cloneOuter := clone.callStack[0]
	cloneInner := clone.callStack[1]
	if cloneInner.ParentContextID() != cloneOuter.ID() {
		t.Error("cloned inner context should keep its lexical parent id")
	}
	if cloneInner.lexicalParent() != cloneOuter {
		t.Error("cloned inner context should resolve its parent within the clone")
	}
}

// ---------------------------------------------------------------------------
// History tests
// ---------------------------------------------------------------------------

func TestHistoryStepForwardAndBack(t *testing.T) {
	m := startMachine(t, Literal(1.0), Pop())
	h := NewHistory(m)

	steps, err := h.RunToEnd()
	if err != nil {
		t.Fatalf("RunToEnd failed: %v", err)
	}
	// Two instructions plus the final step that observes the end of main.
	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
	if h.Current().Running() {
		t.Error("final snapshot should not be running")
	}
	if h.Position() != steps {
		t.Errorf("Position = %d, want %d", h.Position(), steps)
	}

	for i := steps; i > 0; i-- {
		if !h.StepBack() {
			t.Fatalf("StepBack failed at position %d", h.Position())
		}
	}
	if h.StepBack() {
		t.Error("StepBack past the initial state should report false")
	}
	if h.Current() != h.Snapshot(0) {
		t.Error("cursor should rest on the initial snapshot")
	}
	if !h.Current().Running() {
		t.Error("initial snapshot should still be running")
	}
}

func TestHistorySnapshotsAreImmutable(t *testing.T) {
	m := startMachine(t,
		SetVariableToLiteral("x", 1.0),
		SetVariableToLiteral("x", 2.0),
	)
	h := NewHistory(m)

	if _, err := h.StepForward(); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	before, err := MarshalMachine(h.Snapshot(1))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if _, err := h.RunToEnd(); err != nil {
		t.Fatalf("RunToEnd failed: %v", err)
	}
	after, err := MarshalMachine(h.Snapshot(1))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("running forward mutated an earlier snapshot")
	}
}

func TestHistoryTruncatesAbandonedFuture(t *testing.T) {
	m := startMachine(t, Literal(1.0), Literal(2.0), Literal(3.0))
	h := NewHistory(m)

	for i := 0; i < 2; i++ {
		if _, err := h.StepForward(); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}
	h.StepBack()
	if _, err := h.StepForward(); err != nil {
		t.Fatalf("re-step failed: %v", err)
	}
	if h.Len() != 3 {
		t.Errorf("Len = %d after abandoning a future, want 3", h.Len())
	}
	if h.Position() != 2 {
		t.Errorf("Position = %d, want 2", h.Position())
	}
}

func TestHistoryImplicitReturnStep(t *testing.T) {
	mainProc := NewProcedure(MainProcedureKey, nil)
	sub := NewProcedure("main.1", mainProc)
	sub.Append(Literal(1.0), Pop())
	sub.Seal()
	mainProc.Append(Literal(sub), InvokeProcedure())
	mainProc.Seal()

	m := NewMachine(NewCoreRegistry())
	m.LoadMemory(MainProcedureKey, mainProc)
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h := NewHistory(m)

	// literal, invoke, literal, pop: the sub context is now off the end.
	for i := 0; i < 4; i++ {
		if _, err := h.StepForward(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
	if depth := h.Current().StackDepth(); depth != 2 {
		t.Fatalf("depth before implicit return = %d, want 2", depth)
	}

	advanced, err := h.StepForward()
	if err != nil || !advanced {
		t.Fatalf("implicit return step: advanced=%v err=%v", advanced, err)
	}
	if depth := h.Current().StackDepth(); depth != 1 {
		t.Errorf("depth after implicit return = %d, want 1", depth)
	}
}

func TestRunToEndStepLimit(t *testing.T) {
	// jump -1 plus the post-increment leaves the pc in place forever.
	m := startMachine(t, Jump(-1))
	h := NewHistory(m)
	h.SetStepLimit(10)

	steps, err := h.RunToEnd()
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if steps != 10 {
		t.Errorf("steps = %d, want 10", steps)
	}
}

func TestHistoryStopsAfterHalt(t *testing.T) {
	m := startMachine(t, Halt(), Literal(1.0))
	h := NewHistory(m)

	steps, err := h.RunToEnd()
	if err != nil {
		t.Fatalf("RunToEnd failed: %v", err)
	}
	if steps != 1 {
		t.Errorf("steps = %d, want 1", steps)
	}
	if h.Current().Running() {
		t.Error("machine should stay halted")
	}
}
