package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var historyLog = commonlog.GetLogger("wax.history")

// ---------------------------------------------------------------------------
// Structural cloning
// ---------------------------------------------------------------------------

// Clone produces a structurally shared copy of the machine. Compiled
// procedures and instructions are immutable and shared by reference; memory
// entries are copied shallowly (reference counts are per snapshot); contexts
// and their variables are copied with alias structure preserved, so two
// contexts sharing one Variable in the original share one Variable in the
// clone. Lexical parent links survive unchanged because they are ids
// resolved through the owning machine, not pointers into the old snapshot.
func (m *Machine) Clone() *Machine {
	clone := &Machine{
		registry:       m.registry,
		memory:         m.memory.clone(),
		nextVariableID: m.nextVariableID,
		nextContextID:  m.nextContextID,
		running:        m.running,
	}
	memo := make(map[*Variable]*Variable)
	clone.callStack = make([]*ProcedureContext, len(m.callStack))
	for i, ctx := range m.callStack {
		clone.callStack[i] = ctx.clone(clone, memo)
	}
	for _, ctx := range clone.callStack {
		ctx.afterClone(memo)
	}
	return clone
}

// ---------------------------------------------------------------------------
// History: reversible stepping
// ---------------------------------------------------------------------------

// DefaultStepLimit bounds RunToEnd so a non-terminating loop cannot hang
// the driver.
const DefaultStepLimit = 100_000

// ErrStepLimit is returned by RunToEnd when the step limit is exhausted
// before the program ends.
var ErrStepLimit = fmt.Errorf("step limit exceeded")

// History is the ordered, immutable sequence of machine snapshots, one per
// executed instruction. Stepping forward clones the current snapshot and
// executes exactly one instruction against the clone; stepping backward just
// moves the cursor. Earlier snapshots are never mutated.
type History struct {
	snapshots []*Machine
	pos       int
	stepLimit int
}

// NewHistory starts a history at an initial machine state. The machine
// should already be started.
func NewHistory(m *Machine) *History {
	return &History{
		snapshots: []*Machine{m},
		stepLimit: DefaultStepLimit,
	}
}

// SetStepLimit overrides the RunToEnd bound. Values below one are ignored.
func (h *History) SetStepLimit(limit int) {
	if limit >= 1 {
		h.stepLimit = limit
	}
}

// Current returns the snapshot at the cursor.
func (h *History) Current() *Machine {
	return h.snapshots[h.pos]
}

// Position returns the cursor index: the number of steps taken from the
// initial state.
func (h *History) Position() int {
	return h.pos
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	return len(h.snapshots)
}

// Snapshot returns the i'th stored snapshot.
func (h *History) Snapshot(i int) *Machine {
	return h.snapshots[i]
}

// StepForward executes one instruction against a clone of the current
// snapshot and appends the result. A context that has run off the end of a
// non-main procedure is returned-from as one step. Returns false when no
// step remains: the machine halted, or main ran off the end.
//
// Stepping forward after stepping back truncates the abandoned future.
func (h *History) StepForward() (bool, error) {
	current := h.Current()
	if !current.Running() {
		return false, nil
	}
	next := current.Clone()
	if in, ok := next.GetInstruction(); ok {
		if err := next.ApplyInstruction(in); err != nil {
			return false, err
		}
	} else if next.CanReturnFromProcedure() {
		// Implicit return: the context ran off the end of its procedure.
		if err := next.ReturnFromProcedure(); err != nil {
			return false, err
		}
	} else {
		next.running = false
	}
	h.snapshots = append(h.snapshots[:h.pos+1], next)
	h.pos++
	return true, nil
}

// StepBack moves the cursor one snapshot toward the initial state. Returns
// false at the initial state.
func (h *History) StepBack() bool {
	if h.pos == 0 {
		return false
	}
	h.pos--
	return true
}

// RunToEnd steps forward until no instruction remains, bounded by the step
// limit. Returns the number of steps taken.
func (h *History) RunToEnd() (int, error) {
	steps := 0
	for steps < h.stepLimit {
		advanced, err := h.StepForward()
		if err != nil {
			return steps, err
		}
		if !advanced {
			historyLog.Infof("run ended after %d steps", steps)
			return steps, nil
		}
		steps++
	}
	return steps, fmt.Errorf("after %d steps: %w", steps, ErrStepLimit)
}
