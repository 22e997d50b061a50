// Package compiler lowers AST nodes to Wax bytecode.
package compiler

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/patreeceeo/wax-editor-sub000/vm"
)

var log = commonlog.GetLogger("wax.compiler")

// Recoverable build errors. These surface as Result-style error values, not
// panics: batch validation collects every authoring mistake before reporting.
var (
	// ErrProcedureStackUnderflow is returned by PopProcedure when no
	// procedure is under construction.
	ErrProcedureStackUnderflow = errors.New("procedure build stack underflow")

	// ErrNoActiveProcedure is returned by Append outside PushProcedure /
	// PopProcedure pairs.
	ErrNoActiveProcedure = errors.New("no active procedure")

	// ErrEmptyName marks a variable node with an empty name.
	ErrEmptyName = errors.New("empty variable name")

	// ErrEmptyMessage marks a send node with an empty message.
	ErrEmptyMessage = errors.New("empty message name")

	// ErrMissingReceiver marks a send node without a receiver.
	ErrMissingReceiver = errors.New("missing receiver")

	// ErrMissingValue marks an assignment without a right-hand side.
	ErrMissingValue = errors.New("missing value")

	// ErrMissingCondition marks a conditional without a condition.
	ErrMissingCondition = errors.New("missing condition")
)

// ---------------------------------------------------------------------------
// Compiler: AST to bytecode lowering
// ---------------------------------------------------------------------------

// Compiler maintains a stack of in-progress compiled procedures, the build
// stack. Nested closures compile by pushing a child procedure, emitting into
// it and popping it back as a literal operand of the enclosing procedure.
type Compiler struct {
	machine *vm.Machine
	stack   []*vm.CompiledProcedure

	// children counts emitted nested procedures per parent, for stable ids.
	children map[*vm.CompiledProcedure]int
}

// NewCompiler creates a compiler that registers its output in machine.
func NewCompiler(machine *vm.Machine) *Compiler {
	return &Compiler{
		machine:  machine,
		children: make(map[*vm.CompiledProcedure]int),
	}
}

// PushProcedure begins a new procedure whose static parent is the current
// top of the build stack, and makes it the new top.
func (c *Compiler) PushProcedure() *vm.CompiledProcedure {
	parent := c.current()
	id := vm.MainProcedureKey
	if parent != nil {
		c.children[parent]++
		id = fmt.Sprintf("%s.%d", parent.ID(), c.children[parent])
	}
	procedure := vm.NewProcedure(id, parent)
	c.stack = append(c.stack, procedure)
	return procedure
}

// PopProcedure seals and returns the completed top of the build stack.
func (c *Compiler) PopProcedure() (*vm.CompiledProcedure, error) {
	if len(c.stack) == 0 {
		return nil, ErrProcedureStackUnderflow
	}
	procedure := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	procedure.Seal()
	return procedure, nil
}

// Append emits instructions into the procedure under construction.
func (c *Compiler) Append(instructions ...vm.Instruction) error {
	current := c.current()
	if current == nil {
		return ErrNoActiveProcedure
	}
	current.Append(instructions...)
	return nil
}

// Offset returns the next emission index in the current procedure. Control
// flow lowering records offsets for later patching.
func (c *Compiler) Offset() int {
	if current := c.current(); current != nil {
		return current.Length()
	}
	return 0
}

// PatchJump rewrites the jump at index so that, after the machine's
// post-increment, execution lands exactly at target.
func (c *Compiler) PatchJump(index, target int) error {
	current := c.current()
	if current == nil {
		return ErrNoActiveProcedure
	}
	return current.PatchArg(index, 0, target-index-1)
}

func (c *Compiler) current() *vm.CompiledProcedure {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// Compile validates the AST, lowers it into a root procedure and registers
// the result under "main" in the target machine, retaining the entry so the
// store keeps it alive.
func (c *Compiler) Compile(node Node) error {
	if err := Validate(node); err != nil {
		return err
	}
	root := c.PushProcedure()
	if err := runSteps(c, node.steps()); err != nil {
		return fmt.Errorf("lowering %s: %w", root.ID(), err)
	}
	procedure, err := c.PopProcedure()
	if err != nil {
		return err
	}
	c.machine.LoadMemory(vm.MainProcedureKey, procedure)
	c.machine.Memory().Retain(vm.MainProcedureKey)
	log.Infof("compiled %s (%d instructions)", procedure.ID(), procedure.Length())
	return nil
}

// Validate collects every authoring error in the tree. The returned error is
// a multierror listing each invalid block; nil means the tree is sound.
func Validate(node Node) error {
	errs := &multierror.Error{}
	node.validate(errs)
	return errs.ErrorOrNil()
}
