package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/patreeceeo/wax-editor-sub000/vm"
)

// ---------------------------------------------------------------------------
// AST: the block-authoring surface lowered to instructions
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes. Lowering is linear in
// AST size: each node contributes a flat, ordered sequence of compiler
// steps; steps may themselves push and pop procedures for nested closures.
type Node interface {
	node() // marker method

	// validate appends this node's authoring errors. Validation is
	// recoverable: every error in the tree is collected before reporting
	// so a batch of bad blocks surfaces at once.
	validate(errs *multierror.Error)

	// steps returns the node's lowering operations in emission order.
	steps() []Step
}

// Step is one lowering operation executed against the compiler.
type Step func(c *Compiler) error

// expression nodes leave exactly one value on the stack; statement nodes
// leave none. Statement position wraps expressions with a trailing pop.
type expression interface {
	Node
	expression()
}

func runSteps(c *Compiler, steps []Step) error {
	for _, step := range steps {
		if err := step(c); err != nil {
			return err
		}
	}
	return nil
}

// statementSteps lowers a node in statement position: expressions get a pop
// so their value does not accumulate on the operand stack.
func statementSteps(n Node) []Step {
	steps := n.steps()
	if _, ok := n.(expression); ok {
		steps = append(steps, func(c *Compiler) error {
			return c.Append(vm.Pop())
		})
	}
	return steps
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Literal represents a constant value: nil, a number, a string, a boolean,
// a list or a string-keyed map of these.
type Literal struct {
	Value vm.Value
}

func (n *Literal) node()       {}
func (n *Literal) expression() {}

func (n *Literal) validate(errs *multierror.Error) {}

func (n *Literal) steps() []Step {
	return []Step{func(c *Compiler) error {
		return c.Append(vm.Literal(n.Value))
	}}
}

// VariableRef reads a variable through the scope chain.
type VariableRef struct {
	Name string
}

func (n *VariableRef) node()       {}
func (n *VariableRef) expression() {}

func (n *VariableRef) validate(errs *multierror.Error) {
	if n.Name == "" {
		_ = multierror.Append(errs, fmt.Errorf("variable reference: %w", ErrEmptyName))
	}
}

func (n *VariableRef) steps() []Step {
	return []Step{func(c *Compiler) error {
		return c.Append(vm.GetVariable(n.Name))
	}}
}

// Send is a message send: receiver first, then each argument left to right,
// then the dispatch itself. The emitted operand count always matches the
// number of arguments actually pushed.
type Send struct {
	Receiver Node
	Message  string
	Args     []Node
}

func (n *Send) node()       {}
func (n *Send) expression() {}

func (n *Send) validate(errs *multierror.Error) {
	if n.Message == "" {
		_ = multierror.Append(errs, fmt.Errorf("message send: %w", ErrEmptyMessage))
	}
	if n.Receiver == nil {
		_ = multierror.Append(errs, fmt.Errorf("message send %q: %w", n.Message, ErrMissingReceiver))
	} else {
		n.Receiver.validate(errs)
	}
	for _, arg := range n.Args {
		arg.validate(errs)
	}
}

func (n *Send) steps() []Step {
	steps := n.Receiver.steps()
	for _, arg := range n.Args {
		steps = append(steps, arg.steps()...)
	}
	return append(steps, func(c *Compiler) error {
		return c.Append(vm.SendMessage(n.Message, len(n.Args)))
	})
}

// ProcedureLiteral is a closure: its body compiles into a nested procedure
// whose static parent is the procedure under construction, and the literal
// instruction pushes the completed procedure at runtime. Bodies without an
// explicit Return get an implicit `return nil` so every closure yields
// exactly one value.
type ProcedureLiteral struct {
	Body []Node
}

func (n *ProcedureLiteral) node()       {}
func (n *ProcedureLiteral) expression() {}

func (n *ProcedureLiteral) validate(errs *multierror.Error) {
	for _, stmt := range n.Body {
		stmt.validate(errs)
	}
}

func (n *ProcedureLiteral) steps() []Step {
	return []Step{func(c *Compiler) error {
		c.PushProcedure()
		for _, stmt := range n.Body {
			if err := runSteps(c, statementSteps(stmt)); err != nil {
				return err
			}
		}
		if !endsWithReturn(n.Body) {
			if err := c.Append(
				vm.Literal(nil),
				vm.PushReturnValue(),
				vm.ReturnFromProcedure(),
			); err != nil {
				return err
			}
		}
		procedure, err := c.PopProcedure()
		if err != nil {
			return err
		}
		return c.Append(vm.Literal(procedure))
	}}
}

func endsWithReturn(body []Node) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*Return)
	return ok
}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Assign binds a name in the scope chain. Constant right-hand sides lower to
// a single setVariableToLiteral; everything else evaluates and pops.
type Assign struct {
	Name  string
	Value Node
}

func (n *Assign) node() {}

func (n *Assign) validate(errs *multierror.Error) {
	if n.Name == "" {
		_ = multierror.Append(errs, fmt.Errorf("assignment: %w", ErrEmptyName))
	}
	if n.Value == nil {
		_ = multierror.Append(errs, fmt.Errorf("assignment to %q: %w", n.Name, ErrMissingValue))
	} else {
		n.Value.validate(errs)
	}
}

func (n *Assign) steps() []Step {
	if lit, ok := n.Value.(*Literal); ok {
		return []Step{func(c *Compiler) error {
			return c.Append(vm.SetVariableToLiteral(n.Name, lit.Value))
		}}
	}
	steps := n.Value.steps()
	return append(steps, func(c *Compiler) error {
		return c.Append(vm.SetVariable(n.Name))
	})
}

// Return evaluates its value (nil when absent), moves it to the pending
// return buffer and pops the call stack.
type Return struct {
	Value Node
}

func (n *Return) node() {}

func (n *Return) validate(errs *multierror.Error) {
	if n.Value != nil {
		n.Value.validate(errs)
	}
}

func (n *Return) steps() []Step {
	var steps []Step
	if n.Value != nil {
		steps = n.Value.steps()
	} else {
		steps = []Step{func(c *Compiler) error {
			return c.Append(vm.Literal(nil))
		}}
	}
	return append(steps, func(c *Compiler) error {
		return c.Append(vm.PushReturnValue(), vm.ReturnFromProcedure())
	})
}

// If lowers to a conditional jump over the then-branch, with an optional
// unconditional jump over the else-branch. Targets are forward references
// patched once the branch lengths are known.
type If struct {
	Cond Node
	Then []Node
	Else []Node
}

func (n *If) node() {}

func (n *If) validate(errs *multierror.Error) {
	if n.Cond == nil {
		_ = multierror.Append(errs, fmt.Errorf("if: %w", ErrMissingCondition))
	} else {
		n.Cond.validate(errs)
	}
	for _, stmt := range n.Then {
		stmt.validate(errs)
	}
	for _, stmt := range n.Else {
		stmt.validate(errs)
	}
}

func (n *If) steps() []Step {
	return []Step{func(c *Compiler) error {
		if err := runSteps(c, n.Cond.steps()); err != nil {
			return err
		}
		skipThen := c.Offset()
		if err := c.Append(vm.JumpIfFalse(0)); err != nil {
			return err
		}
		for _, stmt := range n.Then {
			if err := runSteps(c, statementSteps(stmt)); err != nil {
				return err
			}
		}
		if len(n.Else) == 0 {
			return c.PatchJump(skipThen, c.Offset())
		}
		skipElse := c.Offset()
		if err := c.Append(vm.Jump(0)); err != nil {
			return err
		}
		if err := c.PatchJump(skipThen, c.Offset()); err != nil {
			return err
		}
		for _, stmt := range n.Else {
			if err := runSteps(c, statementSteps(stmt)); err != nil {
				return err
			}
		}
		return c.PatchJump(skipElse, c.Offset())
	}}
}

// While lowers to a condition at the loop head, a conditional exit jump and
// a backward jump from the loop tail.
type While struct {
	Cond Node
	Body []Node
}

func (n *While) node() {}

func (n *While) validate(errs *multierror.Error) {
	if n.Cond == nil {
		_ = multierror.Append(errs, fmt.Errorf("while: %w", ErrMissingCondition))
	} else {
		n.Cond.validate(errs)
	}
	for _, stmt := range n.Body {
		stmt.validate(errs)
	}
}

func (n *While) steps() []Step {
	return []Step{func(c *Compiler) error {
		loopHead := c.Offset()
		if err := runSteps(c, n.Cond.steps()); err != nil {
			return err
		}
		exit := c.Offset()
		if err := c.Append(vm.JumpIfFalse(0)); err != nil {
			return err
		}
		for _, stmt := range n.Body {
			if err := runSteps(c, statementSteps(stmt)); err != nil {
				return err
			}
		}
		back := c.Offset()
		if err := c.Append(vm.Jump(0)); err != nil {
			return err
		}
		if err := c.PatchJump(back, loopHead); err != nil {
			return err
		}
		return c.PatchJump(exit, c.Offset())
	}}
}

// Program is a sequence of statements: the root of a compiled AST.
type Program struct {
	Body []Node
}

func (n *Program) node() {}

func (n *Program) validate(errs *multierror.Error) {
	for _, stmt := range n.Body {
		stmt.validate(errs)
	}
}

func (n *Program) steps() []Step {
	var steps []Step
	for _, stmt := range n.Body {
		steps = append(steps, statementSteps(stmt)...)
	}
	return steps
}
