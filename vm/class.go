package vm

import (
	"fmt"
	"reflect"
)

// ---------------------------------------------------------------------------
// WaxClass: runtime classes and message dispatch
// ---------------------------------------------------------------------------

// WaxClass holds a method table mapping message names to compiled
// procedures. Classes are assembled once at setup time via DefineMethod
// chaining and treated as immutable while the machine runs.
type WaxClass struct {
	name    string
	methods map[string]*CompiledProcedure
}

// NewClass creates a class with an empty method table.
func NewClass(name string) *WaxClass {
	return &WaxClass{
		name:    name,
		methods: make(map[string]*CompiledProcedure),
	}
}

// Name returns the class name.
func (c *WaxClass) Name() string {
	return c.name
}

// DefineMethod adds or replaces a method and returns the class for chaining.
// Definition is a setup-time step, not something done mid-execution.
func (c *WaxClass) DefineMethod(name string, procedure *CompiledProcedure) *WaxClass {
	c.methods[name] = procedure
	return c
}

// LookupMethod resolves a message name. A miss is a descriptive failure
// Result rather than a panic or error, so callers choose whether a missing
// method is fatal.
func (c *WaxClass) LookupMethod(name string) Result {
	if m, ok := c.methods[name]; ok {
		return Success(m)
	}
	return Failure(fmt.Errorf("%s has no method %q: %w", c.name, name, ErrMethodNotFound))
}

// MethodCount returns the number of defined methods.
func (c *WaxClass) MethodCount() int {
	return len(c.methods)
}

// ---------------------------------------------------------------------------
// ClassRegistry: value classification
// ---------------------------------------------------------------------------

// ClassRegistry maps runtime values to their dispatch class. It is an
// explicit, constructed object owned by a machine at setup time rather than
// a module-level singleton, so independent machines share dispatch tables
// only deliberately.
//
// Classification is the closed KindOf enum; foreign Go values get a
// lazily created wrapper class cached by their reflect.Type.
type ClassRegistry struct {
	byKind  map[Kind]*WaxClass
	foreign map[reflect.Type]*WaxClass
}

// NewClassRegistry creates a registry with an empty class per kind.
func NewClassRegistry() *ClassRegistry {
	r := &ClassRegistry{
		byKind:  make(map[Kind]*WaxClass),
		foreign: make(map[reflect.Type]*WaxClass),
	}
	for kind, name := range kindNames {
		if kind == KindForeign {
			continue
		}
		r.byKind[kind] = NewClass(name)
	}
	return r
}

// ClassOf classifies any runtime value into its dispatch class.
func (r *ClassRegistry) ClassOf(v Value) *WaxClass {
	kind := KindOf(v)
	if kind != KindForeign {
		return r.byKind[kind]
	}
	t := foreignTypeOf(v)
	if class, ok := r.foreign[t]; ok {
		return class
	}
	class := NewClass("Foreign<" + t.String() + ">")
	r.foreign[t] = class
	return class
}

// ClassFor returns the class for a non-foreign kind.
// Panics on KindForeign; foreign classes exist only per concrete type.
func (r *ClassRegistry) ClassFor(kind Kind) *WaxClass {
	if kind == KindForeign {
		panic("ClassRegistry.ClassFor: foreign classes are per-type, use ClassOf")
	}
	return r.byKind[kind]
}
