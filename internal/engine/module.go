package engine

import "strings"

// Module is a namespace of globals, functions and submodules. Modules are
// never collected.
type Module struct {
	engine *Engine
	name   string
	path   string
	parent *Module
}

func (m *Module) Name() string    { return m.name }
func (m *Module) Path() string    { return m.path }
func (m *Module) Parent() *Module { return m.parent }

// Engine returns the engine that owns m.
func (m *Module) Engine() *Engine { return m.engine }

func (m *Module) key(name string) string { return m.path + "." + name }

func (m *Module) lookup(name string) (*binding, error) {
	if err := m.engine.check(); err != nil {
		return nil, err
	}
	return m.engine.defs.Get(m.key(name)), nil
}

// Submodule returns the submodule called name.
func (m *Module) Submodule(name string) (*Module, error) {
	b, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &NotFoundError{Kind: NotFoundModule, Name: name, In: m.path}
	}
	sub, ok := b.value.(*Module)
	if !ok {
		return nil, &NotAModuleError{Name: name, In: m.path}
	}
	return sub, nil
}

// Function returns the function called name.
func (m *Module) Function(name string) (*Function, error) {
	b, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, &NotFoundError{Kind: NotFoundFunction, Name: name, In: m.path}
	}
	fn, ok := b.value.(*Function)
	if !ok {
		return nil, &WrongTypeError{Expected: KindFunction.String(), Got: KindOf(b.value).String()}
	}
	return fn, nil
}

// Global boxes the current value of the global called name. The returned
// cell is collectible until rooted.
func (m *Module) Global(name string) (Ref, error) {
	b, err := m.lookup(name)
	if err != nil {
		return Ref{}, err
	}
	if b == nil {
		return Ref{}, &NotFoundError{Kind: NotFoundGlobal, Name: name, In: m.path}
	}
	return m.engine.heap.alloc(b.value), nil
}

// SetGlobal assigns the value held by r to the global called name.
func (m *Module) SetGlobal(name string, r Ref) error {
	if err := m.engine.check(); err != nil {
		return err
	}
	c, err := m.engine.heap.get(r)
	if err != nil {
		return err
	}
	return m.engine.assignGlobal(m.path, name, c.value, false)
}

// Names lists the members of m in no particular order.
func (m *Module) Names() ([]string, error) {
	if err := m.engine.check(); err != nil {
		return nil, err
	}
	prefix := m.path + "."
	var names []string
	m.engine.defs.Range(func(key string, _ *binding) bool {
		if rest, ok := strings.CutPrefix(key, prefix); ok && !strings.Contains(rest, ".") {
			names = append(names, rest)
		}
		return true
	})
	return names, nil
}

// assignGlobal writes a module member. Constants cannot be reassigned.
func (e *Engine) assignGlobal(modPath, name string, v any, constant bool) error {
	key := modPath + "." + name
	if old := e.defs.Get(key); old != nil {
		if old.constant {
			return newException("ErrorException", "invalid redefinition of constant %s", key)
		}
		if constant {
			return newException("ErrorException", "cannot declare %s constant; it already has a value", key)
		}
	}
	e.defs = e.defs.Put(key, &binding{value: v, constant: constant})
	return nil
}

// defineModule creates or reopens a submodule of parent.
func (e *Engine) defineModule(parent *Module, name string) (*Module, error) {
	key := parent.key(name)
	if old := e.defs.Get(key); old != nil {
		if m, ok := old.value.(*Module); ok {
			return m, nil
		}
		return nil, newException("ErrorException", "invalid redefinition of %s", key)
	}
	m := &Module{engine: e, name: name, path: key, parent: parent}
	e.defs = e.defs.Put(key, &binding{value: m, constant: true})
	return m, nil
}
