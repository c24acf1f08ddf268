package xpath

import (
	"time"

	"github.com/midbel/loom/environ"
	"github.com/midbel/loom/tree"
)

// Dynamic is the hook the evaluation context uses for functions whose
// answer lives outside the expression: document access, key indexes,
// the node the current template was applied to, the run clock. The
// transformation controller implements it; standalone queries may
// leave it nil and those functions fail.
type Dynamic interface {
	Document(uri string) (tree.Node, error)
	Key(name string, value string, doc tree.Node) (Sequence, error)
	Current() tree.Node
	SystemProperty(name string) string
	Now() time.Time
}

type Context struct {
	Node  tree.Node
	Index int
	Size  int

	principal tree.Kind

	Vars     environ.Environ[Sequence]
	Builtins environ.Environ[BuiltinFunc]
	Dynamic  Dynamic
}

func DefaultContext(node tree.Node) Context {
	return createContext(node, 1, 1)
}

func createContext(node tree.Node, pos, size int) Context {
	return Context{
		Node:      node,
		Index:     pos,
		Size:      size,
		principal: tree.KindElement,
		Vars:      environ.Empty[Sequence](),
		Builtins:  DefaultBuiltins(),
	}
}

// Sub keeps the bindings and hooks but moves the focus.
func (c Context) Sub(node tree.Node, pos, size int) Context {
	ctx := c
	ctx.Node = node
	ctx.Index = pos
	ctx.Size = size
	return ctx
}

// Nest opens a fresh variable scope over the same focus.
func (c Context) Nest() Context {
	ctx := c
	ctx.Vars = environ.Enclosed(c.Vars)
	return ctx
}

func (c Context) Root() Context {
	if c.Node == nil {
		return c
	}
	return c.Sub(c.Node.Root(), 1, 1)
}

func (c Context) Resolve(ident string) (Sequence, error) {
	return c.Vars.Resolve(ident)
}

func (c Context) Define(ident string, seq Sequence) {
	c.Vars.Define(ident, seq)
}

func (c Context) now() time.Time {
	if c.Dynamic != nil {
		return c.Dynamic.Now()
	}
	return time.Now()
}
