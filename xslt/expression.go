package xslt

import (
	"strings"

	"github.com/midbel/loom/xpath"
)

// Expression is a compiled select or test expression. The source text
// and the prefix bindings it was compiled under travel with it; the
// compiled form is rebuilt from them when a stylesheet is reloaded.
type Expression struct {
	Source     string
	Namespaces map[string]string

	expr xpath.Expr
}

func compileExpression(src string, ns map[string]string) (*Expression, error) {
	e := Expression{
		Source:     src,
		Namespaces: ns,
	}
	if err := e.relink(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Expression) relink() error {
	cp := xpath.NewCompiler(strings.NewReader(e.Source))
	cp.Namespaces = e.Namespaces
	expr, err := cp.Compile()
	if err != nil {
		return err
	}
	e.expr = expr
	return nil
}

func (e *Expression) eval(ctx xpath.Context) (xpath.Sequence, error) {
	return e.expr.Eval(ctx)
}

func (e *Expression) references() []string {
	if e == nil || e.expr == nil {
		return nil
	}
	return e.expr.References()
}
