package xslt

import (
	"strings"

	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xpath"
)

// Pattern is a compiled match pattern. A node matches when one of the
// pattern's alternatives selects it from the node itself or from one of
// its ancestors. The best matching alternative decides the default
// priority.
type Pattern struct {
	Source     string
	Namespaces map[string]string

	expr xpath.Expr
}

func compilePattern(src string, ns map[string]string) (*Pattern, error) {
	p := Pattern{
		Source:     src,
		Namespaces: ns,
	}
	if err := p.relink(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pattern) relink() error {
	cp := xpath.NewCompiler(strings.NewReader(p.Source))
	cp.Namespaces = p.Namespaces
	expr, err := cp.Compile()
	if err != nil {
		return err
	}
	p.expr = expr
	return nil
}

// Match reports whether node matches the pattern and, when it does, the
// default priority of the alternative that matched. The context carries
// the variable bindings and the dynamic hooks patterns may rely on.
func (p *Pattern) Match(node tree.Node, ctx xpath.Context) (bool, float64) {
	var (
		found bool
		prio  float64
	)
	for _, branch := range xpath.Branches(p.expr) {
		if !matchBranch(branch, node, ctx) {
			continue
		}
		if bp := branch.Priority(); !found || bp > prio {
			prio = bp
		}
		found = true
	}
	return found, prio
}

func matchBranch(expr xpath.Expr, node tree.Node, ctx xpath.Context) bool {
	for curr := node; curr != nil; curr = curr.Parent() {
		seq, err := expr.Eval(ctx.Sub(curr, 1, 1))
		if err != nil {
			continue
		}
		for _, it := range seq {
			if it.Node() != nil && tree.Same(it.Node(), node) {
				return true
			}
		}
	}
	return false
}
