package xpath

import (
	"errors"
	"fmt"
	"slices"

	"github.com/midbel/loom/tree"
)

var (
	ErrType        = errors.New("invalid type")
	ErrNode        = errors.New("element node expected")
	ErrUndefined   = errors.New("undefined")
	ErrZero        = errors.New("division by zero")
	ErrArgument    = errors.New("invalid number of argument(s)")
	ErrSyntax      = errors.New("invalid syntax")
	ErrImplemented = errors.New("not implemented")
)

// Pattern default priorities, the values template matching sorts on.
const (
	prioName     = 0
	prioWildNS   = -0.25
	prioWildcard = -0.5
	prioComplex  = 0.5
)

// Expr is a compiled expression. Compiled forms are immutable and safe
// to share between concurrent evaluations.
type Expr interface {
	Eval(Context) (Sequence, error)
	Priority() float64
	References() []string
}

type root struct{}

func (root) Eval(ctx Context) (Sequence, error) {
	root := ctx.Root()
	return Singleton(root.Node), nil
}

func (root) Priority() float64 {
	return prioComplex
}

func (root) References() []string {
	return nil
}

type current struct{}

func (current) Eval(ctx Context) (Sequence, error) {
	return Singleton(ctx.Node), nil
}

func (current) Priority() float64 {
	return prioWildcard
}

func (current) References() []string {
	return nil
}

type step struct {
	curr Expr
	next Expr
}

func (s step) Eval(ctx Context) (Sequence, error) {
	is, err := s.curr.Eval(ctx)
	if err != nil {
		return nil, err
	}
	var list Sequence
	for i, n := range is {
		if n.Node() == nil {
			return nil, fmt.Errorf("%w: step applied to atomic value", ErrType)
		}
		others, err := s.next.Eval(ctx.Sub(n.Node(), i+1, is.Len()))
		if err != nil {
			return nil, err
		}
		list.Concat(others)
	}
	return list.Sorted(), nil
}

func (s step) Priority() float64 {
	return prioComplex
}

func (s step) References() []string {
	return refs(s.curr, s.next)
}

const (
	childAxis          = "child"
	attrAxis           = "attribute"
	parentAxis         = "parent"
	selfAxis           = "self"
	ancestorAxis       = "ancestor"
	ancestorSelfAxis   = "ancestor-or-self"
	descendantAxis     = "descendant"
	descendantSelfAxis = "descendant-or-self"
	prevSiblingAxis    = "preceding-sibling"
	nextSiblingAxis    = "following-sibling"
)

func isAxis(str string) bool {
	switch str {
	case childAxis, attrAxis, parentAxis, selfAxis:
	case ancestorAxis, ancestorSelfAxis:
	case descendantAxis, descendantSelfAxis:
	case prevSiblingAxis, nextSiblingAxis:
	default:
		return false
	}
	return true
}

type axis struct {
	kind string
	test Expr
}

func (a axis) Eval(ctx Context) (Sequence, error) {
	nodes, err := a.walk(ctx.Node)
	if err != nil {
		return nil, err
	}
	if a.kind == attrAxis {
		ctx.principal = tree.KindAttribute
	} else {
		ctx.principal = tree.KindElement
	}
	var list Sequence
	for i, n := range nodes {
		others, err := a.test.Eval(ctx.Sub(n, i+1, len(nodes)))
		if err != nil {
			return nil, err
		}
		list.Concat(others)
	}
	return list, nil
}

func (a axis) walk(node tree.Node) ([]tree.Node, error) {
	var list []tree.Node
	switch a.kind {
	case selfAxis:
		list = append(list, node)
	case childAxis:
		for c := range node.Children() {
			list = append(list, c)
		}
	case attrAxis:
		for c := range node.Attributes() {
			list = append(list, c)
		}
	case parentAxis:
		if p := node.Parent(); p != nil {
			list = append(list, p)
		}
	case ancestorAxis, ancestorSelfAxis:
		if a.kind == ancestorSelfAxis {
			list = append(list, node)
		}
		for p := node.Parent(); p != nil; p = p.Parent() {
			list = append(list, p)
		}
	case descendantAxis, descendantSelfAxis:
		if a.kind == descendantSelfAxis {
			list = append(list, node)
		}
		list = appendDescendants(list, node)
	case nextSiblingAxis:
		for s := node.NextSibling(); s != nil; s = s.NextSibling() {
			list = append(list, s)
		}
	case prevSiblingAxis:
		for s := node.PrevSibling(); s != nil; s = s.PrevSibling() {
			list = append(list, s)
		}
	default:
		return nil, fmt.Errorf("%s: %w", a.kind, ErrImplemented)
	}
	return list, nil
}

func appendDescendants(list []tree.Node, node tree.Node) []tree.Node {
	for c := range node.Children() {
		list = append(list, c)
		list = appendDescendants(list, c)
	}
	return list
}

func (a axis) Priority() float64 {
	return a.test.Priority()
}

func (a axis) References() []string {
	return refs(a.test)
}

// nameTest matches an element or attribute by expanded name. An
// unprefixed test names the empty namespace, never the default
// namespace declaration of the document.
type nameTest struct {
	prefix string
	local  string
	uri    string
}

func (n nameTest) Eval(ctx Context) (Sequence, error) {
	node := ctx.Node
	if node.Kind() != ctx.principal {
		return nil, nil
	}
	if tree.LocalName(node) != n.local {
		return nil, nil
	}
	if tree.URI(node) != n.uri {
		return nil, nil
	}
	return Singleton(node), nil
}

func (n nameTest) Priority() float64 {
	return prioName
}

func (n nameTest) References() []string {
	return nil
}

// wildcard matches any name; with a resolved namespace it matches every
// name in that namespace (prefix:*).
type wildcard struct {
	uri string
}

func (w wildcard) Eval(ctx Context) (Sequence, error) {
	node := ctx.Node
	if node.Kind() != ctx.principal {
		return nil, nil
	}
	if w.uri != "" && tree.URI(node) != w.uri {
		return nil, nil
	}
	return Singleton(node), nil
}

func (w wildcard) Priority() float64 {
	if w.uri != "" {
		return prioWildNS
	}
	return prioWildcard
}

func (w wildcard) References() []string {
	return nil
}

type kindTest struct {
	kind   tree.Kind
	target string
}

func (k kindTest) Eval(ctx Context) (Sequence, error) {
	node := ctx.Node
	if node.Kind()&k.kind == 0 {
		return nil, nil
	}
	if k.target != "" && tree.LocalName(node) != k.target {
		return nil, nil
	}
	return Singleton(node), nil
}

func (k kindTest) Priority() float64 {
	return prioWildcard
}

func (k kindTest) References() []string {
	return nil
}

type filter struct {
	expr  Expr
	check Expr
}

func (f filter) Eval(ctx Context) (Sequence, error) {
	list, err := f.expr.Eval(ctx)
	if err != nil {
		return nil, err
	}
	var ret Sequence
	for i, it := range list {
		sub := ctx
		if it.Node() != nil {
			sub = ctx.Sub(it.Node(), i+1, list.Len())
		} else {
			sub.Index = i + 1
			sub.Size = list.Len()
		}
		res, err := f.check.Eval(sub)
		if err != nil {
			return nil, err
		}
		if keep(res, i+1) {
			ret.Append(it)
		}
	}
	return ret, nil
}

// keep decides a predicate: a numeric result selects by position,
// anything else by effective boolean value.
func keep(res Sequence, pos int) bool {
	if res.Singleton() && res[0].Atomic() {
		if f, ok := res[0].Value().(float64); ok {
			return int(f) == pos
		}
	}
	return EffectiveBooleanValue(res)
}

func (f filter) Priority() float64 {
	return prioComplex
}

func (f filter) References() []string {
	return refs(f.expr, f.check)
}

type binary struct {
	left  Expr
	right Expr
	op    rune
}

func (b binary) Eval(ctx Context) (Sequence, error) {
	left, err := b.left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	right, err := b.right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	fn, ok := binaryOp[b.op]
	if !ok {
		return nil, ErrImplemented
	}
	return fn(left, right)
}

func (b binary) Priority() float64 {
	return prioComplex
}

func (b binary) References() []string {
	return refs(b.left, b.right)
}

type logical struct {
	left  Expr
	right Expr
	and   bool
}

func (l logical) Eval(ctx Context) (Sequence, error) {
	left, err := l.left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if l.and && !left.True() {
		return Singleton(false), nil
	}
	if !l.and && left.True() {
		return Singleton(true), nil
	}
	right, err := l.right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return Singleton(right.True()), nil
}

func (l logical) Priority() float64 {
	return prioComplex
}

func (l logical) References() []string {
	return refs(l.left, l.right)
}

type reverse struct {
	expr Expr
}

func (r reverse) Eval(ctx Context) (Sequence, error) {
	v, err := r.expr.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if v.Empty() {
		return v, nil
	}
	x, err := toFloat(v[0].Value())
	if err != nil {
		return nil, err
	}
	return Singleton(-x), nil
}

func (r reverse) Priority() float64 {
	return prioComplex
}

func (r reverse) References() []string {
	return refs(r.expr)
}

type literal struct {
	expr string
}

func (i literal) Eval(Context) (Sequence, error) {
	return Singleton(i.expr), nil
}

func (i literal) Priority() float64 {
	return prioComplex
}

func (i literal) References() []string {
	return nil
}

type number struct {
	expr float64
}

func (n number) Eval(Context) (Sequence, error) {
	return Singleton(n.expr), nil
}

func (n number) Priority() float64 {
	return prioComplex
}

func (n number) References() []string {
	return nil
}

type identifier struct {
	ident string
}

func (i identifier) Eval(ctx Context) (Sequence, error) {
	seq, err := ctx.Resolve(i.ident)
	if err != nil {
		return nil, fmt.Errorf("$%s: %w", i.ident, ErrUndefined)
	}
	return slices.Clone(seq), nil
}

func (i identifier) Priority() float64 {
	return prioComplex
}

func (i identifier) References() []string {
	return []string{i.ident}
}

type sequence struct {
	all []Expr
}

func (s sequence) Eval(ctx Context) (Sequence, error) {
	var list Sequence
	for i := range s.all {
		is, err := s.all[i].Eval(ctx)
		if err != nil {
			return nil, err
		}
		list.Concat(is)
	}
	return list, nil
}

func (s sequence) Priority() float64 {
	return prioComplex
}

func (s sequence) References() []string {
	return refs(s.all...)
}

type union struct {
	all []Expr
}

func (u union) Eval(ctx Context) (Sequence, error) {
	var list Sequence
	for i := range u.all {
		is, err := u.all[i].Eval(ctx)
		if err != nil {
			return nil, err
		}
		list.Concat(is)
	}
	return list.Sorted(), nil
}

func (u union) Priority() float64 {
	var prio float64
	for i, e := range u.all {
		if p := e.Priority(); i == 0 || p > prio {
			prio = p
		}
	}
	return prio
}

func (u union) References() []string {
	return refs(u.all...)
}

// Branches exposes the members of a top-level union so patterns can be
// matched and prioritized per alternative.
func Branches(e Expr) []Expr {
	if u, ok := e.(union); ok {
		return u.all
	}
	return []Expr{e}
}

type call struct {
	prefix string
	local  string
	args   []Expr
}

func (c call) Eval(ctx Context) (Sequence, error) {
	ident := c.local
	if c.prefix != "" {
		ident = c.prefix + ":" + c.local
	}
	if ctx.Builtins == nil {
		return nil, fmt.Errorf("%s: %w", ident, ErrUndefined)
	}
	fn, err := ctx.Builtins.Resolve(ident)
	if err != nil {
		return nil, fmt.Errorf("%s: function %w", ident, ErrUndefined)
	}
	items, err := fn(ctx, c.args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ident, err)
	}
	return items, nil
}

func (c call) Priority() float64 {
	return prioComplex
}

func (c call) References() []string {
	return refs(c.args...)
}

func refs(all ...Expr) []string {
	var (
		list []string
		seen = make(map[string]struct{})
	)
	for _, e := range all {
		if e == nil {
			continue
		}
		for _, r := range e.References() {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			list = append(list, r)
		}
	}
	return list
}
