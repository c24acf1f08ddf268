package xpath

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/midbel/loom/tree"
)

// Compiler turns an expression or pattern into an immutable Expr.
// Namespaces maps the prefixes the expression may use to their URIs;
// unbound prefixes leave name tests matching on local name only.
type Compiler struct {
	scan *Scanner
	curr Token
	peek Token

	Namespaces map[string]string

	infix  map[rune]func(Expr) (Expr, error)
	prefix map[rune]func() (Expr, error)
}

func NewCompiler(r io.Reader) *Compiler {
	cp := Compiler{
		scan: Scan(r),
	}
	cp.infix = map[rune]func(Expr) (Expr, error){
		currLevel: cp.compileStep,
		anyLevel:  cp.compileDescendantStep,
		begPred:   cp.compileFilter,
		begGrp:    cp.compileCall,
		opUnion:   cp.compileUnion,
		opAnd:     cp.compileLogical,
		opOr:      cp.compileLogical,
		opAdd:     cp.compileBinary,
		opSub:     cp.compileBinary,
		opMul:     cp.compileBinary,
		opDiv:     cp.compileBinary,
		opMod:     cp.compileBinary,
		opEq:      cp.compileBinary,
		opNe:      cp.compileBinary,
		opLt:      cp.compileBinary,
		opLe:      cp.compileBinary,
		opGt:      cp.compileBinary,
		opGe:      cp.compileBinary,
	}
	cp.prefix = map[rune]func() (Expr, error){
		currLevel:  cp.compileRoot,
		anyLevel:   cp.compileDescendantRoot,
		Name:       cp.compileName,
		opMul:      cp.compileName,
		variable:   cp.compileVariable,
		currNode:   cp.compileCurrent,
		parentNode: cp.compileParent,
		attrNode:   cp.compileAttr,
		Literal:    cp.compileLiteral,
		Digit:      cp.compileNumber,
		opSub:      cp.compileReverse,
		begGrp:     cp.compileSequence,
	}
	cp.next()
	cp.next()
	return &cp
}

func CompileString(q string) (Expr, error) {
	return Compile(strings.NewReader(q))
}

func Compile(r io.Reader) (Expr, error) {
	cp := NewCompiler(r)
	return cp.Compile()
}

func (c *Compiler) Compile() (Expr, error) {
	expr, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.done() {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, c.curr)
	}
	return expr, nil
}

func (c *Compiler) compile() (Expr, error) {
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if c.is(opSeq) {
		return c.compileList(expr)
	}
	return expr, nil
}

func (c *Compiler) compileList(left Expr) (Expr, error) {
	var seq sequence
	seq.all = append(seq.all, left)
	for c.is(opSeq) {
		c.next()
		right, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		seq.all = append(seq.all, right)
	}
	return seq, nil
}

func (c *Compiler) compileExpr(pow int) (Expr, error) {
	fn, ok := c.prefix[c.curr.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, c.curr)
	}
	left, err := fn()
	if err != nil {
		return nil, err
	}
	for !c.done() && pow < c.power() {
		fn, ok := c.infix[c.curr.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, c.curr)
		}
		left, err = fn(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (c *Compiler) compileRoot() (Expr, error) {
	c.next()
	if c.done() || c.power() == powLowest && c.prefix[c.curr.Type] == nil {
		return root{}, nil
	}
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: root{},
		next: next,
	}
	return expr, nil
}

func (c *Compiler) compileDescendantRoot() (Expr, error) {
	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: root{},
		next: step{
			curr: axis{
				kind: descendantSelfAxis,
				test: kindTest{kind: tree.KindAny},
			},
			next: next,
		},
	}
	return expr, nil
}

func (c *Compiler) compileStep(left Expr) (Expr, error) {
	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: left,
		next: next,
	}
	return expr, nil
}

func (c *Compiler) compileDescendantStep(left Expr) (Expr, error) {
	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: left,
		next: step{
			curr: axis{
				kind: descendantSelfAxis,
				test: kindTest{kind: tree.KindAny},
			},
			next: next,
		},
	}
	return expr, nil
}

func (c *Compiler) compileName() (Expr, error) {
	if c.peek.Type == opAxis {
		return c.compileAxis()
	}
	test, err := c.compileNameTest()
	if err != nil {
		return nil, err
	}
	expr := axis{
		kind: childAxis,
		test: test,
	}
	return expr, nil
}

func (c *Compiler) compileAxis() (Expr, error) {
	kind := c.curr.Literal
	if !isAxis(kind) {
		return nil, fmt.Errorf("%w: %s is not an axis", ErrSyntax, kind)
	}
	c.next()
	c.next()
	test, err := c.compileNameTest()
	if err != nil {
		return nil, err
	}
	expr := axis{
		kind: kind,
		test: test,
	}
	return expr, nil
}

func (c *Compiler) compileNameTest() (Expr, error) {
	if c.is(opMul) {
		c.next()
		return wildcard{}, nil
	}
	if !c.is(Name) {
		return nil, fmt.Errorf("%w: name expected", ErrSyntax)
	}
	if isKind(c.curr.Literal) && c.peek.Type == begGrp {
		return c.compileKind()
	}
	name := c.curr.Literal
	c.next()
	if !c.is(Namespace) {
		return nameTest{local: name}, nil
	}
	c.next()
	if c.is(opMul) {
		c.next()
		return wildcard{uri: c.resolve(name)}, nil
	}
	if !c.is(Name) {
		return nil, fmt.Errorf("%w: name expected after namespace", ErrSyntax)
	}
	test := nameTest{
		prefix: name,
		local:  c.curr.Literal,
		uri:    c.resolve(name),
	}
	c.next()
	return test, nil
}

func isKind(str string) bool {
	switch str {
	case "node":
	case "element":
	case "text":
	case "comment":
	case "processing-instruction":
	case "document-node":
	default:
		return false
	}
	return true
}

func (c *Compiler) compileKind() (Expr, error) {
	var test kindTest
	switch c.curr.Literal {
	case "node":
		test.kind = tree.KindAny
	case "element":
		test.kind = tree.KindElement
	case "text":
		test.kind = tree.KindText
	case "comment":
		test.kind = tree.KindComment
	case "processing-instruction":
		test.kind = tree.KindInstruction
	case "document-node":
		test.kind = tree.KindDocument
	}
	c.next()
	c.next()
	if (c.is(Name) || c.is(Literal)) && test.kind == tree.KindInstruction {
		test.target = c.curr.Literal
		c.next()
	}
	if !c.is(endGrp) {
		return nil, fmt.Errorf("%w: missing ')' after kind test", ErrSyntax)
	}
	c.next()
	return test, nil
}

func (c *Compiler) compileAttr() (Expr, error) {
	var test Expr
	if c.curr.Literal == "" {
		if c.peek.Type != opMul {
			return nil, fmt.Errorf("%w: attribute name expected", ErrSyntax)
		}
		c.next()
		test = wildcard{}
	} else {
		name := c.curr.Literal
		if c.peek.Type == Namespace {
			c.next()
			c.next()
			if !c.is(Name) {
				return nil, fmt.Errorf("%w: name expected after namespace", ErrSyntax)
			}
			test = nameTest{
				prefix: name,
				local:  c.curr.Literal,
				uri:    c.resolve(name),
			}
		} else {
			test = nameTest{local: name}
		}
	}
	c.next()
	expr := axis{
		kind: attrAxis,
		test: test,
	}
	return expr, nil
}

func (c *Compiler) compileVariable() (Expr, error) {
	defer c.next()
	v := identifier{
		ident: c.curr.Literal,
	}
	return v, nil
}

func (c *Compiler) compileCurrent() (Expr, error) {
	c.next()
	return current{}, nil
}

func (c *Compiler) compileParent() (Expr, error) {
	c.next()
	expr := axis{
		kind: parentAxis,
		test: kindTest{kind: tree.KindAny},
	}
	return expr, nil
}

func (c *Compiler) compileLiteral() (Expr, error) {
	defer c.next()
	i := literal{
		expr: c.curr.Literal,
	}
	return i, nil
}

func (c *Compiler) compileNumber() (Expr, error) {
	defer c.next()
	f, err := strconv.ParseFloat(c.curr.Literal, 64)
	if err != nil {
		return nil, err
	}
	n := number{
		expr: f,
	}
	return n, nil
}

func (c *Compiler) compileReverse() (Expr, error) {
	c.next()
	expr, err := c.compileExpr(powPrefix)
	if err != nil {
		return nil, err
	}
	r := reverse{
		expr: expr,
	}
	return r, nil
}

func (c *Compiler) compileSequence() (Expr, error) {
	c.next()
	var seq sequence
	for !c.done() && !c.is(endGrp) {
		expr, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		seq.all = append(seq.all, expr)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return nil, fmt.Errorf("%w: trailing comma in sequence", ErrSyntax)
			}
		case c.is(endGrp):
		default:
			return nil, fmt.Errorf("%w: unexpected %s in sequence", ErrSyntax, c.curr)
		}
	}
	if !c.is(endGrp) {
		return nil, fmt.Errorf("%w: missing ')' at end of sequence", ErrSyntax)
	}
	c.next()
	if len(seq.all) == 1 {
		return seq.all[0], nil
	}
	return seq, nil
}

func (c *Compiler) compileFilter(left Expr) (Expr, error) {
	c.next()
	check, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endPred) {
		return nil, fmt.Errorf("%w: missing ']' after filter", ErrSyntax)
	}
	c.next()
	f := filter{
		expr:  left,
		check: check,
	}
	return f, nil
}

func (c *Compiler) compileUnion(left Expr) (Expr, error) {
	c.next()
	expr, err := c.compileExpr(powUnion)
	if err != nil {
		return nil, err
	}
	if u, ok := left.(union); ok {
		u.all = append(u.all, expr)
		return u, nil
	}
	var res union
	res.all = []Expr{left, expr}
	return res, nil
}

func (c *Compiler) compileLogical(left Expr) (Expr, error) {
	var (
		op  = c.curr.Type
		pow = bindings[op]
	)
	c.next()
	right, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	l := logical{
		left:  left,
		right: right,
		and:   op == opAnd,
	}
	return l, nil
}

func (c *Compiler) compileBinary(left Expr) (Expr, error) {
	var (
		op  = c.curr.Type
		pow = bindings[op]
	)
	c.next()
	right, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	b := binary{
		left:  left,
		right: right,
		op:    op,
	}
	return b, nil
}

func (c *Compiler) compileCall(left Expr) (Expr, error) {
	var fn call
	switch e := left.(type) {
	case axis:
		test, ok := e.test.(nameTest)
		if !ok {
			return nil, fmt.Errorf("%w: invalid function identifier", ErrSyntax)
		}
		fn.prefix = test.prefix
		fn.local = test.local
	case nameTest:
		fn.prefix = e.prefix
		fn.local = e.local
	default:
		return nil, fmt.Errorf("%w: invalid function identifier", ErrSyntax)
	}
	c.next()
	for !c.done() && !c.is(endGrp) {
		arg, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return nil, fmt.Errorf("%w: trailing comma in call", ErrSyntax)
			}
		case c.is(endGrp):
		default:
			return nil, fmt.Errorf("%w: unexpected %s in call", ErrSyntax, c.curr)
		}
	}
	if !c.is(endGrp) {
		return nil, fmt.Errorf("%w: missing closing ')'", ErrSyntax)
	}
	c.next()
	return fn, nil
}

func (c *Compiler) resolve(prefix string) string {
	if c.Namespaces == nil {
		return ""
	}
	return c.Namespaces[prefix]
}

func (c *Compiler) power() int {
	return bindings[c.curr.Type]
}

func (c *Compiler) is(kind rune) bool {
	return c.curr.Type == kind
}

func (c *Compiler) done() bool {
	return c.is(EOF)
}

func (c *Compiler) next() {
	c.curr = c.peek
	c.peek = c.scan.Scan()
}

const (
	powLowest = iota
	powOr
	powAnd
	powCmp
	powAdd
	powMul
	powUnion
	powPrefix
	powStep
	powPred
	powCall
)

var bindings = map[rune]int{
	currLevel: powStep,
	anyLevel:  powStep,
	opUnion:   powUnion,
	opEq:      powCmp,
	opNe:      powCmp,
	opGt:      powCmp,
	opGe:      powCmp,
	opLt:      powCmp,
	opLe:      powCmp,
	opAnd:     powAnd,
	opOr:      powOr,
	opAdd:     powAdd,
	opSub:     powAdd,
	opMul:     powMul,
	opDiv:     powMul,
	opMod:     powMul,
	begGrp:    powCall,
	begPred:   powPred,
}
