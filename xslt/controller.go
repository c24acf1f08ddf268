package xslt

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/midbel/loom/environ"
	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xpath"
)

type runState int8

const (
	stateIdle runState = iota
	stateRunning
	stateDone
)

// Controller runs one Executable over one source document at a time. It
// owns all mutable run state: run parameters, the global variable
// bindery, the pool of loaded documents, the key indexes and the
// registry of written outputs. A Controller is not safe for concurrent
// use; create one per run or Reset between runs.
type Controller struct {
	cfg  *Configuration
	exec *Executable

	state   runState
	output  string
	params  map[string]xpath.Sequence
	bindery *Bindery
	source  tree.Node
	docs    map[string]tree.Node
	written map[string]struct{}
	keys    []*keyIndex
	frames  []frame
	clock   time.Time
	depth   int
}

type frame struct {
	tpl  *Template
	mode string
	node tree.Node
}

type keyIndex struct {
	key    *Key
	doc    tree.Node
	values map[string]xpath.Sequence
}

func NewController(exec *Executable, cfg *Configuration) *Controller {
	if cfg == nil {
		cfg = NewConfiguration()
	}
	ctrl := Controller{
		cfg:  cfg,
		exec: exec,
	}
	ctrl.Reset()
	return &ctrl
}

// SetParameter binds a stylesheet parameter for the next run. Values
// are atomized the way expressions see them: strings stay strings,
// numbers become doubles. Values outside the expression value space are
// rejected at bind time.
func (c *Controller) SetParameter(name string, value any) error {
	seq, err := convertParam(value)
	if err != nil {
		return fmt.Errorf("%w: %s", err, name)
	}
	c.params[name] = seq
	return nil
}

func convertParam(value any) (xpath.Sequence, error) {
	switch v := value.(type) {
	case string, bool, float64, time.Time, tree.Node:
		return xpath.Singleton(v), nil
	case int:
		return xpath.Singleton(float64(v)), nil
	case int64:
		return xpath.Singleton(float64(v)), nil
	case float32:
		return xpath.Singleton(float64(v)), nil
	case xpath.Sequence:
		return v, nil
	case []any:
		var seq xpath.Sequence
		for _, it := range v {
			sub, err := convertParam(it)
			if err != nil {
				return nil, err
			}
			seq.Concat(sub)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadParam, value)
	}
}

// Reset returns the controller to its pristine state so the same
// instance can drive another run. Parameters are kept.
func (c *Controller) Reset() {
	c.state = stateIdle
	if c.params == nil {
		c.params = make(map[string]xpath.Sequence)
	}
	c.bindery = NewBindery()
	c.source = nil
	c.docs = make(map[string]tree.Node)
	c.written = make(map[string]struct{})
	c.keys = nil
	c.frames = nil
	c.depth = 0
}

// SetOutputURI declares the destination the caller writes the principal
// result to so a result-document naming the same URI is rejected.
func (c *Controller) SetOutputURI(uri string) {
	c.output = uri
}

// prepare turns a finished controller back into a fresh one before the
// next run touches the document pool.
func (c *Controller) prepare() {
	if c.state == stateDone {
		c.Reset()
	}
}

// Transform parses the source document and transforms it to w using the
// principal output format.
func (c *Controller) Transform(r io.Reader, w io.Writer) error {
	c.prepare()
	doc, err := c.loadSource(r)
	if err != nil {
		return err
	}
	return c.TransformNode(doc, w)
}

func (c *Controller) TransformFile(file string, w io.Writer) error {
	c.prepare()
	rc, err := c.cfg.uris.Resolve(file)
	if err != nil {
		return err
	}
	defer rc.Close()
	doc, err := c.loadSource(rc)
	if err != nil {
		return err
	}
	c.docs[file] = doc
	return c.TransformNode(doc, w)
}

// TransformNode transforms an already built source tree.
func (c *Controller) TransformNode(doc tree.Node, w io.Writer) error {
	c.prepare()
	return c.run(doc, w, func(ctx xpath.Context) ([]*resNode, error) {
		return c.applyTemplates([]tree.Node{doc}, "", nil, ctx)
	})
}

// Invoke starts the transformation at a named template instead of a
// source document. The initial context is an empty synthetic document.
func (c *Controller) Invoke(name string, w io.Writer) error {
	c.prepare()
	tpl, err := c.exec.Named(name)
	if err != nil {
		return dynamicError(CodeNamedNotFound, "call-template", err.Error(), err)
	}
	doc, err := emptyDocument(c.cfg)
	if err != nil {
		return err
	}
	return c.run(doc, w, func(ctx xpath.Context) ([]*resNode, error) {
		return c.callTemplate(tpl, nil, ctx)
	})
}

func (c *Controller) run(doc tree.Node, w io.Writer, entry func(xpath.Context) ([]*resNode, error)) error {
	if c.state == stateRunning {
		return fmt.Errorf("transformation already in progress")
	}
	c.prepare()
	c.state = stateRunning
	defer func() {
		c.state = stateDone
	}()

	c.source = doc
	c.clock = time.Now().In(c.cfg.Timezone)
	c.written[c.output] = struct{}{}
	for name, seq := range c.params {
		if c.overridable(name) {
			c.bindery.Set(name, seq)
		}
	}

	tracer := c.cfg.Tracer()
	tracer.Start()
	err := c.execute(doc, w, entry)
	tracer.Done(err)
	if err != nil {
		c.fail(err)
	}
	return err
}

func (c *Controller) execute(doc tree.Node, w io.Writer, entry func(xpath.Context) ([]*resNode, error)) error {
	if err := c.checkRequired(); err != nil {
		return err
	}
	ctx := c.rootContext(doc)
	if c.cfg.Tracing() {
		// with tracing on, globals resolve eagerly so their evaluation
		// shows up in declaration order
		for _, b := range c.exec.Globals {
			if _, err := c.global(b.Name, ctx); err != nil {
				return err
			}
		}
	}
	nodes, err := entry(ctx)
	if err != nil {
		return err
	}
	res, err := c.buildFragment(nodes)
	if err != nil {
		return err
	}
	return writeResult(w, res, c.exec.Output(""))
}

// rootContext builds the evaluation context every expression of the run
// descends from: focus on the document, globals resolving lazily
// through the bindery, the controller as the dynamic hook.
func (c *Controller) rootContext(doc tree.Node) xpath.Context {
	ctx := xpath.DefaultContext(doc)
	globals := globalScope{ctrl: c, doc: doc}
	ctx.Vars = environ.Enclosed[xpath.Sequence](globals)
	ctx.Dynamic = c
	return ctx
}

func (c *Controller) checkRequired() error {
	for _, name := range c.exec.Required {
		if _, ok := c.params[name]; !ok {
			return dynamicError(CodeMissingParam, "param",
				fmt.Sprintf("$%s: required parameter was not supplied", name), nil)
		}
	}
	return nil
}

// fail routes a terminal error through the listener exactly once.
func (c *Controller) fail(err error) {
	e, ok := err.(*Error)
	if !ok {
		e = dynamicError("", "", err.Error(), err)
	}
	e.Severity = SeverityFatal
	report(c.cfg.ErrorListener(), e)
}

// globalScope exposes the stylesheet globals as the outermost variable
// scope. Resolving a name drives its at-most-once evaluation.
type globalScope struct {
	ctrl *Controller
	doc  tree.Node
}

func (g globalScope) Resolve(name string) (xpath.Sequence, error) {
	return g.ctrl.global(name, g.ctrl.rootContext(g.doc))
}

func (g globalScope) Define(string, xpath.Sequence) {}

func (g globalScope) Names() []string {
	var list []string
	for i := range g.ctrl.exec.Globals {
		list = append(list, g.ctrl.exec.Globals[i].Name)
	}
	return list
}

func (g globalScope) Len() int {
	return len(g.ctrl.exec.Globals)
}

func (c *Controller) global(name string, ctx xpath.Context) (xpath.Sequence, error) {
	ix := slices.IndexFunc(c.exec.Globals, func(b Binding) bool {
		return b.Name == name
	})
	if ix < 0 {
		return nil, fmt.Errorf("$%s: %w", name, environ.ErrDefined)
	}
	b := c.exec.Globals[ix]
	return c.bindery.Value(name, func() (xpath.Sequence, error) {
		return c.bindingValue(&b, ctx.Nest())
	})
}

func (c *Controller) overridable(name string) bool {
	ix := slices.IndexFunc(c.exec.Globals, func(b Binding) bool {
		return b.Name == name
	})
	return ix >= 0 && c.exec.Globals[ix].Param
}

func (c *Controller) bindingValue(b *Binding, ctx xpath.Context) (xpath.Sequence, error) {
	if b.Select != nil {
		return b.Select.eval(ctx)
	}
	if len(b.Body) == 0 {
		return xpath.Singleton(""), nil
	}
	nodes, err := c.evalBody(b.Body, ctx)
	if err != nil {
		return nil, err
	}
	doc, err := c.buildFragment(nodes)
	if err != nil {
		return nil, err
	}
	return xpath.Singleton(doc), nil
}

// applyTemplates resolves the best rule for every node and instantiates
// it. An ambiguous match is a recoverable error; recovery picks the
// rule declared later.
func (c *Controller) applyTemplates(nodes []tree.Node, mode string, params []Binding, ctx xpath.Context) ([]*resNode, error) {
	var out []*resNode
	for i, n := range nodes {
		sub := ctx.Sub(n, i+1, len(nodes))
		matches := c.exec.match(n, mode, sub)
		if len(matches) == 0 {
			res, err := c.builtinRule(n, mode, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
			continue
		}
		if len(matches) > 1 && ambiguous(matches[0], matches[1]) {
			e := dynamicError(CodeAmbiguous, "apply-templates",
				fmt.Sprintf("%s: more than one template matches", tree.DisplayName(n)), nil)
			if err := c.recoverFrom(e); err != nil {
				return nil, err
			}
		}
		res, err := c.instantiate(matches[0].tpl, n, mode, params, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func ambiguous(a, b ruleMatch) bool {
	return a.tpl.Precedence == b.tpl.Precedence && a.prio == b.prio
}

// builtinRule is the default processing for nodes no template matches:
// elements and documents recurse into their children, text and
// attributes copy their value, everything else vanishes.
func (c *Controller) builtinRule(n tree.Node, mode string, ctx xpath.Context) ([]*resNode, error) {
	switch n.Kind() {
	case tree.KindDocument, tree.KindElement:
		return c.applyTemplates(slices.Collect(n.Children()), mode, nil, ctx)
	case tree.KindText, tree.KindAttribute:
		return []*resNode{textRes(n.Value())}, nil
	default:
		return nil, nil
	}
}

func (c *Controller) instantiate(tpl *Template, node tree.Node, mode string, params []Binding, ctx xpath.Context) ([]*resNode, error) {
	tracer := c.cfg.Tracer()
	tracer.Enter(templateLabel(tpl), tree.DisplayName(node), mode, c.depth)
	c.depth++
	c.frames = append(c.frames, frame{tpl: tpl, mode: mode, node: node})
	defer func() {
		c.frames = c.frames[:len(c.frames)-1]
		c.depth--
		tracer.Leave(templateLabel(tpl), tree.DisplayName(node), mode, c.depth)
	}()

	scope := ctx.Nest()
	if err := c.bindParams(tpl.Params, params, scope, ctx); err != nil {
		return nil, err
	}
	return c.evalBody(tpl.Body, scope)
}

func templateLabel(tpl *Template) string {
	if tpl.Name != "" {
		return tpl.Name
	}
	if tpl.Match != nil {
		return tpl.Match.Source
	}
	return "template"
}

// bindParams binds the declared parameters of a template from the
// supplied with-param values, falling back to the declared defaults. A
// missing required parameter stops the run.
func (c *Controller) bindParams(declared, supplied []Binding, scope, outer xpath.Context) error {
	for i := range declared {
		p := declared[i]
		ix := slices.IndexFunc(supplied, func(b Binding) bool {
			return b.Name == p.Name
		})
		var (
			seq xpath.Sequence
			err error
		)
		switch {
		case ix >= 0:
			seq, err = c.bindingValue(&supplied[ix], outer)
		case p.Required:
			return dynamicError(CodeMissingParam, "param",
				fmt.Sprintf("$%s: required parameter was not supplied", p.Name), nil)
		default:
			seq, err = c.bindingValue(&p, scope)
		}
		if err != nil {
			return err
		}
		scope.Define(p.Name, seq)
	}
	return nil
}

func (c *Controller) callTemplate(tpl *Template, params []Binding, ctx xpath.Context) ([]*resNode, error) {
	return c.instantiate(tpl, ctx.Node, "", params, ctx)
}

func (c *Controller) evalBody(body []Instruction, ctx xpath.Context) ([]*resNode, error) {
	var out []*resNode
	for i := range body {
		res, err := c.evalInstruction(&body[i], ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func (c *Controller) evalInstruction(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	switch in.Op {
	case OpText:
		return []*resNode{textRes(in.Text)}, nil
	case OpLiteral:
		return c.evalLiteral(in, ctx)
	case OpApply:
		return c.evalApply(in, ctx)
	case OpApplyImports:
		return c.evalApplyImports(ctx)
	case OpCall:
		tpl, err := c.exec.Named(in.Ident)
		if err != nil {
			return nil, dynamicError(CodeNamedNotFound, in.Op.String(), err.Error(), err)
		}
		return c.callTemplate(tpl, in.Params, ctx)
	case OpForEach:
		return c.evalForEach(in, ctx)
	case OpIf:
		seq, err := in.Select.eval(ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		if !seq.True() {
			return nil, nil
		}
		return c.evalBody(in.Body, ctx.Nest())
	case OpChoose:
		for i := range in.Branches {
			br := &in.Branches[i]
			if br.Test != nil {
				seq, err := br.Test.eval(ctx)
				if err != nil {
					return nil, c.located(err, in)
				}
				if !seq.True() {
					continue
				}
			}
			return c.evalBody(br.Body, ctx.Nest())
		}
		return nil, nil
	case OpValueOf:
		return c.evalValueOf(in, ctx)
	case OpCopy:
		return c.evalCopy(in, ctx)
	case OpCopyOf:
		return c.evalCopyOf(in, ctx)
	case OpElement:
		return c.evalElement(in, ctx)
	case OpAttribute:
		return c.evalAttribute(in, ctx)
	case OpComment:
		str, err := c.contentString(in.Body, ctx)
		if err != nil {
			return nil, err
		}
		return []*resNode{{kind: tree.KindComment, value: str}}, nil
	case OpProcInst:
		return c.evalProcInst(in, ctx)
	case OpVariable:
		b := Binding{Name: in.Ident, Select: in.Select, Body: in.Body}
		seq, err := c.bindingValue(&b, ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		ctx.Define(in.Ident, seq)
		return nil, nil
	case OpMessage:
		return nil, c.evalMessage(in, ctx)
	case OpResultDocument:
		return nil, c.evalResultDocument(in, ctx)
	default:
		return nil, dynamicError(CodeBadInstr, in.Op.String(), "instruction not implemented", nil)
	}
}

func (c *Controller) evalLiteral(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	res := resNode{
		kind: tree.KindElement,
		name: in.Name,
	}
	for i := range in.Attrs {
		value, err := in.Attrs[i].Value.eval(ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		res.attrs = append(res.attrs, tree.Attr{
			Name:  in.Attrs[i].Name,
			Value: value,
		})
	}
	if err := c.useSets(&res, in.Sets, ctx); err != nil {
		return nil, err
	}
	nodes, err := c.evalBody(in.Body, ctx.Nest())
	if err != nil {
		return nil, err
	}
	res.nodes = nodes
	return []*resNode{&res}, nil
}

func (c *Controller) evalApply(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	var nodes []tree.Node
	if in.Select != nil {
		seq, err := in.Select.eval(ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		nodes, err = nodesOf(seq)
		if err != nil {
			return nil, c.located(err, in)
		}
	} else {
		nodes = slices.Collect(ctx.Node.Children())
	}
	nodes, err := c.sortNodes(nodes, in.Sorts, ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	return c.applyTemplates(nodes, in.Mode, in.Params, ctx)
}

// evalApplyImports reprocesses the current node using only rules of
// lower import precedence than the current template's.
func (c *Controller) evalApplyImports(ctx xpath.Context) ([]*resNode, error) {
	if len(c.frames) == 0 || c.frames[len(c.frames)-1].tpl == nil {
		return nil, dynamicError(CodeBadInstr, "apply-imports", "no current template rule", nil)
	}
	top := c.frames[len(c.frames)-1]
	sub := ctx.Sub(top.node, 1, 1)
	matches := c.exec.match(top.node, top.mode, sub)
	matches = slices.DeleteFunc(matches, func(m ruleMatch) bool {
		return m.tpl.Precedence >= top.tpl.Precedence
	})
	if len(matches) == 0 {
		return c.builtinRule(top.node, top.mode, sub)
	}
	return c.instantiate(matches[0].tpl, top.node, top.mode, nil, sub)
}

func (c *Controller) evalForEach(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	seq, err := in.Select.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	nodes, err := nodesOf(seq)
	if err != nil {
		return nil, c.located(err, in)
	}
	nodes, err = c.sortNodes(nodes, in.Sorts, ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	var out []*resNode
	for i, n := range nodes {
		// a tpl-less frame: current() tracks the iteration and
		// apply-imports is rejected inside the loop
		c.frames = append(c.frames, frame{node: n})
		res, err := c.evalBody(in.Body, ctx.Sub(n, i+1, len(nodes)).Nest())
		c.frames = c.frames[:len(c.frames)-1]
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

func (c *Controller) evalValueOf(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	sep := " "
	if in.Separator != nil {
		str, err := in.Separator.eval(ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		sep = str
	}
	if in.Select == nil {
		str, err := c.contentString(in.Body, ctx)
		if err != nil {
			return nil, err
		}
		return []*resNode{textRes(str)}, nil
	}
	seq, err := in.Select.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	parts, err := seq.Strings()
	if err != nil {
		return nil, c.located(err, in)
	}
	return []*resNode{textRes(strings.Join(parts, sep))}, nil
}

// evalCopy makes a shallow copy of the context node. Elements keep
// their name but not their attributes; the body provides the content.
func (c *Controller) evalCopy(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	switch n := ctx.Node; n.Kind() {
	case tree.KindDocument:
		return c.evalBody(in.Body, ctx.Nest())
	case tree.KindElement:
		res := resNode{
			kind: tree.KindElement,
			name: n.Name(),
		}
		if err := c.useSets(&res, in.Sets, ctx); err != nil {
			return nil, err
		}
		nodes, err := c.evalBody(in.Body, ctx.Nest())
		if err != nil {
			return nil, err
		}
		res.nodes = nodes
		return []*resNode{&res}, nil
	case tree.KindAttribute:
		return []*resNode{{kind: tree.KindAttribute, name: n.Name(), value: n.Value()}}, nil
	case tree.KindText:
		return []*resNode{textRes(n.Value())}, nil
	case tree.KindComment:
		return []*resNode{{kind: tree.KindComment, value: n.Value()}}, nil
	case tree.KindInstruction:
		target, err := n.Pool().LocalName(n.Fingerprint())
		if err != nil {
			return nil, err
		}
		return []*resNode{{kind: tree.KindInstruction, target: target, value: n.Value()}}, nil
	default:
		return nil, nil
	}
}

func (c *Controller) evalCopyOf(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	seq, err := in.Select.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	var out []*resNode
	for _, it := range seq {
		if n := it.Node(); n != nil {
			out = append(out, &resNode{src: n})
			continue
		}
		single := xpath.Singleton(it)
		parts, err := single.Strings()
		if err != nil {
			return nil, c.located(err, in)
		}
		out = append(out, textRes(strings.Join(parts, "")))
	}
	return out, nil
}

func (c *Controller) evalElement(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	name, err := in.NameTpl.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	code, err := c.computeName(name, in.Bindings, true)
	if err != nil {
		return nil, c.located(err, in)
	}
	res := resNode{
		kind: tree.KindElement,
		name: code,
	}
	if err := c.useSets(&res, in.Sets, ctx); err != nil {
		return nil, err
	}
	nodes, err := c.evalBody(in.Body, ctx.Nest())
	if err != nil {
		return nil, err
	}
	res.nodes = nodes
	return []*resNode{&res}, nil
}

func (c *Controller) evalAttribute(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	name, err := in.NameTpl.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	code, err := c.computeName(name, in.Bindings, false)
	if err != nil {
		return nil, c.located(err, in)
	}
	var value string
	if in.Select != nil {
		seq, err := in.Select.eval(ctx)
		if err != nil {
			return nil, c.located(err, in)
		}
		value = xpath.StringValue(seq)
	} else {
		value, err = c.contentString(in.Body, ctx)
		if err != nil {
			return nil, err
		}
	}
	return []*resNode{{kind: tree.KindAttribute, name: code, value: value}}, nil
}

func (c *Controller) evalProcInst(in *Instruction, ctx xpath.Context) ([]*resNode, error) {
	target, err := in.NameTpl.eval(ctx)
	if err != nil {
		return nil, c.located(err, in)
	}
	value, err := c.contentString(in.Body, ctx)
	if err != nil {
		return nil, err
	}
	return []*resNode{{kind: tree.KindInstruction, target: target, value: value}}, nil
}

// evalMessage sends the constructed message to the error listener. With
// terminate the run stops and the process reports failure distinctly
// from ordinary errors.
func (c *Controller) evalMessage(in *Instruction, ctx xpath.Context) error {
	str, err := c.contentString(in.Body, ctx)
	if err != nil {
		return err
	}
	e := Error{
		Code:        CodeTerminate,
		Message:     str,
		Instruction: in.Op.String(),
	}
	if in.Terminate {
		e.Severity = SeverityFatal
		e.cause = ErrTerminate
		return &e
	}
	e.Severity = SeverityWarning
	report(c.cfg.ErrorListener(), &e)
	return nil
}

// evalResultDocument constructs a secondary result tree and writes it
// through the output resolver. Writing twice to one destination, or to
// the principal output, is an error.
func (c *Controller) evalResultDocument(in *Instruction, ctx xpath.Context) error {
	uri, err := in.Href.eval(ctx)
	if err != nil {
		return c.located(err, in)
	}
	if _, ok := c.written[uri]; ok {
		return dynamicError(CodeOutputClash, in.Op.String(),
			fmt.Sprintf("%q: destination already written", uri), nil)
	}
	c.written[uri] = struct{}{}
	nodes, err := c.evalBody(in.Body, ctx.Nest())
	if err != nil {
		return err
	}
	doc, err := c.buildFragment(nodes)
	if err != nil {
		return err
	}
	w, err := c.cfg.outputs.Create(uri)
	if err != nil {
		return c.located(err, in)
	}
	defer w.Close()
	return writeResult(w, doc, c.exec.Output(in.Format))
}

// useSets evaluates the referenced attribute sets onto res before any
// explicit attributes from the body.
func (c *Controller) useSets(res *resNode, sets []string, ctx xpath.Context) error {
	for _, name := range sets {
		set, err := c.exec.AttrSet(name)
		if err != nil {
			return dynamicError(CodeStatic, "attribute-set", err.Error(), err)
		}
		for i := range set.Attrs {
			nodes, err := c.evalInstruction(&set.Attrs[i], ctx)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				res.attrs = append(res.attrs, tree.Attr{Name: n.name, Value: n.value})
			}
		}
	}
	return nil
}

// contentString evaluates a body and atomizes the result fragment to
// its text value.
func (c *Controller) contentString(body []Instruction, ctx xpath.Context) (string, error) {
	nodes, err := c.evalBody(body, ctx.Nest())
	if err != nil {
		return "", err
	}
	var str strings.Builder
	var walk func(n *resNode)
	walk = func(n *resNode) {
		switch {
		case n.src != nil:
			str.WriteString(n.src.Value())
		case n.kind == tree.KindText || n.kind == tree.KindAttribute:
			str.WriteString(n.value)
		case n.kind == tree.KindElement || n.kind == tree.KindDocument:
			for _, k := range n.nodes {
				walk(k)
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return str.String(), nil
}

// computeName resolves a computed element or attribute name against the
// prefix bindings in scope at the instruction. Unprefixed attribute
// names stay in no namespace; unprefixed element names take the default
// namespace.
func (c *Controller) computeName(name string, bindings map[string]string, element bool) (names.Code, error) {
	var prefix, local, uri string
	if ix := strings.IndexByte(name, ':'); ix >= 0 {
		prefix, local = name[:ix], name[ix+1:]
		u, ok := bindings[prefix]
		if !ok {
			return 0, fmt.Errorf("%s: prefix not bound", name)
		}
		uri = u
	} else {
		local = name
		if element {
			uri = bindings[""]
		}
	}
	if local == "" {
		return 0, fmt.Errorf("%q: invalid name", name)
	}
	return c.cfg.pool.Allocate(prefix, uri, local)
}

func nodesOf(seq xpath.Sequence) ([]tree.Node, error) {
	var nodes []tree.Node
	for _, it := range seq {
		n := it.Node()
		if n == nil {
			return nil, fmt.Errorf("sequence mixes nodes and atomic values")
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// sortNodes applies the sort keys to the selection, major key first.
// Without keys the selection keeps document order.
func (c *Controller) sortNodes(nodes []tree.Node, sorts []SortKey, ctx xpath.Context) ([]tree.Node, error) {
	if len(sorts) == 0 {
		return nodes, nil
	}
	type entry struct {
		node tree.Node
		keys []string
		nums []float64
	}
	collate := make([]CollationFunc, len(sorts))
	for i := range sorts {
		fn, err := c.cfg.Collation(sorts[i].Collation)
		if err != nil {
			return nil, err
		}
		collate[i] = fn
	}
	list := make([]entry, 0, len(nodes))
	for i, n := range nodes {
		e := entry{node: n}
		for j := range sorts {
			seq, err := sorts[j].Select.eval(ctx.Sub(n, i+1, len(nodes)))
			if err != nil {
				return nil, err
			}
			str := xpath.StringValue(seq)
			e.keys = append(e.keys, str)
			if sorts[j].Numeric {
				f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
				if err != nil {
					f = math.NaN()
				}
				e.nums = append(e.nums, f)
			} else {
				e.nums = append(e.nums, 0)
			}
		}
		list = append(list, e)
	}
	slices.SortStableFunc(list, func(a, b entry) int {
		for j := range sorts {
			var cmp int
			if sorts[j].Numeric {
				cmp = compareFloats(a.nums[j], b.nums[j])
			} else {
				cmp = collate[j](a.keys[j], b.keys[j])
			}
			if sorts[j].Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	})
	sorted := make([]tree.Node, len(list))
	for i := range list {
		sorted[i] = list[i].node
	}
	return sorted, nil
}

// compareFloats sorts NaN last so unparseable numeric keys sink to the
// end instead of poisoning the order.
func compareFloats(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return 1
	case math.IsNaN(b):
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// recoverFrom routes a recoverable dynamic error through the configured
// policy: drop it, warn, or make it fatal.
func (c *Controller) recoverFrom(e *Error) error {
	e.Recoverable = true
	switch c.cfg.Recovery {
	case DoNotRecover:
		e.Severity = SeverityFatal
		return e
	case RecoverWithWarnings:
		e.Severity = SeverityWarning
		report(c.cfg.ErrorListener(), e)
		return nil
	default:
		return nil
	}
}

// located attaches the instruction name to an error that bubbled out of
// expression evaluation.
func (c *Controller) located(err error, in *Instruction) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return dynamicError("", in.Op.String(), err.Error(), err)
}

func (c *Controller) loadSource(r io.Reader) (tree.Node, error) {
	return c.cfg.loadDocument(r, func(next tree.Receiver) tree.Receiver {
		if c.cfg.Whitespace != tree.StripNone {
			next = tree.StripWhitespace(next, c.cfg.pool, c.cfg.Whitespace)
		}
		if c.exec.HasStrip() {
			s := tree.StripWhitespace(next, c.cfg.pool, tree.StripIgnorable)
			s.Strip = func(code names.Code) bool {
				name, err := c.cfg.pool.DisplayName(code)
				if err != nil {
					return false
				}
				return c.exec.strips(name)
			}
			next = s
		}
		return next
	})
}

func emptyDocument(cfg *Configuration) (tree.Node, error) {
	b := tree.NewBuilder(cfg.Model, cfg.pool)
	if err := b.StartDocument(); err != nil {
		return nil, err
	}
	if err := b.EndDocument(); err != nil {
		return nil, err
	}
	return b.Tree()
}
