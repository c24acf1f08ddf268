package xslt

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xml"
	"github.com/midbel/loom/xpath"
)

// Compile turns a stylesheet into an immutable Executable. Static
// errors are reported through the configuration's error listener as
// they are found; compilation keeps scanning and fails at the end when
// any were reported.
func Compile(r io.Reader, cfg *Configuration) (*Executable, error) {
	c := compiler{cfg: cfg}
	return c.compile(r, "")
}

func CompileFile(file string, cfg *Configuration) (*Executable, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	c := compiler{cfg: cfg}
	return c.compile(r, file)
}

type compiler struct {
	cfg  *Configuration
	exec *Executable

	base  string
	count int
	pos   int
}

func (c *compiler) compile(r io.Reader, base string) (*Executable, error) {
	c.base = base
	c.exec = &Executable{
		Version: XslVersion,
	}
	doc, err := c.loadStyle(r)
	if err != nil {
		return nil, err
	}
	root := firstElement(doc)
	if root == nil {
		return nil, staticError("stylesheet has no root element", nil)
	}
	ns := nsBindings(nil, root)
	if isXsl(root, "stylesheet") || isXsl(root, "transform") {
		if v, ok := attrValue(root, "version"); ok {
			c.exec.Version = v
		}
		c.declarations(root, ns, 0)
	} else {
		c.simplified(root, ns)
	}
	if len(c.exec.Outputs) == 0 {
		c.exec.Outputs = append(c.exec.Outputs, defaultOutput())
	}
	c.orderGlobals()
	if c.count > 0 {
		return nil, fmt.Errorf("%w: %d error(s) were reported during compilation", ErrCompile, c.count)
	}
	c.exec.Names = c.cfg.pool.Snapshot()
	if err := c.exec.link(); err != nil {
		return nil, err
	}
	return c.exec, nil
}

// loadStyle parses a stylesheet module into a linked tree. Whitespace
// text is stripped everywhere except inside xsl:text and xml:space
// preserved regions; namespace declarations are kept so prefixed
// expressions can be compiled later.
func (c *compiler) loadStyle(r io.Reader) (tree.Node, error) {
	text, err := c.cfg.pool.Allocate("xsl", names.XslNamespace, "text")
	if err != nil {
		return nil, err
	}
	var (
		builder = tree.NewBuilder(tree.StrategyLinked, c.cfg.pool)
		strip   = tree.StripWhitespace(builder, c.cfg.pool, tree.StripAll)
	)
	strip.Preserve = func(code names.Code) bool {
		return code.Fingerprint() == text.Fingerprint()
	}
	parser := xml.NewParser(r, c.cfg.pool)
	parser.KeepNamespaces = true
	if err := parser.Parse(strip); err != nil {
		return nil, err
	}
	return builder.Tree()
}

func (c *compiler) report(msg string, cause error) {
	e := staticError(msg, cause)
	e.URI = c.base
	report(c.cfg.ErrorListener(), e)
	c.count++
}

func (c *compiler) declarations(root tree.Node, ns map[string]string, prec int) {
	for n := range root.Children() {
		if n.Kind() != tree.KindElement {
			continue
		}
		if tree.URI(n) != names.XslNamespace {
			c.report(fmt.Sprintf("%s: unexpected declaration", tree.DisplayName(n)), nil)
			continue
		}
		scope := nsBindings(ns, n)
		if !c.useWhen(n, scope) {
			continue
		}
		switch tree.LocalName(n) {
		case "template":
			c.loadTemplate(n, scope, prec)
		case "variable":
			c.loadGlobal(n, scope, false)
		case "param":
			c.loadGlobal(n, scope, true)
		case "key":
			c.loadKey(n, scope)
		case "output":
			c.loadOutput(n)
		case "strip-space":
			c.loadSpace(n, &c.exec.StripSpace)
		case "preserve-space":
			c.loadSpace(n, &c.exec.PreserveSpace)
		case "attribute-set":
			c.loadAttrSet(n, scope)
		case "include":
			c.loadModule(n, prec)
		case "import":
			c.loadModule(n, prec-1)
		case "mode":
			// declared modes carry no compiled form here
		default:
			c.report(fmt.Sprintf("%s: unknown declaration", tree.DisplayName(n)), nil)
		}
	}
}

// simplified wraps a literal-result-element stylesheet into the
// one-template skeleton it abbreviates.
func (c *compiler) simplified(root tree.Node, ns map[string]string) {
	declared := slices.Contains(slices.Collect(maps.Values(ns)), names.XslNamespace)
	if !declared {
		c.report("simplified stylesheet must declare the transform namespace", nil)
		return
	}
	in, err := c.compileInstruction(root, ns)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	match, err := compilePattern("/", ns)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	tpl := Template{
		Match:    match,
		Position: c.nextPos(),
		Body:     []Instruction{*in},
	}
	c.exec.Templates = append(c.exec.Templates, &tpl)
}

func (c *compiler) useWhen(n tree.Node, ns map[string]string) bool {
	query, ok := attrValue(n, "use-when")
	if !ok {
		return true
	}
	expr, err := compileExpression(query, ns)
	if err != nil {
		c.report(err.Error(), err)
		return false
	}
	seq, err := expr.eval(xpath.DefaultContext(n))
	if err != nil {
		c.report(err.Error(), err)
		return false
	}
	return seq.True()
}

func (c *compiler) loadModule(n tree.Node, prec int) {
	href, ok := attrValue(n, "href")
	if !ok {
		c.report("module reference is missing its href", nil)
		return
	}
	rc, location, err := c.cfg.modules.Open(href, c.base)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	defer rc.Close()
	doc, err := c.loadStyle(rc)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	root := firstElement(doc)
	if root == nil || (!isXsl(root, "stylesheet") && !isXsl(root, "transform")) {
		c.report(fmt.Sprintf("%s: not a stylesheet module", href), nil)
		return
	}
	saved := c.base
	c.base = location
	c.declarations(root, nsBindings(nil, root), prec)
	c.base = saved
}

func (c *compiler) loadTemplate(n tree.Node, ns map[string]string, prec int) {
	tpl := Template{
		Precedence: prec,
		Position:   c.nextPos(),
	}
	tpl.Name, _ = attrValue(n, "name")
	tpl.Mode, _ = attrValue(n, "mode")
	if match, ok := attrValue(n, "match"); ok {
		p, err := compilePattern(match, ns)
		if err != nil {
			c.report(fmt.Sprintf("%s: invalid match pattern", match), err)
			return
		}
		tpl.Match = p
	}
	if tpl.Name == "" && tpl.Match == nil {
		c.report("template needs a name or a match pattern", nil)
		return
	}
	if prio, ok := attrValue(n, "priority"); ok {
		f, err := strconv.ParseFloat(prio, 64)
		if err != nil {
			c.report(fmt.Sprintf("%s: invalid priority", prio), err)
			return
		}
		tpl.Priority = f
		tpl.Explicit = true
	}
	rest, params := c.headParams(n, ns)
	tpl.Params = params
	tpl.Body = c.compileNodes(rest, ns)
	c.exec.Templates = append(c.exec.Templates, &tpl)
}

// headParams splits the leading xsl:param children from the rest of a
// template body.
func (c *compiler) headParams(n tree.Node, ns map[string]string) ([]tree.Node, []Binding) {
	var (
		rest   []tree.Node
		params []Binding
		head   = true
	)
	for child := range n.Children() {
		if head && child.Kind() == tree.KindElement && isXsl(child, "param") {
			b, err := c.loadBinding(child, nsBindings(ns, child))
			if err != nil {
				c.report(err.Error(), err)
				continue
			}
			params = append(params, b)
			continue
		}
		head = false
		rest = append(rest, child)
	}
	return rest, params
}

func (c *compiler) loadGlobal(n tree.Node, ns map[string]string, param bool) {
	b, err := c.loadBinding(n, ns)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	b.Param = param
	exists := slices.ContainsFunc(c.exec.Globals, func(other Binding) bool {
		return other.Name == b.Name
	})
	if exists {
		c.report(fmt.Sprintf("$%s: variable is already declared", b.Name), nil)
		return
	}
	c.exec.Globals = append(c.exec.Globals, b)
	if param && b.Required {
		c.exec.Required = append(c.exec.Required, b.Name)
	}
}

func (c *compiler) loadBinding(n tree.Node, ns map[string]string) (Binding, error) {
	var b Binding
	name, ok := attrValue(n, "name")
	if !ok {
		return b, fmt.Errorf("%s: name attribute is missing", tree.DisplayName(n))
	}
	b.Name = name
	if req, ok := attrValue(n, "required"); ok && req == "yes" {
		b.Required = true
	}
	if query, ok := attrValue(n, "select"); ok {
		if hasContent(n) {
			return b, fmt.Errorf("$%s: select attribute can not be combined with content", name)
		}
		expr, err := compileExpression(query, ns)
		if err != nil {
			return b, err
		}
		b.Select = expr
	} else {
		b.Body = c.compileBody(n, ns)
	}
	return b, nil
}

func (c *compiler) loadKey(n tree.Node, ns map[string]string) {
	name, ok := attrValue(n, "name")
	if !ok {
		c.report("key declaration needs a name", nil)
		return
	}
	match, ok := attrValue(n, "match")
	if !ok {
		c.report(fmt.Sprintf("%s: key declaration needs a match pattern", name), nil)
		return
	}
	use, ok := attrValue(n, "use")
	if !ok {
		c.report(fmt.Sprintf("%s: key declaration needs a use expression", name), nil)
		return
	}
	pat, err := compilePattern(match, ns)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	expr, err := compileExpression(use, ns)
	if err != nil {
		c.report(err.Error(), err)
		return
	}
	key := Key{
		Name:  name,
		Match: pat,
		Use:   expr,
	}
	c.exec.Keys = append(c.exec.Keys, &key)
}

func (c *compiler) loadOutput(n tree.Node) {
	var out Output
	for a := range n.Attributes() {
		switch value := a.Value(); tree.LocalName(a) {
		case "name":
			out.Name = value
		case "method":
			out.Method = value
		case "version":
			out.Version = value
		case "encoding":
			out.Encoding = value
		case "indent":
			out.Indent = value == "yes"
		case "omit-xml-declaration":
			out.OmitProlog = value == "yes"
		default:
		}
	}
	if out.Method == "" {
		out.Method = "xml"
	}
	c.exec.Outputs = append(c.exec.Outputs, &out)
}

func (c *compiler) loadSpace(n tree.Node, list *[]string) {
	elements, ok := attrValue(n, "elements")
	if !ok {
		c.report(fmt.Sprintf("%s: elements attribute is missing", tree.DisplayName(n)), nil)
		return
	}
	*list = append(*list, strings.Fields(elements)...)
}

func (c *compiler) loadAttrSet(n tree.Node, ns map[string]string) {
	name, ok := attrValue(n, "name")
	if !ok {
		c.report("attribute set needs a name", nil)
		return
	}
	set := AttrSet{
		Name: name,
	}
	for child := range n.Children() {
		if child.Kind() != tree.KindElement || !isXsl(child, "attribute") {
			c.report(fmt.Sprintf("%s: attribute set may only contain attribute instructions", name), nil)
			return
		}
		in, err := c.compileInstruction(child, nsBindings(ns, child))
		if err != nil {
			c.report(err.Error(), err)
			return
		}
		set.Attrs = append(set.Attrs, *in)
	}
	c.exec.AttrSets = append(c.exec.AttrSets, &set)
}

func (c *compiler) compileBody(elem tree.Node, ns map[string]string) []Instruction {
	return c.compileNodes(slices.Collect(elem.Children()), ns)
}

func (c *compiler) compileNodes(nodes []tree.Node, ns map[string]string) []Instruction {
	var list []Instruction
	for _, n := range nodes {
		switch n.Kind() {
		case tree.KindText:
			list = append(list, Instruction{Op: OpText, Text: n.Value()})
		case tree.KindComment, tree.KindInstruction:
			// stylesheet comments and PIs produce nothing
		case tree.KindElement:
			in, err := c.compileInstruction(n, nsBindings(ns, n))
			if err != nil {
				c.report(err.Error(), err)
				continue
			}
			list = append(list, *in)
		}
	}
	return list
}

func (c *compiler) compileInstruction(n tree.Node, ns map[string]string) (*Instruction, error) {
	if tree.URI(n) != names.XslNamespace {
		return c.compileLiteral(n, ns)
	}
	switch local := tree.LocalName(n); local {
	case "apply-templates":
		return c.compileApply(n, ns)
	case "apply-imports":
		return &Instruction{Op: OpApplyImports}, nil
	case "call-template":
		return c.compileCall(n, ns)
	case "for-each":
		return c.compileForEach(n, ns)
	case "if":
		return c.compileIf(n, ns)
	case "choose":
		return c.compileChoose(n, ns)
	case "value-of":
		return c.compileValueOf(n, ns)
	case "copy":
		in := Instruction{Op: OpCopy, Body: c.compileBody(n, ns)}
		if sets, ok := attrValue(n, "use-attribute-sets"); ok {
			in.Sets = strings.Fields(sets)
		}
		return &in, nil
	case "copy-of":
		query, ok := attrValue(n, "select")
		if !ok {
			return nil, fmt.Errorf("copy-of: select attribute is missing")
		}
		expr, err := compileExpression(query, ns)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpCopyOf, Select: expr}, nil
	case "element":
		return c.compileElement(n, ns)
	case "attribute":
		return c.compileAttribute(n, ns)
	case "text":
		return &Instruction{Op: OpText, Text: n.Value()}, nil
	case "comment":
		return &Instruction{Op: OpComment, Body: c.compileBody(n, ns)}, nil
	case "processing-instruction":
		return c.compileProcInst(n, ns)
	case "variable", "param":
		b, err := c.loadBinding(n, ns)
		if err != nil {
			return nil, err
		}
		return &Instruction{Op: OpVariable, Ident: b.Name, Select: b.Select, Body: b.Body}, nil
	case "message":
		in := Instruction{Op: OpMessage, Body: c.compileBody(n, ns)}
		if term, ok := attrValue(n, "terminate"); ok {
			in.Terminate = term == "yes"
		}
		return &in, nil
	case "result-document":
		return c.compileResultDocument(n, ns)
	case "sort", "with-param", "when", "otherwise":
		return nil, fmt.Errorf("%s: instruction not allowed here", local)
	default:
		return nil, fmt.Errorf("%s: unknown instruction", local)
	}
}

func (c *compiler) compileLiteral(n tree.Node, ns map[string]string) (*Instruction, error) {
	in := Instruction{
		Op:   OpLiteral,
		Name: n.Name(),
	}
	for a := range n.Attributes() {
		switch tree.URI(a) {
		case names.XslNamespace:
			if tree.LocalName(a) == "use-attribute-sets" {
				in.Sets = strings.Fields(a.Value())
			}
		case names.XmlnsNamespace:
			if a.Value() == names.XslNamespace {
				continue
			}
			in.Attrs = append(in.Attrs, LiteralAttr{
				Name:  a.Name(),
				Value: staticAVT(a.Value()),
			})
		default:
			avt, err := compileAVT(a.Value(), ns)
			if err != nil {
				return nil, err
			}
			in.Attrs = append(in.Attrs, LiteralAttr{
				Name:  a.Name(),
				Value: avt,
			})
		}
	}
	in.Body = c.compileBody(n, ns)
	return &in, nil
}

func (c *compiler) compileApply(n tree.Node, ns map[string]string) (*Instruction, error) {
	in := Instruction{Op: OpApply}
	in.Mode, _ = attrValue(n, "mode")
	if query, ok := attrValue(n, "select"); ok {
		expr, err := compileExpression(query, ns)
		if err != nil {
			return nil, err
		}
		in.Select = expr
	}
	for child := range n.Children() {
		if child.Kind() != tree.KindElement {
			continue
		}
		scope := nsBindings(ns, child)
		switch {
		case isXsl(child, "sort"):
			key, err := c.compileSort(child, scope)
			if err != nil {
				return nil, err
			}
			in.Sorts = append(in.Sorts, key)
		case isXsl(child, "with-param"):
			b, err := c.loadBinding(child, scope)
			if err != nil {
				return nil, err
			}
			in.Params = append(in.Params, b)
		default:
			return nil, fmt.Errorf("apply-templates: unexpected child %s", tree.DisplayName(child))
		}
	}
	return &in, nil
}

func (c *compiler) compileCall(n tree.Node, ns map[string]string) (*Instruction, error) {
	name, ok := attrValue(n, "name")
	if !ok {
		return nil, fmt.Errorf("call-template: name attribute is missing")
	}
	in := Instruction{Op: OpCall, Ident: name}
	for child := range n.Children() {
		if child.Kind() != tree.KindElement {
			continue
		}
		if !isXsl(child, "with-param") {
			return nil, fmt.Errorf("call-template: unexpected child %s", tree.DisplayName(child))
		}
		b, err := c.loadBinding(child, nsBindings(ns, child))
		if err != nil {
			return nil, err
		}
		in.Params = append(in.Params, b)
	}
	return &in, nil
}

func (c *compiler) compileForEach(n tree.Node, ns map[string]string) (*Instruction, error) {
	query, ok := attrValue(n, "select")
	if !ok {
		return nil, fmt.Errorf("for-each: select attribute is missing")
	}
	expr, err := compileExpression(query, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{Op: OpForEach, Select: expr}
	var rest []tree.Node
	for child := range n.Children() {
		if child.Kind() == tree.KindElement && isXsl(child, "sort") {
			key, err := c.compileSort(child, nsBindings(ns, child))
			if err != nil {
				return nil, err
			}
			in.Sorts = append(in.Sorts, key)
			continue
		}
		rest = append(rest, child)
	}
	in.Body = c.compileNodes(rest, ns)
	return &in, nil
}

func (c *compiler) compileIf(n tree.Node, ns map[string]string) (*Instruction, error) {
	test, ok := attrValue(n, "test")
	if !ok {
		return nil, fmt.Errorf("if: test attribute is missing")
	}
	expr, err := compileExpression(test, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{
		Op:     OpIf,
		Select: expr,
		Body:   c.compileBody(n, ns),
	}
	return &in, nil
}

func (c *compiler) compileChoose(n tree.Node, ns map[string]string) (*Instruction, error) {
	in := Instruction{Op: OpChoose}
	var otherwise bool
	for child := range n.Children() {
		if child.Kind() != tree.KindElement {
			continue
		}
		scope := nsBindings(ns, child)
		switch {
		case isXsl(child, "when"):
			if otherwise {
				return nil, fmt.Errorf("choose: when after otherwise")
			}
			test, ok := attrValue(child, "test")
			if !ok {
				return nil, fmt.Errorf("when: test attribute is missing")
			}
			expr, err := compileExpression(test, scope)
			if err != nil {
				return nil, err
			}
			in.Branches = append(in.Branches, Branch{
				Test: expr,
				Body: c.compileBody(child, scope),
			})
		case isXsl(child, "otherwise"):
			if otherwise {
				return nil, fmt.Errorf("choose: more than one otherwise")
			}
			otherwise = true
			in.Branches = append(in.Branches, Branch{
				Body: c.compileBody(child, scope),
			})
		default:
			return nil, fmt.Errorf("choose: unexpected child %s", tree.DisplayName(child))
		}
	}
	if len(in.Branches) == 0 {
		return nil, fmt.Errorf("choose: at least one when is required")
	}
	return &in, nil
}

func (c *compiler) compileValueOf(n tree.Node, ns map[string]string) (*Instruction, error) {
	in := Instruction{Op: OpValueOf}
	if query, ok := attrValue(n, "select"); ok {
		if hasContent(n) {
			return nil, fmt.Errorf("value-of: select attribute can not be combined with content")
		}
		expr, err := compileExpression(query, ns)
		if err != nil {
			return nil, err
		}
		in.Select = expr
	} else {
		in.Body = c.compileBody(n, ns)
	}
	if sep, ok := attrValue(n, "separator"); ok {
		avt, err := compileAVT(sep, ns)
		if err != nil {
			return nil, err
		}
		in.Separator = avt
	}
	return &in, nil
}

func (c *compiler) compileElement(n tree.Node, ns map[string]string) (*Instruction, error) {
	name, ok := attrValue(n, "name")
	if !ok {
		return nil, fmt.Errorf("element: name attribute is missing")
	}
	avt, err := compileAVT(name, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{
		Op:       OpElement,
		NameTpl:  avt,
		Bindings: ns,
		Body:     c.compileBody(n, ns),
	}
	if sets, ok := attrValue(n, "use-attribute-sets"); ok {
		in.Sets = strings.Fields(sets)
	}
	return &in, nil
}

func (c *compiler) compileAttribute(n tree.Node, ns map[string]string) (*Instruction, error) {
	name, ok := attrValue(n, "name")
	if !ok {
		return nil, fmt.Errorf("attribute: name attribute is missing")
	}
	avt, err := compileAVT(name, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{
		Op:       OpAttribute,
		NameTpl:  avt,
		Bindings: ns,
	}
	if query, ok := attrValue(n, "select"); ok {
		if hasContent(n) {
			return nil, fmt.Errorf("attribute: select attribute can not be combined with content")
		}
		expr, err := compileExpression(query, ns)
		if err != nil {
			return nil, err
		}
		in.Select = expr
	} else {
		in.Body = c.compileBody(n, ns)
	}
	return &in, nil
}

func (c *compiler) compileProcInst(n tree.Node, ns map[string]string) (*Instruction, error) {
	name, ok := attrValue(n, "name")
	if !ok {
		return nil, fmt.Errorf("processing-instruction: name attribute is missing")
	}
	avt, err := compileAVT(name, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{
		Op:      OpProcInst,
		NameTpl: avt,
		Body:    c.compileBody(n, ns),
	}
	return &in, nil
}

func (c *compiler) compileResultDocument(n tree.Node, ns map[string]string) (*Instruction, error) {
	href, ok := attrValue(n, "href")
	if !ok {
		return nil, fmt.Errorf("result-document: href attribute is missing")
	}
	avt, err := compileAVT(href, ns)
	if err != nil {
		return nil, err
	}
	in := Instruction{
		Op:   OpResultDocument,
		Href: avt,
		Body: c.compileBody(n, ns),
	}
	in.Format, _ = attrValue(n, "format")
	return &in, nil
}

func (c *compiler) compileSort(n tree.Node, ns map[string]string) (SortKey, error) {
	var key SortKey
	query, ok := attrValue(n, "select")
	if !ok {
		query = "."
	}
	expr, err := compileExpression(query, ns)
	if err != nil {
		return key, err
	}
	key.Select = expr
	if order, ok := attrValue(n, "order"); ok {
		key.Descending = order == "descending"
	}
	if typ, ok := attrValue(n, "data-type"); ok {
		key.Numeric = typ == "number"
	}
	key.Collation, _ = attrValue(n, "collation")
	return key, nil
}

// orderGlobals sorts the global bindings so every binding only refers
// to bindings before it; a cycle is a static error.
func (c *compiler) orderGlobals() {
	index := make(map[string]int)
	for i := range c.exec.Globals {
		index[c.exec.Globals[i].Name] = i
	}
	const (
		unseen = iota
		active
		done
	)
	var (
		marks   = make([]int8, len(c.exec.Globals))
		ordered []Binding
		visit   func(i int) bool
	)
	visit = func(i int) bool {
		switch marks[i] {
		case done:
			return true
		case active:
			c.report(fmt.Sprintf("$%s: %s", c.exec.Globals[i].Name, ErrCircular), ErrCircular)
			return false
		}
		marks[i] = active
		for _, ref := range c.exec.Globals[i].references() {
			j, ok := index[ref]
			if !ok {
				continue
			}
			if !visit(j) {
				return false
			}
		}
		marks[i] = done
		ordered = append(ordered, c.exec.Globals[i])
		return true
	}
	for i := range c.exec.Globals {
		if !visit(i) {
			return
		}
	}
	c.exec.Globals = ordered
}

func (c *compiler) nextPos() int {
	c.pos++
	return c.pos
}

func staticAVT(value string) *AVT {
	return &AVT{
		Parts: []Part{{Text: value}},
	}
}

func firstElement(doc tree.Node) tree.Node {
	for n := range doc.Children() {
		if n.Kind() == tree.KindElement {
			return n
		}
	}
	return nil
}

func isXsl(n tree.Node, local string) bool {
	return tree.URI(n) == names.XslNamespace && tree.LocalName(n) == local
}

func nsBindings(parent map[string]string, elem tree.Node) map[string]string {
	out := parent
	cloned := false
	for a := range elem.Attributes() {
		if tree.URI(a) != names.XmlnsNamespace {
			continue
		}
		if !cloned {
			out = maps.Clone(parent)
			if out == nil {
				out = make(map[string]string)
			}
			cloned = true
		}
		key := tree.LocalName(a)
		if key == "xmlns" {
			key = ""
		}
		out[key] = a.Value()
	}
	return out
}

func attrValue(elem tree.Node, name string) (string, bool) {
	for a := range elem.Attributes() {
		if tree.URI(a) == "" && tree.LocalName(a) == name {
			return a.Value(), true
		}
	}
	return "", false
}

// hasContent reports whether an element has children other than
// whitespace-only text.
func hasContent(n tree.Node) bool {
	for child := range n.Children() {
		if child.Kind() == tree.KindText && strings.TrimSpace(child.Value()) == "" {
			continue
		}
		return true
	}
	return false
}
