package xml

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/midbel/loom/environ"
	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
)

const MaxDepth = 512

const (
	SupportedVersion  = "1.0"
	SupportedEncoding = "UTF-8"
)

const attrXmlNS = "xmlns"

type ParseError struct {
	Position
	Element string
	Message string
}

func (p ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", p.Line, p.Column, p.Element, p.Message)
}

// Parser reads markup and pushes events into a tree.Receiver. Names are
// interned into the pool with their namespace bindings resolved, so the
// receiver never sees a prefix it has to interpret. A Parser serves one
// parse at a time; Reset prepares it for the next document.
type Parser struct {
	scan *Scanner
	curr Token
	peek Token

	pool  *names.Pool
	depth int

	OmitProlog bool
	StrictNS   bool
	// KeepNamespaces leaves xmlns declarations in the attribute list,
	// interned under the xmlns namespace. Consumers that compile
	// prefixed expressions need the in-scope bindings after the parse.
	KeepNamespaces bool
	// KeepComments and KeepPI forward comment and processing
	// instruction events; switched off, those nodes never reach the
	// receiver.
	KeepComments bool
	KeepPI       bool
	MaxDepth     int

	namespaces environ.Environ[string]
}

func NewParser(r io.Reader, pool *names.Pool) *Parser {
	p := Parser{
		pool:         pool,
		KeepComments: true,
		KeepPI:       true,
		MaxDepth:     MaxDepth,
	}
	p.Reset(r)
	return &p
}

func (p *Parser) Reset(r io.Reader) {
	p.scan = Scan(r)
	p.depth = 0
	p.namespaces = environ.Empty[string]()
	p.namespaces.Define("xml", names.XmlNamespace)
	p.next()
	p.next()
}

// Load parses a whole document into a fresh tree.
func Load(r io.Reader, pool *names.Pool, strategy tree.Strategy) (tree.Node, error) {
	var (
		parser  = NewParser(r, pool)
		builder = tree.NewBuilder(strategy, pool)
	)
	if err := parser.Parse(builder); err != nil {
		return nil, err
	}
	return builder.Tree()
}

func LoadFile(file string, pool *names.Pool, strategy tree.Strategy) (tree.Node, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Load(r, pool, strategy)
}

func (p *Parser) Parse(out tree.Receiver) error {
	if err := p.parseProlog(); err != nil {
		return err
	}
	if err := out.StartDocument(); err != nil {
		return err
	}
	var seen bool
	for !p.done() {
		switch p.curr.Type {
		case Literal:
			if strings.TrimSpace(p.curr.Literal) != "" {
				return p.createError("document", "text not allowed outside of root element")
			}
			p.next()
		case CommentTag:
			if p.KeepComments {
				if err := out.Comment(p.curr.Literal); err != nil {
					return err
				}
			}
			p.next()
		case ProcInstTag:
			if err := p.parseInstruction(out); err != nil {
				return err
			}
		case OpenTag:
			if seen {
				return p.createError("document", "document has more than one root element")
			}
			if err := p.parseElement(out); err != nil {
				return err
			}
			seen = true
		default:
			return p.createError("document", "unexpected content")
		}
	}
	if !seen {
		return p.createError("document", "missing root element")
	}
	return out.EndDocument()
}

func (p *Parser) parseProlog() error {
	if !p.is(ProcInstTag) {
		if p.OmitProlog {
			return nil
		}
		return p.createError("document", "xml prolog missing")
	}
	target, attrs, err := p.parsePI()
	if err != nil {
		return err
	}
	if target != "xml" {
		return p.createError("document", "expected xml prolog")
	}
	version, ok := attrs["version"]
	if !ok || version != SupportedVersion {
		return p.createError("document", "xml version not supported")
	}
	if enc, ok := attrs["encoding"]; ok && strings.ToUpper(enc) != SupportedEncoding {
		return p.createError("document", "xml encoding not supported")
	}
	return nil
}

type rawAttr struct {
	prefix string
	local  string
	value  string
}

func (p *Parser) parseElement(out tree.Receiver) error {
	p.depth++
	defer func() {
		p.depth--
	}()
	if p.depth >= p.MaxDepth {
		return p.createError("document", "maximum depth reached")
	}
	p.namespaces = environ.Enclosed(p.namespaces)
	defer func() {
		p.namespaces = environ.Unwrap(p.namespaces)
	}()
	p.next()
	prefix, local, err := p.parseQName("element")
	if err != nil {
		return err
	}
	var (
		raws  []rawAttr
		attrs []tree.Attr
	)
	for !p.done() && !p.is(EndTag) && !p.is(EmptyElemTag) {
		attr, err := p.parseAttr()
		if err != nil {
			return err
		}
		if attr.local == attrXmlNS && attr.prefix == "" {
			p.namespaces.Define("", attr.value)
			if p.KeepNamespaces {
				a, err := p.keepNamespace(attr)
				if err != nil {
					return err
				}
				attrs = append(attrs, a)
			}
			continue
		}
		if attr.prefix == attrXmlNS {
			p.namespaces.Define(attr.local, attr.value)
			if p.KeepNamespaces {
				a, err := p.keepNamespace(attr)
				if err != nil {
					return err
				}
				attrs = append(attrs, a)
			}
			continue
		}
		raws = append(raws, attr)
	}
	code, err := p.allocate(prefix, local, true)
	if err != nil {
		return err
	}
	for _, a := range raws {
		ac, err := p.allocate(a.prefix, a.local, false)
		if err != nil {
			return err
		}
		for _, other := range attrs {
			if other.Name.Fingerprint() == ac.Fingerprint() {
				return p.createError("attribute", "attribute is already defined")
			}
		}
		attrs = append(attrs, tree.Attr{
			Name:  ac,
			Value: a.value,
		})
	}
	if err := out.StartElement(code, 0, attrs); err != nil {
		return err
	}
	switch p.curr.Type {
	case EmptyElemTag:
		p.next()
		return out.EndElement()
	case EndTag:
		p.next()
		for !p.done() && !p.is(CloseTag) {
			if err := p.parseNode(out); err != nil {
				return err
			}
		}
		if !p.is(CloseTag) {
			return p.createError("element", "closing element is missing")
		}
		p.next()
		if err := p.parseCloseElement(prefix, local); err != nil {
			return err
		}
		return out.EndElement()
	default:
		return p.createError("element", "end of element expected")
	}
}

func (p *Parser) parseNode(out tree.Receiver) error {
	switch p.curr.Type {
	case OpenTag:
		return p.parseElement(out)
	case CommentTag:
		var err error
		if p.KeepComments {
			err = out.Comment(p.curr.Literal)
		}
		p.next()
		return err
	case ProcInstTag:
		return p.parseInstruction(out)
	case Cdata, Literal:
		err := out.Text(p.curr.Literal)
		p.next()
		return err
	default:
		return p.createError("document", "unsupported element type")
	}
}

func (p *Parser) parseCloseElement(prefix, local string) error {
	closePrefix, closeLocal, err := p.parseQName("element")
	if err != nil {
		return err
	}
	if closePrefix != prefix {
		return p.createError("element", "namespace mismatched with opening element")
	}
	if closeLocal != local {
		return p.createError("element", "name mismatched with opening element")
	}
	if !p.is(EndTag) {
		return p.createError("element", "end of element expected")
	}
	p.next()
	return nil
}

func (p *Parser) parseInstruction(out tree.Receiver) error {
	target, attrs, err := p.parsePI()
	if err != nil {
		return err
	}
	if !p.KeepPI {
		return nil
	}
	var parts []string
	for k, v := range attrs {
		if v == "" {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return out.Instruction(target, strings.Join(parts, " "))
}

func (p *Parser) parsePI() (string, map[string]string, error) {
	p.next()
	if !p.is(Name) {
		return "", nil, p.createError("processing instruction", "name is missing")
	}
	target := p.curr.Literal
	p.next()
	attrs := make(map[string]string)
	for !p.done() && !p.is(ProcInstTag) {
		switch p.curr.Type {
		case Attr:
			name := p.curr.Literal
			p.next()
			if !p.is(Literal) {
				return "", nil, p.createError("processing instruction", "value is missing")
			}
			if _, ok := attrs[name]; ok {
				return "", nil, p.createError("processing instruction", "attribute is already defined")
			}
			attrs[name] = p.curr.Literal
			p.next()
		case Name:
			attrs[p.curr.Literal] = ""
			p.next()
		default:
			return "", nil, p.createError("processing instruction", "end of element expected")
		}
	}
	if !p.is(ProcInstTag) {
		return "", nil, p.createError("processing instruction", "end of element expected")
	}
	p.next()
	return target, attrs, nil
}

func (p *Parser) parseQName(elem string) (string, string, error) {
	var prefix string
	if p.is(Namespace) {
		prefix = p.curr.Literal
		p.next()
	}
	if !p.is(Name) {
		return "", "", p.createError(elem, "name is missing")
	}
	local := p.curr.Literal
	p.next()
	return prefix, local, nil
}

func (p *Parser) parseAttr() (rawAttr, error) {
	var attr rawAttr
	if p.is(Namespace) {
		attr.prefix = p.curr.Literal
		p.next()
	}
	if !p.is(Attr) {
		return attr, p.createError("attribute", "name is expected")
	}
	attr.local = p.curr.Literal
	p.next()
	if !p.is(Literal) {
		return attr, p.createError("attribute", "value is missing")
	}
	attr.value = p.curr.Literal
	p.next()
	return attr, nil
}

func (p *Parser) keepNamespace(attr rawAttr) (tree.Attr, error) {
	code, err := p.pool.Allocate(attr.prefix, names.XmlnsNamespace, attr.local)
	if err != nil {
		return tree.Attr{}, p.createError("attribute", err.Error())
	}
	return tree.Attr{Name: code, Value: attr.value}, nil
}

// allocate interns a resolved qualified name. Elements with no prefix
// live in the default namespace; unprefixed attributes never do.
func (p *Parser) allocate(prefix, local string, element bool) (names.Code, error) {
	var uri string
	if prefix != "" || element {
		u, err := p.namespaces.Resolve(prefix)
		if err != nil {
			if p.StrictNS && prefix != "" {
				return 0, p.createError("element", fmt.Sprintf("%s: namespace is not defined", prefix))
			}
		} else {
			uri = u
		}
	}
	code, err := p.pool.Allocate(prefix, uri, local)
	if err != nil {
		return 0, p.createError("element", err.Error())
	}
	return code, nil
}

func (p *Parser) createError(elem, msg string) error {
	return ParseError{
		Position: p.curr.Position,
		Element:  elem,
		Message:  msg,
	}
}

func (p *Parser) is(kind rune) bool {
	return p.curr.Type == kind
}

func (p *Parser) done() bool {
	return p.is(EOF)
}

func (p *Parser) next() {
	p.curr = p.peek
	p.peek = p.scan.Scan()
}
