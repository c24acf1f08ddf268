package xslt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/midbel/distance"
	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xml"
)

const (
	XslVersion        = "1.0"
	XslVendor         = "loom"
	XslVendorUrl      = "github.com/midbel/loom"
	XslProduct        = "loom"
	XslProductVersion = "0.1.0"
)

type Validation int8

const (
	ValidationStrip Validation = iota
	ValidationPreserve
	ValidationStrict
	ValidationLax
)

func (v Validation) String() string {
	switch v {
	case ValidationStrip:
		return "strip"
	case ValidationPreserve:
		return "preserve"
	case ValidationStrict:
		return "strict"
	case ValidationLax:
		return "lax"
	default:
		return "unknown"
	}
}

type Recovery int8

const (
	RecoverSilently Recovery = iota
	RecoverWithWarnings
	DoNotRecover
)

func (r Recovery) String() string {
	switch r {
	case RecoverSilently:
		return "silent"
	case RecoverWithWarnings:
		return "warn"
	case DoNotRecover:
		return "fatal"
	default:
		return "unknown"
	}
}

// URIResolver opens source documents referenced by document().
type URIResolver interface {
	Resolve(uri string) (io.ReadCloser, error)
}

// OutputResolver creates result destinations for secondary outputs.
type OutputResolver interface {
	Create(uri string) (io.WriteCloser, error)
}

// ModuleResolver opens included and imported stylesheet modules. It
// returns the opened module together with its absolute location, which
// becomes the base of the nested module's own inclusions.
type ModuleResolver interface {
	Open(href, base string) (io.ReadCloser, string, error)
}

// CollationFunc compares two strings for sorting. The codepoint
// collation is registered under the empty name.
type CollationFunc func(a, b string) int

// Configuration holds everything shared between compilations and runs:
// the name pool, the processing policies, the resolvers and the
// diagnostic listeners. It is passed explicitly to every constructor.
type Configuration struct {
	pool *names.Pool

	Model      tree.Strategy
	Validation Validation
	Whitespace tree.StripPolicy
	Recovery   Recovery
	Timezone   *time.Location

	listener   Listener
	tracer     Tracer
	uris       URIResolver
	outputs    OutputResolver
	modules    ModuleResolver
	collations map[string]CollationFunc

	parsers sync.Pool
}

func NewConfiguration() *Configuration {
	cfg := Configuration{
		pool:       names.NewPool(),
		Model:      tree.StrategyCompact,
		Validation: ValidationStrip,
		Whitespace: tree.StripNone,
		Recovery:   RecoverWithWarnings,
		Timezone:   time.Local,
		listener:   NewListener(os.Stderr),
		tracer:     NoopTracer(),
		uris:       fileResolver{},
		outputs:    fileOutput{},
		modules:    fileModule{},
		collations: make(map[string]CollationFunc),
	}
	cfg.collations[""] = strings.Compare
	cfg.parsers.New = func() any {
		return xml.NewParser(strings.NewReader(""), cfg.pool)
	}
	return &cfg
}

func (c *Configuration) Pool() *names.Pool {
	return c.pool
}

func (c *Configuration) ErrorListener() Listener {
	return c.listener
}

func (c *Configuration) SetErrorListener(lst Listener) {
	if lst == nil {
		lst = NewListener(os.Stderr)
	}
	c.listener = lst
}

func (c *Configuration) Tracer() Tracer {
	return c.tracer
}

// SetTracer installs a trace listener. It may change between runs of
// the same Controller but never during one.
func (c *Configuration) SetTracer(t Tracer) {
	if t == nil {
		t = NoopTracer()
	}
	c.tracer = t
}

func (c *Configuration) Tracing() bool {
	_, off := c.tracer.(discardTracer)
	return !off
}

func (c *Configuration) SetURIResolver(r URIResolver) {
	if r == nil {
		r = fileResolver{}
	}
	c.uris = r
}

func (c *Configuration) SetOutputResolver(r OutputResolver) {
	if r == nil {
		r = fileOutput{}
	}
	c.outputs = r
}

func (c *Configuration) SetModuleResolver(r ModuleResolver) {
	if r == nil {
		r = fileModule{}
	}
	c.modules = r
}

func (c *Configuration) SetCollationResolver(name string, fn CollationFunc) {
	c.collations[name] = fn
}

func (c *Configuration) Collation(name string) (CollationFunc, error) {
	fn, ok := c.collations[name]
	if !ok {
		return nil, fmt.Errorf("%s: collation not registered", name)
	}
	return fn, nil
}

// AcquireParser takes a pooled parser reset on the given reader. The
// parser must be released after the parse; it is never shared between
// two concurrent parses.
func (c *Configuration) AcquireParser(r io.Reader) *xml.Parser {
	p := c.parsers.Get().(*xml.Parser)
	p.OmitProlog = false
	p.StrictNS = false
	p.KeepNamespaces = false
	p.KeepComments = true
	p.KeepPI = true
	p.Reset(r)
	return p
}

func (c *Configuration) ReleaseParser(p *xml.Parser) {
	c.parsers.Put(p)
}

// LoadDocument parses a source document into a tree, applying the
// configured whitespace policy and, with validation=strip, erasing
// type annotations.
func (c *Configuration) LoadDocument(r io.Reader) (tree.Node, error) {
	return c.loadDocument(r, func(next tree.Receiver) tree.Receiver {
		if c.Whitespace == tree.StripNone {
			return next
		}
		return tree.StripWhitespace(next, c.pool, c.Whitespace)
	})
}

func (c *Configuration) loadDocument(r io.Reader, wrap func(tree.Receiver) tree.Receiver) (tree.Node, error) {
	switch c.Validation {
	case ValidationStrict, ValidationLax:
		return nil, fmt.Errorf("%w: schema validation", ErrUnsupported)
	}
	var (
		builder = tree.NewBuilder(c.Model, c.pool)
		out     tree.Receiver
	)
	out = builder
	if c.Validation == ValidationStrip {
		out = tree.StripAnnotations(out)
	}
	if wrap != nil {
		out = wrap(out)
	}
	parser := c.AcquireParser(r)
	defer c.ReleaseParser(parser)
	if err := parser.Parse(out); err != nil {
		return nil, err
	}
	return builder.Tree()
}

const (
	propTreeModel  = "tree-model"
	propWhitespace = "whitespace"
	propValidation = "validation"
	propRecovery   = "recovery"
	propTimezone   = "timezone"
)

var properties = []string{
	propTreeModel,
	propWhitespace,
	propValidation,
	propRecovery,
	propTimezone,
}

// SetProperty is the string-keyed configuration surface used by the
// CLI. Unknown keys fail with near-miss suggestions; values are
// validated immediately.
func (c *Configuration) SetProperty(key, value string) error {
	switch key {
	case propTreeModel:
		switch value {
		case "compact":
			c.Model = tree.StrategyCompact
		case "linked":
			c.Model = tree.StrategyLinked
		default:
			return badValue(key, value)
		}
	case propWhitespace:
		switch value {
		case "none":
			c.Whitespace = tree.StripNone
		case "all":
			c.Whitespace = tree.StripAll
		case "ignorable":
			c.Whitespace = tree.StripIgnorable
		default:
			return badValue(key, value)
		}
	case propValidation:
		switch value {
		case "strip":
			c.Validation = ValidationStrip
		case "preserve":
			c.Validation = ValidationPreserve
		case "strict", "lax":
			return fmt.Errorf("%w: schema validation (%s)", ErrUnsupported, value)
		default:
			return badValue(key, value)
		}
	case propRecovery:
		switch value {
		case "silent":
			c.Recovery = RecoverSilently
		case "warn":
			c.Recovery = RecoverWithWarnings
		case "fatal":
			c.Recovery = DoNotRecover
		default:
			return badValue(key, value)
		}
	case propTimezone:
		loc, err := time.LoadLocation(value)
		if err != nil {
			return badValue(key, value)
		}
		c.Timezone = loc
	default:
		others := distance.Levenshtein(key, properties)
		if len(others) > 0 {
			return fmt.Errorf("%w: %s (did you mean %s?)", ErrBadProperty, key, strings.Join(others, ", "))
		}
		return fmt.Errorf("%w: %s", ErrBadProperty, key)
	}
	return nil
}

func (c *Configuration) Property(key string) (string, error) {
	switch key {
	case propTreeModel:
		return c.Model.String(), nil
	case propWhitespace:
		return c.Whitespace.String(), nil
	case propValidation:
		return c.Validation.String(), nil
	case propRecovery:
		return c.Recovery.String(), nil
	case propTimezone:
		return c.Timezone.String(), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrBadProperty, key)
	}
}

func badValue(key, value string) error {
	return fmt.Errorf("%s: invalid value %q", key, value)
}

type fileResolver struct{}

func (fileResolver) Resolve(uri string) (io.ReadCloser, error) {
	return os.Open(uri)
}

type fileOutput struct{}

func (fileOutput) Create(uri string) (io.WriteCloser, error) {
	return os.Create(uri)
}

type fileModule struct{}

func (fileModule) Open(href, base string) (io.ReadCloser, string, error) {
	if base != "" && !filepath.IsAbs(href) {
		href = filepath.Join(filepath.Dir(base), href)
	}
	r, err := os.Open(href)
	return r, href, err
}
