package xslt

import (
	"fmt"
	"slices"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xml"
	"github.com/midbel/loom/xpath"
)

// Template is one compiled template rule or named template.
type Template struct {
	Name     string
	Mode     string
	Match    *Pattern
	Priority float64
	// Explicit reports whether the stylesheet carried a priority
	// attribute; otherwise the pattern's default priority applies per
	// matched alternative.
	Explicit   bool
	Precedence int
	Position   int
	Params     []Binding
	Body       []Instruction
}

// Key is a compiled key declaration: nodes selected by Match, indexed
// under the string values of Use.
type Key struct {
	Name  string
	Match *Pattern
	Use   *Expression
}

// AttrSet is a compiled attribute-set declaration; each entry is an
// OpAttribute instruction evaluated when the set is used.
type AttrSet struct {
	Name  string
	Attrs []Instruction
}

// Output is a compiled output declaration; the unnamed one is the
// principal output format.
type Output struct {
	Name       string
	Method     string
	Version    string
	Encoding   string
	Indent     bool
	OmitProlog bool
}

func defaultOutput() *Output {
	return &Output{
		Method:   "xml",
		Version:  xml.SupportedVersion,
		Encoding: xml.SupportedEncoding,
	}
}

// Executable is an immutable compiled stylesheet. One Executable may
// drive any number of Controllers, concurrently; nothing in it is
// mutated after compilation.
type Executable struct {
	Version string

	Templates []*Template
	// Globals holds the stylesheet-level variables and parameters in
	// dependency order: a binding only references bindings before it.
	Globals  []Binding
	Keys     []*Key
	Outputs  []*Output
	AttrSets []*AttrSet

	StripSpace    []string
	PreserveSpace []string
	Required      []string

	Names names.Snapshot

	rules map[string][]*Template
	named map[string]*Template
}

// link builds the runtime lookup tables. Rules within a mode are kept
// ordered best-first: higher import precedence, then higher priority,
// then later declaration.
func (e *Executable) link() error {
	e.rules = make(map[string][]*Template)
	e.named = make(map[string]*Template)
	for _, t := range e.Templates {
		if t.Name != "" {
			if _, ok := e.named[t.Name]; ok {
				return fmt.Errorf("%s: template is already defined", t.Name)
			}
			e.named[t.Name] = t
		}
		if t.Match != nil {
			e.rules[t.Mode] = append(e.rules[t.Mode], t)
		}
	}
	for _, list := range e.rules {
		slices.SortFunc(list, func(a, b *Template) int {
			if a.Precedence != b.Precedence {
				return b.Precedence - a.Precedence
			}
			return b.Position - a.Position
		})
	}
	return nil
}

func (e *Executable) Named(name string) (*Template, error) {
	t, ok := e.named[name]
	if !ok {
		return nil, fmt.Errorf("%s: template not found", name)
	}
	return t, nil
}

func (e *Executable) Output(name string) *Output {
	ix := slices.IndexFunc(e.Outputs, func(o *Output) bool {
		return o.Name == name
	})
	if ix < 0 {
		return defaultOutput()
	}
	return e.Outputs[ix]
}

func (e *Executable) AttrSet(name string) (*AttrSet, error) {
	ix := slices.IndexFunc(e.AttrSets, func(s *AttrSet) bool {
		return s.Name == name
	})
	if ix < 0 {
		return nil, fmt.Errorf("%s: attribute set not declared", name)
	}
	return e.AttrSets[ix], nil
}

func (e *Executable) Key(name string) (*Key, error) {
	ix := slices.IndexFunc(e.Keys, func(k *Key) bool {
		return k.Name == name
	})
	if ix < 0 {
		return nil, fmt.Errorf("%s: key not declared", name)
	}
	return e.Keys[ix], nil
}

type ruleMatch struct {
	tpl  *Template
	prio float64
}

// match returns every rule of the mode matching the node, best first.
func (e *Executable) match(node tree.Node, mode string, ctx xpath.Context) []ruleMatch {
	var list []ruleMatch
	for _, t := range e.rules[mode] {
		ok, prio := t.Match.Match(node, ctx)
		if !ok {
			continue
		}
		if t.Explicit {
			prio = t.Priority
		}
		list = append(list, ruleMatch{tpl: t, prio: prio})
	}
	slices.SortStableFunc(list, func(a, b ruleMatch) int {
		if a.tpl.Precedence != b.tpl.Precedence {
			return b.tpl.Precedence - a.tpl.Precedence
		}
		switch {
		case a.prio > b.prio:
			return -1
		case a.prio < b.prio:
			return 1
		default:
			return b.tpl.Position - a.tpl.Position
		}
	})
	return list
}

// strips reports whether whitespace-only text children of elements
// named qname are stripped by the stylesheet's strip-space lists.
// preserve-space wins over strip-space; "*" matches every element.
func (e *Executable) strips(qname string) bool {
	match := func(list []string) bool {
		return slices.ContainsFunc(list, func(pat string) bool {
			return pat == "*" || pat == qname
		})
	}
	if match(e.PreserveSpace) {
		return false
	}
	return match(e.StripSpace)
}

// HasStrip reports whether any strip-space declaration exists; without
// one the source pipeline skips the stripping stage entirely.
func (e *Executable) HasStrip() bool {
	return len(e.StripSpace) > 0
}
