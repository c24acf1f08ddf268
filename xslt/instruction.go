package xslt

import (
	"github.com/midbel/loom/names"
)

// Op discriminates the closed set of compiled instructions. The
// evaluator switches exhaustively on it; there is no open hierarchy to
// extend.
type Op int8

const (
	OpLiteral Op = iota + 1
	OpText
	OpApply
	OpApplyImports
	OpCall
	OpForEach
	OpIf
	OpChoose
	OpValueOf
	OpCopy
	OpCopyOf
	OpElement
	OpAttribute
	OpComment
	OpProcInst
	OpVariable
	OpMessage
	OpResultDocument
)

func (o Op) String() string {
	switch o {
	case OpLiteral:
		return "literal-result-element"
	case OpText:
		return "text"
	case OpApply:
		return "apply-templates"
	case OpApplyImports:
		return "apply-imports"
	case OpCall:
		return "call-template"
	case OpForEach:
		return "for-each"
	case OpIf:
		return "if"
	case OpChoose:
		return "choose"
	case OpValueOf:
		return "value-of"
	case OpCopy:
		return "copy"
	case OpCopyOf:
		return "copy-of"
	case OpElement:
		return "element"
	case OpAttribute:
		return "attribute"
	case OpComment:
		return "comment"
	case OpProcInst:
		return "processing-instruction"
	case OpVariable:
		return "variable"
	case OpMessage:
		return "message"
	case OpResultDocument:
		return "result-document"
	default:
		return "unknown"
	}
}

// Instruction is one compiled node of a template body. Which fields are
// meaningful depends on Op; unused fields stay zero.
type Instruction struct {
	Op Op

	// OpLiteral: interned element name and its attributes.
	Name  names.Code
	Attrs []LiteralAttr

	// OpText: verbatim content. OpApply: mode. OpCall and OpVariable:
	// the template or variable name.
	Text  string
	Mode  string
	Ident string

	// Computed names (element, attribute, processing-instruction) and
	// result-document destinations.
	NameTpl *AVT
	Href    *AVT
	Format  string

	Select    *Expression
	Separator *AVT
	Terminate bool

	Sorts    []SortKey
	Params   []Binding
	Branches []Branch
	Body     []Instruction

	// use-attribute-sets references and, for computed names, the
	// in-scope prefix bindings the name is resolved against.
	Sets     []string
	Bindings map[string]string
}

type LiteralAttr struct {
	Name  names.Code
	Value *AVT
}

type SortKey struct {
	Select     *Expression
	Descending bool
	Numeric    bool
	Collation  string
}

// Branch is one alternative of a choose; a nil Test is the otherwise
// branch.
type Branch struct {
	Test *Expression
	Body []Instruction
}

// Binding is a named value: a global or local variable, a parameter
// declaration or a with-param. The value comes from Select or, when nil,
// from the constructed Body.
type Binding struct {
	Name     string
	Select   *Expression
	Body     []Instruction
	Param    bool
	Required bool
}

func relinkInstructions(ins []Instruction) error {
	for i := range ins {
		if err := ins[i].relink(); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instruction) relink() error {
	for i := range in.Attrs {
		if err := in.Attrs[i].Value.relink(); err != nil {
			return err
		}
	}
	for _, a := range []*AVT{in.NameTpl, in.Href, in.Separator} {
		if a == nil {
			continue
		}
		if err := a.relink(); err != nil {
			return err
		}
	}
	if in.Select != nil {
		if err := in.Select.relink(); err != nil {
			return err
		}
	}
	for i := range in.Sorts {
		if err := in.Sorts[i].Select.relink(); err != nil {
			return err
		}
	}
	for i := range in.Params {
		if err := in.Params[i].relink(); err != nil {
			return err
		}
	}
	for i := range in.Branches {
		if in.Branches[i].Test != nil {
			if err := in.Branches[i].Test.relink(); err != nil {
				return err
			}
		}
		if err := relinkInstructions(in.Branches[i].Body); err != nil {
			return err
		}
	}
	return relinkInstructions(in.Body)
}

func (b *Binding) relink() error {
	if b.Select != nil {
		if err := b.Select.relink(); err != nil {
			return err
		}
	}
	return relinkInstructions(b.Body)
}

// references collects the free variable names a binding depends on,
// feeding the global dependency graph.
func (b *Binding) references() []string {
	var list []string
	list = append(list, b.Select.references()...)
	for i := range b.Body {
		list = append(list, b.Body[i].references()...)
	}
	return list
}

func (in *Instruction) references() []string {
	var list []string
	list = append(list, in.Select.references()...)
	for i := range in.Attrs {
		list = append(list, in.Attrs[i].Value.references()...)
	}
	for _, a := range []*AVT{in.NameTpl, in.Href, in.Separator} {
		if a != nil {
			list = append(list, a.references()...)
		}
	}
	for i := range in.Sorts {
		list = append(list, in.Sorts[i].Select.references()...)
	}
	for i := range in.Params {
		list = append(list, in.Params[i].references()...)
	}
	for i := range in.Branches {
		if in.Branches[i].Test != nil {
			list = append(list, in.Branches[i].Test.references()...)
		}
		for j := range in.Branches[i].Body {
			list = append(list, in.Branches[i].Body[j].references()...)
		}
	}
	for i := range in.Body {
		list = append(list, in.Body[i].references()...)
	}
	return list
}
