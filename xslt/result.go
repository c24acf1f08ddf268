package xslt

import (
	"io"
	"slices"
	"strings"

	"github.com/midbel/loom/names"
	"github.com/midbel/loom/tree"
)

// resNode is one node of a result fragment before it is materialized
// into a tree. A node with src set replays an existing source subtree;
// otherwise kind decides which fields matter.
type resNode struct {
	kind   tree.Kind
	name   names.Code
	value  string
	target string
	attrs  []tree.Attr
	nodes  []*resNode
	src    tree.Node
}

func textRes(value string) *resNode {
	return &resNode{
		kind:  tree.KindText,
		value: value,
	}
}

// buildFragment replays a result sequence into a fresh tree. Attribute
// nodes surfacing at document level have no element to attach to and
// are dropped under recovery.
func (c *Controller) buildFragment(nodes []*resNode) (tree.Node, error) {
	b := tree.NewBuilder(c.cfg.Model, c.cfg.pool)
	if err := b.StartDocument(); err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if isAttrRes(n) {
			e := dynamicError(CodeLateAttr, "attribute", "attribute has no parent element", nil)
			if err := c.recoverFrom(e); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.emit(n, b); err != nil {
			return nil, err
		}
	}
	if err := b.EndDocument(); err != nil {
		return nil, err
	}
	return b.Tree()
}

func isAttrRes(n *resNode) bool {
	if n.src != nil {
		return n.src.Kind() == tree.KindAttribute
	}
	return n.kind == tree.KindAttribute
}

func attrOf(n *resNode) tree.Attr {
	if n.src != nil {
		return tree.Attr{
			Name:  n.src.Name(),
			Value: n.src.Value(),
		}
	}
	return tree.Attr{
		Name:  n.name,
		Value: n.value,
	}
}

// emit feeds one result node into the builder. Attribute children of an
// element fold into its attribute list as long as no content has been
// written; a late attribute is a recoverable error and recovery drops
// it.
func (c *Controller) emit(n *resNode, out tree.Receiver) error {
	if n.src != nil {
		return tree.ReplayNode(n.src, out)
	}
	switch n.kind {
	case tree.KindElement:
		var (
			attrs   = slices.Clone(n.attrs)
			kids    []*resNode
			content bool
		)
		for _, k := range n.nodes {
			if !isAttrRes(k) {
				content = true
				kids = append(kids, k)
				continue
			}
			if content {
				e := dynamicError(CodeLateAttr, "attribute", "attribute created after content", nil)
				if err := c.recoverFrom(e); err != nil {
					return err
				}
				continue
			}
			attrs = append(attrs, attrOf(k))
		}
		if err := out.StartElement(n.name, 0, attrs); err != nil {
			return err
		}
		for _, k := range kids {
			if err := c.emit(k, out); err != nil {
				return err
			}
		}
		return out.EndElement()
	case tree.KindText:
		if n.value == "" {
			return nil
		}
		return out.Text(n.value)
	case tree.KindComment:
		return out.Comment(n.value)
	case tree.KindInstruction:
		return out.Instruction(n.target, n.value)
	default:
		return nil
	}
}

func writeResult(w io.Writer, doc tree.Node, out *Output) error {
	if out.Method == "text" {
		_, err := io.WriteString(w, textOf(doc))
		return err
	}
	wr := tree.NewWriter(w)
	if !out.Indent {
		wr.WriterOptions |= tree.OptionCompact
	}
	if out.OmitProlog {
		wr.WriterOptions |= tree.OptionNoProlog
	}
	return wr.Write(doc)
}

func textOf(n tree.Node) string {
	var str strings.Builder
	var walk func(n tree.Node)
	walk = func(n tree.Node) {
		if n.Kind() == tree.KindText {
			str.WriteString(n.Value())
			return
		}
		for c := range n.Children() {
			walk(c)
		}
	}
	walk(n)
	return str.String()
}
