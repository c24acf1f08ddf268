package tree

import (
	"bufio"
	"io"
	"strings"
)

type WriterOptions uint8

const (
	OptionCompact WriterOptions = 1 << iota
	OptionNoProlog
)

const prolog = `<?xml version="1.0" encoding="UTF-8"?>`

// Writer emits a built tree back as XML text. It is the baseline
// emitter; format-specific serializers live outside this package.
type Writer struct {
	WriterOptions
	Indent string

	inner *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		Indent: "  ",
		inner:  bufio.NewWriter(w),
	}
}

func (w *Writer) Write(n Node) error {
	if w.WriterOptions&OptionNoProlog == 0 && n.Kind() == KindDocument {
		w.inner.WriteString(prolog)
		w.newline()
	}
	if n.Kind() == KindDocument {
		for c := range n.Children() {
			if err := w.writeNode(c, 0); err != nil {
				return err
			}
		}
	} else if err := w.writeNode(n, 0); err != nil {
		return err
	}
	w.newline()
	return w.inner.Flush()
}

func (w *Writer) writeNode(n Node, depth int) error {
	switch n.Kind() {
	case KindElement:
		return w.writeElement(n, depth)
	case KindText:
		w.inner.WriteString(escapeText(n.Value()))
	case KindComment:
		w.inner.WriteString("<!--")
		w.inner.WriteString(n.Value())
		w.inner.WriteString("-->")
	case KindInstruction:
		w.inner.WriteString("<?")
		w.inner.WriteString(LocalName(n))
		if v := n.Value(); v != "" {
			w.inner.WriteString(" ")
			w.inner.WriteString(v)
		}
		w.inner.WriteString("?>")
	}
	return nil
}

func (w *Writer) writeElement(n Node, depth int) error {
	w.indent(depth)
	w.inner.WriteString("<")
	w.inner.WriteString(DisplayName(n))
	for a := range n.Attributes() {
		w.inner.WriteString(" ")
		w.inner.WriteString(DisplayName(a))
		w.inner.WriteString(`="`)
		w.inner.WriteString(escapeAttr(a.Value()))
		w.inner.WriteString(`"`)
	}
	var (
		children bool
		textOnly = true
	)
	for c := range n.Children() {
		children = true
		if c.Kind() != KindText {
			textOnly = false
		}
	}
	if !children {
		w.inner.WriteString("/>")
		return nil
	}
	w.inner.WriteString(">")
	for c := range n.Children() {
		if !textOnly && c.Kind() == KindElement {
			w.newline()
		}
		if err := w.writeNode(c, depth+1); err != nil {
			return err
		}
	}
	if !textOnly {
		w.newline()
		w.indent(depth)
	}
	w.inner.WriteString("</")
	w.inner.WriteString(DisplayName(n))
	w.inner.WriteString(">")
	return nil
}

func (w *Writer) indent(depth int) {
	if w.WriterOptions&OptionCompact != 0 {
		return
	}
	for i := 0; i < depth; i++ {
		w.inner.WriteString(w.Indent)
	}
}

func (w *Writer) newline() {
	if w.WriterOptions&OptionCompact != 0 {
		return
	}
	w.inner.WriteString("\n")
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")

func escapeText(str string) string {
	return escaper.Replace(str)
}

func escapeAttr(str string) string {
	return attrEscaper.Replace(str)
}
