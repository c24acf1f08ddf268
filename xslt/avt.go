package xslt

import (
	"fmt"
	"strings"

	"github.com/midbel/loom/xpath"
)

// AVT is a compiled attribute value template: literal text interleaved
// with embedded expressions. Doubled braces escape literal braces.
type AVT struct {
	Parts []Part
}

type Part struct {
	Text  string
	Query *Expression
}

func compileAVT(value string, ns map[string]string) (*AVT, error) {
	var (
		tpl AVT
		str strings.Builder
	)
	flush := func() {
		if str.Len() == 0 {
			return
		}
		tpl.Parts = append(tpl.Parts, Part{Text: str.String()})
		str.Reset()
	}
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '{':
			if i+1 < len(value) && value[i+1] == '{' {
				str.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(value[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%q: unclosed brace in value template", value)
			}
			flush()
			expr, err := compileExpression(value[i+1:i+1+end], ns)
			if err != nil {
				return nil, err
			}
			tpl.Parts = append(tpl.Parts, Part{Query: expr})
			i += end + 1
		case '}':
			if i+1 < len(value) && value[i+1] == '}' {
				str.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%q: unmatched brace in value template", value)
		default:
			str.WriteByte(value[i])
		}
	}
	flush()
	return &tpl, nil
}

func (a *AVT) eval(ctx xpath.Context) (string, error) {
	var str strings.Builder
	for _, p := range a.Parts {
		if p.Query == nil {
			str.WriteString(p.Text)
			continue
		}
		seq, err := p.Query.eval(ctx)
		if err != nil {
			return "", err
		}
		str.WriteString(xpath.StringValue(seq))
	}
	return str.String(), nil
}

func (a *AVT) relink() error {
	for i := range a.Parts {
		if a.Parts[i].Query == nil {
			continue
		}
		if err := a.Parts[i].Query.relink(); err != nil {
			return err
		}
	}
	return nil
}

func (a *AVT) references() []string {
	var list []string
	for i := range a.Parts {
		list = append(list, a.Parts[i].Query.references()...)
	}
	return list
}
