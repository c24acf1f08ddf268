package xslt

import (
	"strings"
	"testing"

	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xpath"
)

func TestCompileAVT(t *testing.T) {
	tests := []struct {
		Value string
		Want  string
	}{
		{
			Value: "plain text",
			Want:  "plain text",
		},
		{
			Value: "#{@id}",
			Want:  "#b",
		},
		{
			Value: "{@id}-{name(.)}",
			Want:  "b-item",
		},
		{
			Value: "literal {{braces}} kept",
			Want:  "literal {braces} kept",
		},
		{
			Value: "{concat('a', @id)}",
			Want:  "ab",
		},
	}
	node := itemNode(t)
	for _, tc := range tests {
		t.Run(tc.Value, func(t *testing.T) {
			avt, err := compileAVT(tc.Value, nil)
			if err != nil {
				t.Fatalf("compile value template: %s", err)
			}
			got, err := avt.eval(xpath.DefaultContext(node))
			if err != nil {
				t.Fatalf("eval value template: %s", err)
			}
			if got != tc.Want {
				t.Errorf("results mismatch! want %s, got %s", tc.Want, got)
			}
		})
	}
}

func TestCompileAVTErrors(t *testing.T) {
	tests := []string{
		"{unclosed",
		"unmatched}",
		"{bad[}",
	}
	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			if _, err := compileAVT(value, nil); err == nil {
				t.Errorf("%s: compilation should fail", value)
			}
		})
	}
}

func itemNode(t *testing.T) tree.Node {
	t.Helper()
	cfg := NewConfiguration()
	doc, err := cfg.LoadDocument(strings.NewReader(`<items><item id="b">one</item></items>`))
	if err != nil {
		t.Fatalf("load document: %s", err)
	}
	for root := range doc.Children() {
		for item := range root.Children() {
			if item.Kind() == tree.KindElement {
				return item
			}
		}
	}
	t.Fatalf("item element not found")
	return nil
}
