package xslt

import (
	"fmt"
	"slices"
	"time"

	"github.com/midbel/loom/tree"
	"github.com/midbel/loom/xpath"
)

// The controller is the dynamic hook behind document(), key(),
// current(), system-property() and the run clock.

// Document loads an external source document. Each URI is fetched at
// most once per run; later calls see the same tree.
func (c *Controller) Document(uri string) (tree.Node, error) {
	if doc, ok := c.docs[uri]; ok {
		return doc, nil
	}
	rc, err := c.cfg.uris.Resolve(uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	doc, err := c.loadSource(rc)
	if err != nil {
		return nil, err
	}
	c.docs[uri] = doc
	return doc, nil
}

// ClearPool drops every document loaded so far; the next document()
// call fetches again.
func (c *Controller) ClearPool() {
	clear(c.docs)
	c.keys = nil
}

// Key answers a key() lookup. The index for a (key, document) pair is
// built on first use and reused for the rest of the run.
func (c *Controller) Key(name, value string, doc tree.Node) (xpath.Sequence, error) {
	key, err := c.exec.Key(name)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = c.source
	}
	if doc == nil {
		return nil, fmt.Errorf("%s: no document to index", name)
	}
	doc = doc.Root()
	idx, err := c.keyFor(key, doc)
	if err != nil {
		return nil, err
	}
	return idx.values[value], nil
}

func (c *Controller) keyFor(key *Key, doc tree.Node) (*keyIndex, error) {
	ix := slices.IndexFunc(c.keys, func(k *keyIndex) bool {
		return k.key == key && tree.Same(k.doc, doc)
	})
	if ix >= 0 {
		return c.keys[ix], nil
	}
	idx := keyIndex{
		key:    key,
		doc:    doc,
		values: make(map[string]xpath.Sequence),
	}
	ctx := c.rootContext(doc)
	var walk func(n tree.Node) error
	walk = func(n tree.Node) error {
		if err := idx.add(n, ctx); err != nil {
			return err
		}
		for a := range n.Attributes() {
			if err := idx.add(a, ctx); err != nil {
				return err
			}
		}
		for child := range n.Children() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc); err != nil {
		return nil, err
	}
	c.keys = append(c.keys, &idx)
	return &idx, nil
}

func (k *keyIndex) add(n tree.Node, ctx xpath.Context) error {
	ok, _ := k.key.Match.Match(n, ctx)
	if !ok {
		return nil
	}
	seq, err := k.key.Use.eval(ctx.Sub(n, 1, 1))
	if err != nil {
		return err
	}
	values, err := seq.Strings()
	if err != nil {
		return err
	}
	for _, v := range values {
		s := k.values[v]
		s.Append(xpath.NewNodeItem(n))
		k.values[v] = s
	}
	return nil
}

// Current is the node the innermost template or for-each iteration is
// processing, independent of the expression focus.
func (c *Controller) Current() tree.Node {
	if len(c.frames) > 0 {
		return c.frames[len(c.frames)-1].node
	}
	return c.source
}

func (c *Controller) SystemProperty(name string) string {
	switch name {
	case "xsl:version", "version":
		return XslVersion
	case "xsl:vendor", "vendor":
		return XslVendor
	case "xsl:vendor-url", "vendor-url":
		return XslVendorUrl
	case "xsl:product-name", "product-name":
		return XslProduct
	case "xsl:product-version", "product-version":
		return XslProductVersion
	default:
		return ""
	}
}

// Now is the run clock: one instant fixed when the run starts, so every
// current-dateTime() call in a run agrees.
func (c *Controller) Now() time.Time {
	return c.clock
}
