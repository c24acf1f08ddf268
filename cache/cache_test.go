package cache_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/midbel/loom/cache"
	"github.com/midbel/loom/xslt"
)

const style = `<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
<xsl:output omit-xml-declaration="yes"/>
<xsl:template match="/"><out><xsl:value-of select="doc"/></out></xsl:template>
</xsl:stylesheet>`

func quiet() *xslt.Configuration {
	cfg := xslt.NewConfiguration()
	cfg.SetErrorListener(xslt.NewListener(io.Discard))
	return cfg
}

func compileStyle(t *testing.T) *xslt.Executable {
	t.Helper()
	exec, err := xslt.Compile(strings.NewReader(style), quiet())
	if err != nil {
		t.Fatalf("compile: %s", err)
	}
	return exec
}

func TestStoreLoad(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loom.db")
	c, err := cache.Open(db)
	if err != nil {
		t.Fatalf("open cache: %s", err)
	}
	defer c.Close()

	if _, ok := c.Load("missing", quiet()); ok {
		t.Errorf("unexpected hit for missing key")
	}
	exec := compileStyle(t)
	if err := c.Store("sheet", exec); err != nil {
		t.Fatalf("store: %s", err)
	}
	cfg := quiet()
	loaded, ok := c.Load("sheet", cfg)
	if !ok {
		t.Fatalf("stored entry not found")
	}
	var buf bytes.Buffer
	ctrl := xslt.NewController(loaded, cfg)
	if err := ctrl.Transform(strings.NewReader(`<doc>v</doc>`), &buf); err != nil {
		t.Fatalf("transform from cache: %s", err)
	}
	if got := buf.String(); got != `<out>v</out>` {
		t.Errorf("results mismatch! got %s", got)
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	db := filepath.Join(t.TempDir(), "loom.db")
	c, err := cache.Open(db)
	if err != nil {
		t.Fatalf("open cache: %s", err)
	}
	if err := c.Store("sheet", compileStyle(t)); err != nil {
		t.Fatalf("store: %s", err)
	}
	c.Close()

	raw, err := bolt.Open(db, 0o600, nil)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	err = raw.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("stylesheets")).Put([]byte("sheet"), []byte("garbage"))
	})
	raw.Close()
	if err != nil {
		t.Fatalf("corrupt entry: %s", err)
	}

	c, err = cache.Open(db)
	if err != nil {
		t.Fatalf("open cache again: %s", err)
	}
	defer c.Close()
	if _, ok := c.Load("sheet", quiet()); ok {
		t.Errorf("corrupt entry should be a miss")
	}
	if _, ok := c.Load("sheet", quiet()); ok {
		t.Errorf("corrupt entry should stay evicted")
	}
}

func TestKeyTracksContent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sheet.xsl")
	write := func(data string) {
		t.Helper()
		if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
			t.Fatalf("write: %s", err)
		}
	}
	write(style)
	k1, err := cache.Key(file)
	if err != nil {
		t.Fatalf("key: %s", err)
	}
	write(style + "\n")
	k2, err := cache.Key(file)
	if err != nil {
		t.Fatalf("key: %s", err)
	}
	if k1 == k2 {
		t.Errorf("key should change with content")
	}
}
