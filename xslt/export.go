package xslt

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// Export writes the compiled form of the stylesheet. Expressions and
// patterns travel as their source text plus the prefix bindings they
// were compiled under; Import compiles them again, so a reloaded
// stylesheet behaves byte for byte like the original.
func (e *Executable) Export(w io.Writer) error {
	return gob.NewEncoder(w).Encode(e)
}

func (e *Executable) ExportFile(file string) error {
	w, err := os.Create(file)
	if err != nil {
		return err
	}
	defer w.Close()
	return e.Export(w)
}

// Import reads a compiled stylesheet back. The configuration's name
// pool is replaced by the exported snapshot so the interned codes inside
// the executable stay valid.
func Import(r io.Reader, cfg *Configuration) (*Executable, error) {
	var e Executable
	if err := gob.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCompile, err)
	}
	if err := cfg.pool.Restore(e.Names); err != nil {
		return nil, err
	}
	if err := e.relink(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCompile, err)
	}
	if err := e.link(); err != nil {
		return nil, err
	}
	return &e, nil
}

func ImportFile(file string, cfg *Configuration) (*Executable, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Import(r, cfg)
}

// relink recompiles every expression, pattern and value template from
// its stored source.
func (e *Executable) relink() error {
	for _, t := range e.Templates {
		if t.Match != nil {
			if err := t.Match.relink(); err != nil {
				return err
			}
		}
		for i := range t.Params {
			if err := t.Params[i].relink(); err != nil {
				return err
			}
		}
		if err := relinkInstructions(t.Body); err != nil {
			return err
		}
	}
	for i := range e.Globals {
		if err := e.Globals[i].relink(); err != nil {
			return err
		}
	}
	for _, k := range e.Keys {
		if err := k.Match.relink(); err != nil {
			return err
		}
		if err := k.Use.relink(); err != nil {
			return err
		}
	}
	for _, s := range e.AttrSets {
		if err := relinkInstructions(s.Attrs); err != nil {
			return err
		}
	}
	return nil
}
