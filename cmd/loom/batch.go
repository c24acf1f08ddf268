package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/midbel/cli"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/midbel/loom/xslt"
)

var batchCmd = cli.Command{
	Name:    "batch",
	Summary: "apply a stylesheet to a set of xml documents",
	Handler: &BatchCmd{},
}

type BatchCmd struct {
	Jobs  int
	Dir   string
	Plain bool
	CommonOptions
	ParamOptions
}

func (c *BatchCmd) Run(args []string) error {
	set := flag.NewFlagSet("batch", flag.ContinueOnError)
	set.IntVar(&c.Jobs, "j", 4, "number of parallel transformations")
	set.StringVar(&c.Dir, "d", "", "output directory")
	set.BoolVar(&c.Plain, "plain", false, "line based progress output")
	set.StringVar(&c.Props, "set", "", "processor properties (name=value,...)")
	set.StringVar(&c.Cache, "cache", "", "compiled stylesheet cache")
	set.StringVar(&c.Params, "p", "", "stylesheet parameters (name=value,...)")
	set.StringVar(&c.File, "params", "", "stylesheet parameters from a yaml file")

	if err := set.Parse(args); err != nil {
		return err
	}
	rest := set.Args()
	if len(rest) < 2 {
		return fmt.Errorf("%w: a stylesheet and at least one document are expected", xslt.ErrNoEntryPoint)
	}
	var (
		sheet = rest[0]
		files = rest[1:]
	)
	cfg, err := c.Configure()
	if err != nil {
		return err
	}
	cfg.SetErrorListener(xslt.NewListener(os.Stderr))
	exec, err := c.Load(sheet, cfg)
	if err != nil {
		return err
	}

	results := make(chan result)
	go func() {
		defer close(results)
		var grp errgroup.Group
		grp.SetLimit(max(c.Jobs, 1))
		for _, file := range files {
			grp.Go(func() error {
				results <- result{
					file: file,
					err:  c.transformOne(exec, cfg, file),
				}
				return nil
			})
		}
		grp.Wait()
	}()

	var failed int
	if c.Plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		failed = reportPlain(os.Stdout, len(files), results)
	} else {
		failed, err = runProgress(len(files), results)
		if err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(files))
	}
	return nil
}

// transformOne runs one document through its own controller; the
// executable and the configuration are shared across workers.
func (c *BatchCmd) transformOne(exec *xslt.Executable, cfg *xslt.Configuration, file string) error {
	ctrl := xslt.NewController(exec, cfg)
	if err := c.Apply(ctrl); err != nil {
		return err
	}
	out := c.outputName(file)
	ctrl.SetOutputURI(out)
	w, err := os.Create(out)
	if err != nil {
		return err
	}
	defer w.Close()
	return ctrl.TransformFile(file, w)
}

func (c *BatchCmd) outputName(file string) string {
	dir := c.Dir
	if dir == "" {
		dir = filepath.Dir(file)
	}
	var (
		base = filepath.Base(file)
		ext  = filepath.Ext(base)
	)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".out"+ext)
}
