package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/midbel/cli"

	"github.com/midbel/loom/xslt"
)

var transformCmd = cli.Command{
	Name:    "transform",
	Alias:   []string{"apply"},
	Summary: "apply a stylesheet to an xml document",
	Handler: &TransformCmd{},
}

type TransformCmd struct {
	Output   string
	Quiet    bool
	Entry    string
	Compiled bool
	CommonOptions
	ParamOptions
}

func (c *TransformCmd) Run(args []string) error {
	set := cli.NewFlagSet("transform")
	set.StringVar(&c.Output, "o", "", "output file")
	set.BoolVar(&c.Quiet, "q", false, "discard the result")
	set.StringVar(&c.Entry, "entry", "", "start at the named template")
	set.BoolVar(&c.Compiled, "compiled", false, "the stylesheet is a compiled form")
	set.BoolVar(&c.Trace, "trace", false, "trace template application")
	set.StringVar(&c.Props, "set", "", "processor properties (name=value,...)")
	set.StringVar(&c.Cache, "cache", "", "compiled stylesheet cache")
	set.StringVar(&c.Params, "p", "", "stylesheet parameters (name=value,...)")
	set.StringVar(&c.File, "params", "", "stylesheet parameters from a yaml file")

	if err := set.Parse(args); err != nil {
		return err
	}
	var (
		sheet = set.Arg(0)
		input = set.Arg(1)
	)
	if sheet == "" {
		return fmt.Errorf("%w: no stylesheet given", xslt.ErrNoEntryPoint)
	}
	if input == "" && c.Entry == "" {
		return fmt.Errorf("%w: no input document and no named template", xslt.ErrNoEntryPoint)
	}
	cfg, err := c.Configure()
	if err != nil {
		return err
	}
	exec, err := c.load(sheet, cfg)
	if err != nil {
		return err
	}
	w, closeOutput, err := c.output()
	if err != nil {
		return err
	}
	defer closeOutput()

	ctrl := xslt.NewController(exec, cfg)
	if c.Output != "" && !c.Quiet {
		ctrl.SetOutputURI(c.Output)
	}
	if err := c.Apply(ctrl); err != nil {
		return err
	}
	if input == "" {
		return ctrl.Invoke(c.Entry, w)
	}
	return ctrl.TransformFile(input, w)
}

func (c *TransformCmd) load(sheet string, cfg *xslt.Configuration) (*xslt.Executable, error) {
	if c.Compiled || strings.HasSuffix(sheet, ".xslc") {
		return xslt.ImportFile(sheet, cfg)
	}
	return c.Load(sheet, cfg)
}

func (c *TransformCmd) output() (io.Writer, func() error, error) {
	if c.Quiet {
		return io.Discard, func() error { return nil }, nil
	}
	if c.Output == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(c.Output)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
