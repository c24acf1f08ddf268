package main

import (
	"fmt"

	"github.com/midbel/cli"

	"github.com/midbel/loom/xslt"
)

var compileCmd = cli.Command{
	Name:    "compile",
	Summary: "compile a stylesheet and save its compiled form",
	Handler: &CompileCmd{},
}

type CompileCmd struct {
	Output string
	CommonOptions
}

func (c *CompileCmd) Run(args []string) error {
	set := cli.NewFlagSet("compile")
	set.StringVar(&c.Output, "o", "", "compiled form destination")
	set.StringVar(&c.Props, "set", "", "processor properties (name=value,...)")
	set.StringVar(&c.Cache, "cache", "", "compiled stylesheet cache")

	if err := set.Parse(args); err != nil {
		return err
	}
	sheet := set.Arg(0)
	if sheet == "" {
		return fmt.Errorf("%w: no stylesheet given", xslt.ErrNoEntryPoint)
	}
	cfg, err := c.Configure()
	if err != nil {
		return err
	}
	exec, err := c.Load(sheet, cfg)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = sheet + "c"
	}
	return exec.ExportFile(out)
}
