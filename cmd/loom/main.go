package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"

	"github.com/midbel/loom/xslt"
)

var (
	summary = "loom compiles and applies xml transformation stylesheets"
	help    = ""
)

func main() {
	var (
		set  = cli.NewFlagSet("loom")
		root = prepare()
	)
	root.SetSummary(summary)
	root.SetHelp(help)
	if err := set.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			root.Help()
			os.Exit(2)
		}
	}
	err := root.Execute(set.Args())
	if err == nil {
		return
	}
	if s, ok := err.(cli.SuggestionError); ok && len(s.Others) > 0 {
		fmt.Fprintln(os.Stderr, "similar command(s)")
		for _, n := range s.Others {
			fmt.Fprintln(os.Stderr, "-", n)
		}
	}
	var reported *xslt.Error
	if !errors.As(err, &reported) || !reported.Reported() {
		fmt.Fprintln(os.Stderr, err)
	}
	// a stylesheet-requested termination exits distinctly from
	// processing errors so scripts can tell them apart
	if errors.Is(err, xslt.ErrTerminate) {
		os.Exit(1)
	}
	os.Exit(2)
}

func prepare() *cli.CommandTrie {
	root := cli.New()
	root.Register([]string{"compile"}, &compileCmd)
	root.Register([]string{"transform"}, &transformCmd)
	root.Register([]string{"apply"}, &transformCmd)
	root.Register([]string{"batch"}, &batchCmd)
	return root
}
