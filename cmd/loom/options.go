package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/midbel/loom/cache"
	"github.com/midbel/loom/xslt"
)

// CommonOptions are the flags shared by every command that compiles a
// stylesheet: processor properties, tracing and the compiled form
// cache.
type CommonOptions struct {
	Props string
	Trace bool
	Cache string
}

// Configure builds a configuration from the -set list. Properties are
// comma separated name=value pairs, validated by the processor.
func (o CommonOptions) Configure() (*xslt.Configuration, error) {
	cfg := xslt.NewConfiguration()
	for _, pair := range splitPairs(o.Props) {
		name, value, err := cutPair(pair)
		if err != nil {
			return nil, err
		}
		if err := cfg.SetProperty(name, value); err != nil {
			return nil, err
		}
	}
	if o.Trace {
		cfg.SetTracer(xslt.TraceTo(os.Stderr))
	}
	return cfg, nil
}

// Load compiles the stylesheet, going through the cache when one is
// configured. The cache key follows the stylesheet content, so an
// edited file never hits a stale entry.
func (o CommonOptions) Load(sheet string, cfg *xslt.Configuration) (*xslt.Executable, error) {
	if o.Cache == "" {
		return xslt.CompileFile(sheet, cfg)
	}
	db, err := cache.Open(o.Cache)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	key, err := cache.Key(sheet)
	if err != nil {
		return nil, err
	}
	if exec, ok := db.Load(key, cfg); ok {
		return exec, nil
	}
	exec, err := xslt.CompileFile(sheet, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Store(key, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// ParamOptions carry stylesheet parameters, inline or from a yaml file.
type ParamOptions struct {
	Params string
	File   string
}

func (o ParamOptions) Apply(ctrl *xslt.Controller) error {
	if o.File != "" {
		r, err := os.Open(o.File)
		if err != nil {
			return err
		}
		defer r.Close()
		values := make(map[string]any)
		if err := yaml.NewDecoder(r).Decode(&values); err != nil {
			return fmt.Errorf("%s: invalid parameter file: %w", o.File, err)
		}
		for name, value := range values {
			if err := ctrl.SetParameter(name, normalize(value)); err != nil {
				return err
			}
		}
	}
	for _, pair := range splitPairs(o.Params) {
		name, value, err := cutPair(pair)
		if err != nil {
			return err
		}
		if err := ctrl.SetParameter(name, value); err != nil {
			return err
		}
	}
	return nil
}

// normalize maps the yaml scalar types onto the value space expressions
// operate on.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case float64, bool, string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func splitPairs(str string) []string {
	if str == "" {
		return nil
	}
	return strings.Split(str, ",")
}

func cutPair(pair string) (string, string, error) {
	name, value, ok := strings.Cut(pair, "=")
	if !ok {
		return "", "", fmt.Errorf("%s: expected name=value", pair)
	}
	return strings.TrimSpace(name), value, nil
}
