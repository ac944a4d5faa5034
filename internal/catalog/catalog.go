// Package catalog resolves the module and "module:function" paths accepted by
// the busrpc command into handlers.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	rpc "github.com/RidgeA/pubsub-rpc"
	"github.com/RidgeA/pubsub-rpc/internal/functions/arith"
	"github.com/RidgeA/pubsub-rpc/internal/functions/text"
)

var (
	ErrUnknownModule   = errors.New("unknown module")
	ErrUnknownFunction = errors.New("unknown function")
)

type (
	// Entry is one servable function.
	Entry struct {
		Module   string
		Function string
		Handler  rpc.Handler
	}

	Catalog struct {
		modules map[string]map[string]rpc.Handler
	}
)

// New builds the catalog of built-in modules. Output of the text printer goes
// to out.
func New(out io.Writer) *Catalog {
	printer := text.NewPrinter(out)
	return &Catalog{
		modules: map[string]map[string]rpc.Handler{
			"arith": {
				"Multiply": rpc.NewTypedHandler(arith.Multiply),
				"Add":      rpc.NewTypedHandler(arith.Add),
				"Divide":   rpc.NewTypedHandler(arith.Divide),
			},
			"text": {
				"Upper": rpc.NewTypedHandler(text.Upper),
				"Lower": rpc.NewTypedHandler(text.Lower),
				"Write": rpc.NewTypedHandler(printer.Write),
			},
		},
	}
}

func (e Entry) Subject() string {
	return rpc.DeriveSubject(e.Handler, "")
}

func (e Entry) Path() string {
	return e.Module + ":" + e.Function
}

// Module returns every function of the named module, sorted by name.
func (c *Catalog) Module(name string) ([]Entry, error) {
	fns, ok := c.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	entries := make([]Entry, 0, len(fns))
	for fn, h := range fns {
		entries = append(entries, Entry{Module: name, Function: fn, Handler: h})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Function < entries[j].Function
	})
	return entries, nil
}

// Function resolves a "module:function" path.
func (c *Catalog) Function(path string) (Entry, error) {
	module, fn, ok := strings.Cut(path, ":")
	if !ok || module == "" || fn == "" {
		return Entry{}, fmt.Errorf("%w: %q is not module:function", ErrUnknownFunction, path)
	}
	fns, ok := c.modules[module]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	h, ok := fns[fn]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownFunction, path)
	}
	return Entry{Module: module, Function: fn, Handler: h}, nil
}

// Resolve expands modules and paths into entries, dropping repeats.
func (c *Catalog) Resolve(modules, paths []string) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]struct{})
	add := func(e Entry) {
		if _, ok := seen[e.Path()]; ok {
			return
		}
		seen[e.Path()] = struct{}{}
		entries = append(entries, e)
	}

	for _, m := range modules {
		es, err := c.Module(m)
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			add(e)
		}
	}
	for _, p := range paths {
		e, err := c.Function(p)
		if err != nil {
			return nil, err
		}
		add(e)
	}
	return entries, nil
}

// All returns every entry, sorted by module then function.
func (c *Catalog) All() []Entry {
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		es, _ := c.Module(name)
		entries = append(entries, es...)
	}
	return entries
}
