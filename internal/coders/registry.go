package coders

import (
	"fmt"
	"sort"
	"strings"

	"metacoder/internal/config"
)

// Options carries everything needed to construct a coder.
type Options struct {
	Workdir       string
	Config        *config.CoderConfig
	Params        map[string]string
	Env           map[string]string
	Prompt        string
	ConfigObjects []ConfigObject
}

func (o Options) base() Base {
	return Base{
		Workdir:       o.Workdir,
		Config:        o.Config,
		Params:        o.Params,
		Env:           o.Env,
		Prompt:        o.Prompt,
		ConfigObjects: o.ConfigObjects,
	}
}

type factory func(Options) Coder

// registry is the closed set of supported coders.
var registry = map[string]factory{
	"claude":   func(o Options) Coder { return &Claude{Base: o.base()} },
	"codex":    func(o Options) Coder { return &Codex{Base: o.base()} },
	"gemini":   func(o Options) Coder { return &Gemini{Base: o.base()} },
	"qwen":     func(o Options) Coder { return &Qwen{Base: o.base()} },
	"goose":    func(o Options) Coder { return &Goose{Base: o.base()} },
	"opencode": func(o Options) Coder { return &Opencode{Base: o.base()} },
	"dummy":    func(o Options) Coder { return &Dummy{Base: o.base()} },
}

// New constructs the named coder. Supplying enabled tool extensions to a
// coder that rejects them fails here, at construction, never at run time.
func New(name string, opts Options) (Coder, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown coder: %s. Available: %s", name, strings.Join(Names(), ", "))
	}
	coder := build(opts)
	if !coder.SupportsExtensions() && opts.Config.HasEnabledExtensions() {
		return nil, extensionsRejected(name)
	}
	if opts.Workdir == "" {
		return nil, fmt.Errorf("workdir is required for coder %s", name)
	}
	return coder, nil
}

// Names lists the registered coder names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available lists the registered coders whose underlying assistant is
// present on this host.
func Available() []string {
	var names []string
	for _, name := range Names() {
		coder := registry[name](Options{Workdir: "."})
		if coder.IsAvailable() {
			names = append(names, name)
		}
	}
	return names
}
