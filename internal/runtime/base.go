package runtime

import (
	"fmt"
	"sort"
	"strings"
)

// Runtime describes one language the runner accepts.
type Runtime interface {
	// Name returns the wire identifier (e.g., "python", "cpp").
	Name() string

	// DisplayName returns the human-readable language name used in prompts.
	DisplayName() string

	// FileExtension returns the conventional source file extension (e.g., ".py").
	FileExtension() string

	// Examples returns starter programs for the editor.
	Examples() Examples
}

// Examples holds the canned programs shown by the editor for a language.
type Examples struct {
	Hello   string `json:"hello"`
	Stdin   string `json:"stdin"`
	Error   string `json:"error"`
	Timeout string `json:"timeout"`
}

// Registry maps language names to their Runtime implementations.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with all supported languages.
func NewRegistry() *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(&CRuntime{})
	r.Register(&CPPRuntime{})
	r.Register(&CSharpRuntime{})
	r.Register(&JavaRuntime{})
	r.Register(&PythonRuntime{})
	r.Register(&JavaScriptRuntime{})
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %q (supported: %s)", language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// Supports reports whether language is registered.
func (r *Registry) Supports(language string) bool {
	_, ok := r.runtimes[language]
	return ok
}

// Languages returns all registered language names in sorted order.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}

// ByExtension finds the runtime whose file extension matches ext.
func (r *Registry) ByExtension(ext string) (Runtime, bool) {
	for _, rt := range r.runtimes {
		if rt.FileExtension() == ext {
			return rt, true
		}
	}
	return nil, false
}
