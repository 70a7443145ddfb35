// Package language holds the read-only table of supported languages.
package language

import (
	"sort"
	"strings"

	appErr "liverun/pkg/errors"
)

// Spec defines how to compile and run one language inside a workspace.
// Commands are shell command lines executed with the workspace as working directory.
type Spec struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	SourceFile string `yaml:"sourceFile" json:"sourceFile"`
	CompileCmd string `yaml:"compileCmd" json:"compileCmd,omitempty"`
	RunCmd     string `yaml:"runCmd" json:"runCmd"`
}

var noopCommands = map[string]struct{}{
	"":     {},
	"true": {},
	":":    {},
}

// NeedsCompile reports whether a compile process must be spawned.
func (s Spec) NeedsCompile() bool {
	_, noop := noopCommands[strings.TrimSpace(s.CompileCmd)]
	return !noop
}

// Registry is an immutable language table, safe for concurrent reads.
type Registry struct {
	languages map[string]Spec
	ordered   []Spec
}

// NewRegistry validates the specs and builds a registry. Later duplicates win.
func NewRegistry(specs []Spec) (*Registry, error) {
	langMap := make(map[string]Spec, len(specs))
	for _, spec := range specs {
		if err := validate(spec); err != nil {
			return nil, err
		}
		langMap[spec.ID] = spec
	}
	ordered := make([]Spec, 0, len(langMap))
	for _, spec := range langMap {
		ordered = append(ordered, spec)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return &Registry{languages: langMap, ordered: ordered}, nil
}

// Lookup returns the spec for id or a LanguageNotSupported error.
func (r *Registry) Lookup(id string) (Spec, error) {
	spec, ok := r.languages[id]
	if !ok {
		return Spec{}, appErr.UnsupportedLanguage(id)
	}
	return spec, nil
}

// List returns all specs sorted by id. The slice is a copy.
func (r *Registry) List() []Spec {
	out := make([]Spec, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func validate(spec Spec) error {
	if strings.TrimSpace(spec.ID) == "" {
		return appErr.ValidationError("language.id", "required")
	}
	if strings.TrimSpace(spec.RunCmd) == "" {
		return appErr.ValidationError("language.runCmd", "required").WithDetail("language", spec.ID)
	}
	name := spec.SourceFile
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return appErr.ValidationError("language.sourceFile", "must be a bare file name").WithDetail("language", spec.ID)
	}
	return nil
}
