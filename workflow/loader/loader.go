// Package loader resolves and parses workflow definition files, following
// the original loader's name-based resolution: a project-local
// ".aromcp/workflows/<name>.yaml" takes precedence over a
// "~/.aromcp/workflows/<name>.yaml" global fallback.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flowkernel/engine/workflow/model"
)

// NotFoundError reports that a named workflow could not be resolved in
// either the project or global workflow directory.
type NotFoundError struct {
	Name          string
	ProjectPath   string
	GlobalPath    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workflow %q not found. searched:\n  - %s\n  - %s", e.Name, e.ProjectPath, e.GlobalPath)
}

// ValidationError reports a workflow file that failed to parse or validate.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow file %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Source identifies which search location a workflow was resolved from.
type Source string

const (
	SourceProject Source = "project"
	SourceGlobal  Source = "global"
)

// Info is the metadata List returns for one discoverable workflow file.
type Info struct {
	Name   string
	Path   string
	Source Source
}

// Loader resolves workflow names to files under projectRoot/.aromcp/workflows
// and $HOME/.aromcp/workflows.
type Loader struct {
	ProjectRoot string
	UserHome    string
}

// New creates a Loader rooted at projectRoot (defaulting to the current
// working directory) and the current user's home directory.
func New(projectRoot string) (*Loader, error) {
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		projectRoot = wd
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	return &Loader{ProjectRoot: projectRoot, UserHome: home}, nil
}

// Load resolves and parses a workflow by name, trying the project directory
// before the global one.
func (l *Loader) Load(name string) (*model.WorkflowDefinition, error) {
	projectPath := l.pathIn(l.ProjectRoot, name)
	if fileExists(projectPath) {
		return l.loadFrom(projectPath)
	}

	globalPath := l.pathIn(l.UserHome, name)
	if fileExists(globalPath) {
		return l.loadFrom(globalPath)
	}

	return nil, &NotFoundError{Name: name, ProjectPath: projectPath, GlobalPath: globalPath}
}

func (l *Loader) pathIn(root, name string) string {
	return filepath.Join(root, ".aromcp", "workflows", name+".yaml")
}

func (l *Loader) loadFrom(path string) (*model.WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	return Parse(content)
}

// Parse parses raw YAML content into a WorkflowDefinition without going
// through name-based file resolution — used for inline/test workflows and
// by Load once a file is found.
func Parse(content []byte) (*model.WorkflowDefinition, error) {
	var def model.WorkflowDefinition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, &ValidationError{Path: "<content>", Err: err}
	}

	if err := validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func validate(def *model.WorkflowDefinition) error {
	if def.Name == "" {
		return &ValidationError{Path: "<content>", Err: fmt.Errorf("workflow must declare a name")}
	}
	if len(def.Steps) == 0 {
		return &ValidationError{Path: def.Name, Err: fmt.Errorf("workflow %q declares no steps", def.Name)}
	}
	for i, step := range def.Steps {
		if step.Type == "" {
			return &ValidationError{Path: def.Name, Err: fmt.Errorf("step %d missing required type", i)}
		}
	}
	return nil
}

// List returns metadata for every workflow discoverable under the project
// directory, plus global workflows not shadowed by a same-named project one
// when includeGlobal is true. Invalid files are skipped rather than failing
// the whole listing.
func (l *Loader) List(includeGlobal bool) ([]Info, error) {
	var out []Info
	seen := make(map[string]bool)

	projectDir := filepath.Join(l.ProjectRoot, ".aromcp", "workflows")
	for _, info := range scanDir(projectDir, SourceProject) {
		out = append(out, info)
		seen[info.Name] = true
	}

	if includeGlobal {
		globalDir := filepath.Join(l.UserHome, ".aromcp", "workflows")
		for _, info := range scanDir(globalDir, SourceGlobal) {
			if seen[info.Name] {
				continue
			}
			out = append(out, info)
		}
	}

	return out, nil
}

func scanDir(dir string, source Source) []Info {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []Info
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		def, err := Parse(content)
		if err != nil {
			continue
		}
		out = append(out, Info{Name: def.Name, Path: path, Source: source})
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
