package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProjectConfigFile is the name of the project descriptor at a project root.
const ProjectConfigFile = "hsproject.json"

// ErrProjectNotFound is returned when no hsproject.json exists in the
// directory or any of its parents.
var ErrProjectNotFound = errors.New("config: no hsproject.json found")

// ProjectConfig mirrors hsproject.json.
type ProjectConfig struct {
	Name            string `json:"name"`
	SrcDir          string `json:"srcDir"`
	PlatformVersion string `json:"platformVersion,omitempty"`
}

// Project is a loaded project descriptor together with its location.
type Project struct {
	Config ProjectConfig
	Dir    string // absolute directory containing hsproject.json
}

// SourceDir returns the absolute path of the project's source root.
func (p *Project) SourceDir() string {
	return filepath.Join(p.Dir, p.Config.SrcDir)
}

// FindProject walks up from start until it finds hsproject.json and loads it.
func FindProject(start string) (*Project, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %s: %w", start, err)
	}

	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return LoadProject(candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w (searched from %s)", ErrProjectNotFound, start)
		}

		dir = parent
	}
}

// LoadProject reads and decodes the hsproject.json at path. It does not
// validate; call ValidateProject for that.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var pc ProjectConfig
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: resolving %s: %w", path, err)
	}

	return &Project{Config: pc, Dir: abs}, nil
}

// ValidateProject checks the descriptor fields and that srcDir is an
// existing directory inside the project.
func ValidateProject(p *Project) error {
	var errs []error

	if strings.TrimSpace(p.Config.Name) == "" {
		errs = append(errs, errors.New("name: must not be empty"))
	}

	if p.Config.SrcDir == "" {
		errs = append(errs, errors.New("srcDir: must not be empty"))

		return errors.Join(errs...)
	}

	src := p.SourceDir()

	rel, err := filepath.Rel(p.Dir, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		errs = append(errs, fmt.Errorf("srcDir: %q must be inside the project directory", p.Config.SrcDir))

		return errors.Join(errs...)
	}

	info, err := os.Stat(src)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("srcDir: %w", err))
	case !info.IsDir():
		errs = append(errs, fmt.Errorf("srcDir: %q is not a directory", p.Config.SrcDir))
	}

	return errors.Join(errs...)
}
