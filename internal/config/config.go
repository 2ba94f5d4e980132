// Package config loads the optional project and global configuration files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the project configuration file name, looked up in the
// project root.
const ProjectFile = ".thicket.yaml"

// Project mirrors .thicket.yaml. Relative paths are resolved against the
// directory holding the file.
type Project struct {
	SourceRoots       []string `yaml:"source_roots"`
	IncludeRoots      []string `yaml:"include_roots,omitempty"`
	SourceExtensions  []string `yaml:"source_extensions,omitempty"`
	IncludeExtensions []string `yaml:"include_extensions,omitempty"`
	SearchPaths       []string `yaml:"search_paths,omitempty"`
	Database          string   `yaml:"database,omitempty"`
	ScriptsDir        string   `yaml:"scripts_dir,omitempty"`
	Workers           int      `yaml:"workers,omitempty"`
}

// Global mirrors the per-user global configuration.
type Global struct {
	SearchPaths []string `yaml:"search_paths"`
}

// LoadProject reads ProjectFile from dir. A missing file yields an empty
// Project and no error.
func LoadProject(dir string) (Project, error) {
	var p Project
	path := filepath.Join(dir, ProjectFile)
	found, err := load(path, &p)
	if err != nil || !found {
		return Project{}, err
	}
	p.SourceRoots = absAll(dir, p.SourceRoots)
	p.IncludeRoots = absAll(dir, p.IncludeRoots)
	p.SearchPaths = absAll(dir, p.SearchPaths)
	if p.Database != "" {
		p.Database = abs(dir, p.Database)
	}
	if p.ScriptsDir != "" {
		p.ScriptsDir = abs(dir, p.ScriptsDir)
	}
	return p, nil
}

// GlobalPath returns the location of the global file:
// $XDG_CONFIG_HOME/thicket/global.yaml, falling back to the OS user config
// directory.
func GlobalPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("config: user config dir: %w", err)
		}
	}
	return filepath.Join(dir, "thicket", "global.yaml"), nil
}

// LoadGlobal reads the global file at path. A missing file yields an empty
// Global and no error.
func LoadGlobal(path string) (Global, error) {
	var g Global
	if _, err := load(path, &g); err != nil {
		return Global{}, err
	}
	return g, nil
}

// SaveGlobal writes g to path, creating parent directories.
func SaveGlobal(path string, g Global) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("config: marshal global: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func load(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return true, nil
}

func abs(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func absAll(base string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = abs(base, p)
	}
	return out
}
