// Package manifest handles wax.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is the manifest file looked up in a project directory.
const DefaultFileName = "wax.toml"

// Manifest represents a wax.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Run     Run     `toml:"run"`

	// Dir is the directory containing the wax.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Run configures execution of the compiled program.
type Run struct {
	// Entry is the program file relative to the manifest directory.
	Entry string `toml:"entry"`

	// StepLimit bounds run-to-end stepping. Zero means the default.
	StepLimit int `toml:"step_limit"`

	// Trace enables per-instruction debug logging.
	Trace bool `toml:"trace"`
}

// Load parses a wax.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, DefaultFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir = dir
	m.applyDefaults()
	return &m, nil
}

// Exists reports whether dir contains a wax.toml.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, DefaultFileName))
	return err == nil
}

// Default returns the configuration used when no manifest is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Project.Name == "" {
		m.Project.Name = "wax"
	}
	if m.Run.StepLimit <= 0 {
		m.Run.StepLimit = 100_000
	}
}

// EntryPath returns the absolute path of the program entry file, or the
// empty string when the manifest names none.
func (m *Manifest) EntryPath() string {
	if m.Run.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Run.Entry)
}
