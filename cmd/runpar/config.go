package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// envConfigDir overrides the config directory, derived from appName.
var envConfigDir = strings.ToUpper(appName) + "_CONFIG_DIR"

// startupError marks a failure to read the environment (input files,
// defaults file) rather than a mistake on the command line. main maps
// it to exit code 1 instead of the usage status 2.
type startupError struct{ err error }

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

// defaultsFile holds the optional per-user defaults. Every field maps
// to a flag; flags set on the command line win.
type defaultsFile struct {
	Jobs            int64   `yaml:"jobs,omitempty"`
	ChannelCapacity int     `yaml:"channel-capacity,omitempty"`
	ShellPath       string  `yaml:"shell-path,omitempty"`
	ProgressStyle   string  `yaml:"progress-style,omitempty"`
	TimeoutSeconds  float64 `yaml:"timeout-seconds,omitempty"`
}

// resolveConfigDir returns the base config directory.
// Priority: $RUNPAR_CONFIG_DIR > $XDG_CONFIG_HOME/runpar > ~/.config/runpar
func resolveConfigDir() (string, error) {
	if v := os.Getenv(envConfigDir); v != "" {
		return v, nil
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// loadDefaults reads config.yml from the config directory. A missing
// file or unresolvable directory is not an error; a malformed file is.
func loadDefaults() (defaultsFile, error) {
	var d defaultsFile
	dir, err := resolveConfigDir()
	if err != nil {
		return d, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yml"))
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return d, &startupError{fmt.Errorf("reading defaults file: %w", err)}
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, &startupError{fmt.Errorf("defaults file %s: %w", filepath.Join(dir, "config.yml"), err)}
	}
	return d, nil
}
