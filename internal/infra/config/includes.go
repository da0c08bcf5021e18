package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// applyLayer merges the config file at path onto cfg. The files it includes
// are applied first, so a file's own settings win over its includes. chain
// holds the files currently being applied; a file may be included twice from
// different branches but never from itself.
func applyLayer(cfg *Config, path string, data []byte, chain map[string]bool, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded at %q", maxIncludeDepth, path)
	}

	var head struct {
		Includes []string `yaml:"includes"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return parseError(path, depth, err)
	}

	chain[path] = true
	defer delete(chain, path)

	for _, pattern := range head.Includes {
		files, err := expandInclude(pattern, filepath.Dir(path))
		if err != nil {
			return err
		}
		for _, f := range files {
			if chain[f] {
				return fmt.Errorf("config includes: circular include detected for %q", f)
			}
			if err := validatePermissions(f); err != nil {
				return fmt.Errorf("config includes: %w", err)
			}
			included, err := os.ReadFile(f)
			if err != nil {
				return fmt.Errorf("config includes: read %q: %w", f, err)
			}
			if err := applyLayer(cfg, f, included, chain, depth+1); err != nil {
				return err
			}
		}
	}

	if err := overlay(cfg, data); err != nil {
		return parseError(path, depth, err)
	}
	cfg.Includes = nil
	return nil
}

func parseError(path string, depth int, err error) error {
	if depth == 0 {
		return fmt.Errorf("parse config: %w", err)
	}
	return fmt.Errorf("config includes: parse %q: %w", path, err)
}

// overlay decodes data onto cfg. Engine lists accumulate across layers: an
// engine redefined under the name of an earlier layer's engine replaces that
// definition in place, other engines are appended. Duplicates within one
// layer are kept for validation to report.
func overlay(cfg *Config, data []byte) error {
	prev := cfg.Engines
	cfg.Engines = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg.Engines = prev
		return err
	}
	cfg.Engines = mergeEngines(prev, cfg.Engines)
	return nil
}

func mergeEngines(base, layer []EngineConfig) []EngineConfig {
	if len(layer) == 0 {
		return base
	}
	out := append([]EngineConfig(nil), base...)
	index := make(map[string]int, len(out))
	for i, e := range out {
		index[e.Name] = i
	}
	for _, e := range layer {
		if i, ok := index[e.Name]; ok {
			out[i] = e
			continue
		}
		out = append(out, e)
	}
	return out
}

// expandInclude turns one include pattern into absolute file paths. Paths
// that leave baseDir are rejected. A literal path that does not exist is
// returned as-is so the read reports it; a glob with no matches yields
// nothing.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 && !strings.ContainsAny(pattern, "*?[") {
		matches = []string{pattern}
	}
	for i, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("config includes: abs path %q: %w", m, err)
		}
		matches[i] = abs
	}
	return matches, nil
}
