// Package configutil reads layered json5 config files.
package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// ErrNotFound is returned when no layer of a config exists.
var ErrNotFound = fmt.Errorf("config not found: %w", os.ErrNotExist)

// Layers lists the files that make up the config at path, lowest priority
// first: `dir/name.ext` then `dir/name.local.ext`.
func Layers(path string) []string {
	ext := filepath.Ext(path)
	return []string{
		path,
		strings.TrimSuffix(path, ext) + ".local" + ext,
	}
}

// readLayer decodes a single file, ok is false if it does not exist or is
// empty.
func readLayer[T any](path string) (layer T, ok bool, err error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return layer, false, nil
	}
	if err != nil {
		return layer, false, err
	}
	if len(contents) == 0 {
		return layer, false, nil
	}
	err = json5.Unmarshal(contents, &layer)
	if err != nil {
		return layer, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return layer, true, nil
}

// ReadConfig merges every existing layer of path, values set in a later
// layer override earlier ones.
func ReadConfig[T any](path string) (T, error) {
	var out T
	found := 0

	for _, layerPath := range Layers(path) {
		layer, ok, err := readLayer[T](layerPath)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if found > 0 {
			slog.Info("merging config with local overrides", "local", layerPath)
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", layerPath, err)
		}
		found++
	}

	if found == 0 {
		return out, ErrNotFound
	}
	return out, nil
}

// ReadRecursively looks for name in the working directory and each of its
// parents, the nearest directory with any layer of the config wins.
func ReadRecursively[T any](name string) (T, error) {
	var out T

	dir, err := os.Getwd()
	if err != nil {
		return out, err
	}
	for {
		out, err = ReadConfig[T](filepath.Join(dir, name))
		if !errors.Is(err, ErrNotFound) {
			return out, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return out, ErrNotFound
		}
		dir = parent
	}
}
