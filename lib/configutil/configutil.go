package configutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

func readInto[T any](path string, out *T) (bool, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(buf) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(buf, out)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// derives the override file name, ex. config.json5 -> config.local.json5
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

// ReadConfig reads a configuration file along with its local override.
// The following files are merged, where a higher number is more prioritized.
//  1. <name>.<ext>
//  2. <name>.local.<ext>
//
// os.ErrNotExist is returned when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T

	foundBase, err := readInto(name, &out)
	if err != nil {
		return out, err
	}

	var override T
	local := localName(name)
	foundLocal, err := readInto(local, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", local)
	}

	if !foundBase && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

// ReadConfig but it recursively goes up the filesystem until the root
// to find a configuration file matching the name.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if os.IsNotExist(err) {
			parent := filepath.Dir(current)
			if parent == current {
				return defaultOut, os.ErrNotExist
			}
			current = parent
			continue
		}
		if err != nil {
			return defaultOut, err
		}
		return config, nil
	}
}
