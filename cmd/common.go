package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-buildaux/pkg/buildinfo"
	"github.com/paulschiretz/pgl-buildaux/pkg/lockfile"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// applyLogFlags sets the global log level and quiet mode from the flag map.
func applyLogFlags(flagMap map[string]any) {
	if level, ok := flagMap["log-level"].(string); ok {
		plog.SetLevel(plog.LevelFromString(level))
	}
	if quiet, ok := flagMap["quiet"].(bool); ok {
		plog.SetQuiet(quiet)
	}
}

// requiredPath returns the expanded value of a mandatory path flag.
func requiredPath(flagMap map[string]any, name, command string) (string, error) {
	p, ok := flagMap[name].(string)
	if !ok || p == "" {
		return "", fmt.Errorf("the -%s flag is required to run %s", name, command)
	}
	return expand(p, name)
}

// optionalPath returns the expanded value of a path flag or def when unset.
func optionalPath(flagMap map[string]any, name, def string) (string, error) {
	p, ok := flagMap[name].(string)
	if !ok || p == "" {
		p = def
	}
	return expand(p, name)
}

func expand(p, name string) (string, error) {
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", fmt.Errorf("could not expand %s path: %w", name, err)
	}
	return expanded, nil
}

// withLock runs fn while holding the lock that guards path, so parallel
// build steps writing the same output take turns.
func withLock(ctx context.Context, path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create parent directory of %s: %w", path, err)
	}
	lock, err := lockfile.Acquire(ctx, path, buildinfo.Name)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
