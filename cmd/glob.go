package cmd

import (
	"context"
	"fmt"

	"github.com/paulschiretz/pgl-buildaux/pkg/globfiles"
	"github.com/paulschiretz/pgl-buildaux/pkg/hints"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

// RunGlob prints every file matching one of the patterns, one per line.
// Files matched by several patterns are printed once.
func RunGlob(ctx context.Context, flagMap map[string]any) error {
	applyLogFlags(flagMap)

	search, err := requiredPath(flagMap, "search", "glob")
	if err != nil {
		return err
	}
	base, err := optionalPath(flagMap, "base", ".")
	if err != nil {
		return err
	}

	patterns, _ := flagMap["pattern"].([]string)
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	recursive := true
	if r, ok := flagMap["recursive"].(bool); ok {
		recursive = r
	}

	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return err
		}
		matches, err := globfiles.Glob(base, search, pattern, recursive)
		if err != nil {
			if hints.IsHint(err) {
				plog.Info("Nothing to glob", "reason", err)
				return nil
			}
			return err
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			fmt.Println(m)
		}
	}
	return nil
}
