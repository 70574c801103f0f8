package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/paulschiretz/pgl-buildaux/pkg/buildvars"
	"github.com/paulschiretz/pgl-buildaux/pkg/flagparse"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/ternary"
)

// RunOptions declares every key named on the command line or found in the
// cache as a ternary option, resolves the assignments over the cached values
// and prints the result as KEY=VALUE lines.
func RunOptions(ctx context.Context, flagMap map[string]any) error {
	applyLogFlags(flagMap)

	args, _ := flagMap[flagparse.ArgsKey].([]string)
	overrides, err := buildvars.ParseAssignments(args)
	if err != nil {
		return err
	}

	cachePath, _ := flagMap["cache"].(string)
	save, _ := flagMap["save"].(bool)
	if save && cachePath == "" {
		return fmt.Errorf("the -cache flag is required with -save")
	}
	if cachePath == "" {
		return resolveOptions(flagMap, map[string]any{}, overrides, "")
	}

	if cachePath, err = expand(cachePath, "cache"); err != nil {
		return err
	}
	// The cache is read, resolved and rewritten under one lock.
	return withLock(ctx, cachePath, func() error {
		cached, err := buildvars.LoadCache(cachePath)
		if err != nil {
			return err
		}
		savePath := ""
		if save {
			savePath = cachePath
		}
		return resolveOptions(flagMap, cached, overrides, savePath)
	})
}

// resolveOptions prints the options resolved from cached and overrides and,
// when savePath is set, writes them back.
func resolveOptions(flagMap map[string]any, cached, overrides map[string]any, savePath string) error {
	def := ternary.Auto
	if v, ok := flagMap["default"].(ternary.Value); ok {
		def = v
	}

	registry := buildvars.NewRegistry()
	for _, key := range unionKeys(cached, overrides) {
		if err := registry.Add(ternary.Describe(key, "Build option "+key, def)); err != nil {
			return err
		}
	}

	values, err := registry.Resolve(buildvars.Merge(cached, overrides))
	if err != nil {
		return err
	}

	if helpVars, _ := flagMap["help-vars"].(bool); helpVars {
		return registry.WriteHelp(os.Stdout, values)
	}
	for _, key := range values.Keys() {
		fmt.Printf("%s=%s\n", key, values[key])
	}

	if savePath != "" {
		if err := buildvars.SaveCache(savePath, values); err != nil {
			return err
		}
		plog.Info("Saved option cache", "path", savePath, "options", len(values))
	}
	return nil
}

func unionKeys(layers ...map[string]any) []string {
	set := make(map[string]struct{})
	for _, layer := range layers {
		for k := range layer {
			set[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
