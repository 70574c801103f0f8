package cmd

import (
	"context"

	"github.com/paulschiretz/pgl-buildaux/pkg/hints"
	"github.com/paulschiretz/pgl-buildaux/pkg/iconheader"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

// RunIcons handles the logic for the icons command.
func RunIcons(ctx context.Context, flagMap map[string]any) error {
	applyLogFlags(flagMap)

	dir, err := optionalPath(flagMap, "dir", ".")
	if err != nil {
		return err
	}
	out, err := optionalPath(flagMap, "out", "icons.h")
	if err != nil {
		return err
	}

	var opts iconheader.Options
	opts.Pattern, _ = flagMap["pattern"].(string)
	opts.Guard, _ = flagMap["guard"].(string)
	opts.Prefix, _ = flagMap["prefix"].(string)
	if holder, ok := flagMap["copyright"].(string); ok && holder != "" {
		opts.License = iconheader.MITLicense(holder)
	}

	err = withLock(ctx, out, func() error {
		_, err := iconheader.WriteFile(ctx, out, dir, opts)
		return err
	})
	if err != nil {
		if hints.IsHint(err) {
			plog.Info("No icon header written", "reason", err)
			return nil
		}
		return err
	}
	return nil
}
