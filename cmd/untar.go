package cmd

import (
	"archive/tar"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/paulschiretz/pgl-buildaux/pkg/buildinfo"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/untar"
)

// RunUntar handles the logic for the untar command.
func RunUntar(ctx context.Context, flagMap map[string]any) error {
	applyLogFlags(flagMap)

	source, err := requiredPath(flagMap, "source", "untar")
	if err != nil {
		return err
	}

	if list, _ := flagMap["list"].(bool); list {
		members, err := untar.List(source)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Printf("%c %04o %10d %s\n", memberType(m), uint32(m.Mode), m.Size, m.Name)
		}
		return nil
	}

	target, err := requiredPath(flagMap, "target", "untar")
	if err != nil {
		return err
	}

	mask := untar.DefaultMask
	if m, ok := flagMap["mask"].(os.FileMode); ok {
		mask = m
	}
	metrics, _ := flagMap["metrics"].(bool)
	bufferSizeKB, _ := flagMap["buffer-size-kb"].(int)

	startTime := time.Now()
	extractor := untar.NewExtractor(bufferSizeKB, metrics)
	err = withLock(ctx, target, func() error {
		return extractor.Extract(ctx, untar.Request{Source: source, Target: target, Mask: mask})
	})
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" extraction finished successfully.", "duration", duration)
	return nil
}

func memberType(m untar.Member) byte {
	switch m.Typeflag {
	case tar.TypeDir:
		return 'd'
	case tar.TypeSymlink:
		return 'l'
	case tar.TypeLink:
		return 'h'
	case tar.TypeReg:
		return '-'
	default:
		return '?'
	}
}
