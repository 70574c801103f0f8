// Package untar extracts tar archives with deterministic file permissions.
//
// Extraction runs in two phases. The first phase unpacks every member and
// records it in a manifest; the modes it leaves on disk depend on the process
// umask and are not trusted. The second phase walks the manifest and resets
// each member to its recorded mode with the permission mask cleared, so the
// result is the same no matter which environment ran the extraction:
//
//	final = (recorded mode & 0777) &^ mask
//
// Nothing is rolled back when a phase fails. Callers that need all-or-nothing
// behavior extract into a temporary directory and rename it on success.
package untar

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/pool"
	"github.com/paulschiretz/pgl-buildaux/pkg/untarmetrics"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// DefaultMask removes every group and other permission bit.
const DefaultMask os.FileMode = 0o077

// DefaultBufferSizeKB is the copy buffer size used by Extract.
const DefaultBufferSizeKB = 256

// Request describes a single extraction.
type Request struct {
	Source string      // archive path; plain, gzip or zstd compressed tar
	Target string      // destination directory, created if missing
	Mask   os.FileMode // permission bits to clear from every member
}

// Member is one entry recorded in an archive's manifest.
type Member struct {
	Name     string
	Typeflag byte
	Mode     os.FileMode // permission bits as recorded in the archive
	Size     int64
	Linkname string
}

// IsDir reports whether the member is a directory.
func (m Member) IsDir() bool { return m.Typeflag == tar.TypeDir }

// IsSymlink reports whether the member is a symbolic link.
func (m Member) IsSymlink() bool { return m.Typeflag == tar.TypeSymlink }

func memberFromHeader(hdr *tar.Header) Member {
	return Member{
		Name:     hdr.Name,
		Typeflag: hdr.Typeflag,
		Mode:     os.FileMode(hdr.Mode) & os.ModePerm,
		Size:     hdr.Size,
		Linkname: hdr.Linkname,
	}
}

// Extractor runs extractions. It is safe to reuse across calls but a single
// call assumes exclusive access to its target directory.
type Extractor struct {
	ioBufferPool   *pool.FixedBufferPool
	metricsEnabled bool
}

// NewExtractor creates an Extractor with the given copy buffer size.
func NewExtractor(bufferSizeKB int, metrics bool) *Extractor {
	if bufferSizeKB <= 0 {
		bufferSizeKB = DefaultBufferSizeKB
	}
	return &Extractor{
		ioBufferPool:   pool.NewFixedBuffer(int64(bufferSizeKB) * 1024),
		metricsEnabled: metrics,
	}
}

// Extract unpacks src into dst and then clears mask from every member's mode.
func Extract(src, dst string, mask os.FileMode) error {
	return NewExtractor(DefaultBufferSizeKB, false).Extract(context.Background(), Request{
		Source: src,
		Target: dst,
		Mask:   mask,
	})
}

// Extract runs both phases for req. Cancellation is checked between members.
func (e *Extractor) Extract(ctx context.Context, req Request) error {
	if req.Source == "" {
		return fmt.Errorf("no source archive given")
	}
	if req.Target == "" {
		return fmt.Errorf("no target directory given")
	}

	absTarget, err := filepath.Abs(req.Target)
	if err != nil {
		return fmt.Errorf("could not determine absolute target path for %s: %w", req.Target, err)
	}

	var m untarmetrics.Metrics
	if e.metricsEnabled {
		m = &untarmetrics.ExtractionMetrics{}
	} else {
		// Use the No-op implementation if metrics are disabled.
		m = &untarmetrics.NoopMetrics{}
	}
	m.StartProgress("Extraction progress", 10*time.Second)
	defer func() {
		m.StopProgress()
		m.LogSummary("Extraction finished")
	}()

	plog.Info("Extracting archive", "source", req.Source, "target", absTarget, "mask", fmt.Sprintf("%#o", uint32(req.Mask)))

	if err := createTarget(absTarget); err != nil {
		return err
	}

	t := &task{
		ctx:        ctx,
		source:     req.Source,
		absTarget:  absTarget,
		bufferPool: e.ioBufferPool,
		metrics:    m,
	}
	if err := t.unpack(); err != nil {
		return err
	}
	if err := t.repair(req.Mask); err != nil {
		return err
	}

	plog.Notice("EXTRACTED", "source", req.Source, "members", len(t.manifest))
	return nil
}

// createTarget makes sure absTarget is a directory. A newly created target
// gets workDirPerms regardless of the umask.
func createTarget(absTarget string) error {
	info, err := os.Stat(absTarget)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("target %s exists but is not a directory", absTarget)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("could not stat target directory %s: %w", absTarget, err)
	}
	if err := os.MkdirAll(absTarget, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create target directory %s: %w", absTarget, err)
	}
	return os.Chmod(absTarget, workDirPerms)
}

// List returns the manifest of src without extracting anything.
func List(src string) ([]Member, error) {
	s, err := openSource(src, &untarmetrics.NoopMetrics{})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var members []Member
	tr := tar.NewReader(s.r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ArchiveReadError{Path: src, Err: err}
		}
		members = append(members, memberFromHeader(hdr))
	}
	return members, nil
}
