package untar

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/paulschiretz/pgl-buildaux/pkg/untarmetrics"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// Format is the container format of a source archive.
type Format string

const (
	Tar    Format = "tar"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	Tar:    "tar",
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat map[string]Format

func init() {
	// Inverting the map at runtime ensures formatToString is fully loaded
	stringToFormat = util.InvertMap(formatToString)
}

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

func ParseFormat(s string) (Format, error) {
	if format, ok := stringToFormat[s]; ok {
		return format, nil
	}
	return "", fmt.Errorf("invalid archive format: %q. Must be 'tar', 'tar.gz', or 'tar.zst'", s)
}

// MarshalJSON implements the json.Marshaler interface for Format.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// detectFormat identifies the compression wrapper from the leading bytes.
// Anything that is neither gzip nor zstd is handed to the tar reader as-is.
func detectFormat(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return TarZst
	case bytes.HasPrefix(head, gzipMagic):
		return TarGz
	default:
		return Tar
	}
}

// source is an opened archive with its decompressor stacked on top.
type source struct {
	path    string
	format  Format
	r       io.Reader
	closers []func() error
}

func (s *source) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openSource opens path and wraps it in the matching decompressor. Every
// failure is an *ArchiveReadError.
func openSource(path string, metrics untarmetrics.Metrics) (*source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ArchiveReadError{Path: path, Err: err}
	}
	src := &source{path: path, closers: []func() error{f.Close}}

	info, err := f.Stat()
	if err != nil {
		src.Close()
		return nil, &ArchiveReadError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		src.Close()
		return nil, &ArchiveReadError{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	if info.Size() == 0 {
		src.Close()
		return nil, &ArchiveReadError{Path: path, Err: errEmptyArchive}
	}

	br := bufio.NewReader(&metricReader{r: f, metrics: metrics})
	// A short peek is fine: tiny files are simply not compressed.
	head, _ := br.Peek(len(zstdMagic))
	src.format = detectFormat(head)

	switch src.format {
	case TarGz:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			src.Close()
			return nil, &ArchiveReadError{Path: path, Err: fmt.Errorf("gzip: %w", err)}
		}
		src.closers = append(src.closers, gz.Close)
		src.r = gz
	case TarZst:
		zr, err := zstd.NewReader(br)
		if err != nil {
			src.Close()
			return nil, &ArchiveReadError{Path: path, Err: fmt.Errorf("zstd: %w", err)}
		}
		src.closers = append(src.closers, func() error { zr.Close(); return nil })
		src.r = zr
	default:
		src.r = br
	}
	return src, nil
}

// metricReader wraps an io.Reader and updates metrics on every read.
type metricReader struct {
	r       io.Reader
	metrics untarmetrics.Metrics
}

func (mr *metricReader) Read(p []byte) (n int, err error) {
	n, err = mr.r.Read(p)
	if n > 0 {
		mr.metrics.AddBytesRead(int64(n))
	}
	return
}

// errTrackingReader remembers the last non-EOF error returned by r so a failed
// copy can be attributed to the archive rather than the destination.
type errTrackingReader struct {
	r   io.Reader
	err error
}

func (er *errTrackingReader) Read(p []byte) (int, error) {
	n, err := er.r.Read(p)
	if err != nil && err != io.EOF {
		er.err = err
	}
	return n, err
}
