package untar

import (
	"errors"
	"io"
	"io/fs"
	"testing"
)

func TestArchiveReadError(t *testing.T) {
	err := &ArchiveReadError{Path: "in.tar", Err: io.ErrUnexpectedEOF}
	if got, want := err.Error(), "archive read error: in.tar: unexpected EOF"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	withMember := &ArchiveReadError{Path: "in.tar", Member: "../x", Err: errIllegalPath}
	if got, want := withMember.Error(), "archive read error: in.tar: member ../x: illegal file path in archive"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if !errors.Is(err, ErrArchiveRead) {
		t.Error("expected errors.Is to match ErrArchiveRead")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected errors.Is to match the wrapped cause")
	}
	if errors.Is(err, ErrPermissionRepair) {
		t.Error("did not expect errors.Is to match ErrPermissionRepair")
	}
}

func TestPermissionRepairError(t *testing.T) {
	err := &PermissionRepairError{Path: "/out/f", Mode: 0o600, Err: fs.ErrPermission}
	if got, want := err.Error(), "permission repair error: chmod /out/f to 0600: permission denied"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if !errors.Is(err, ErrPermissionRepair) {
		t.Error("expected errors.Is to match ErrPermissionRepair")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("expected errors.Is to match the wrapped cause")
	}
}

func TestDetectFormat(t *testing.T) {
	testCases := []struct {
		name string
		head []byte
		want Format
	}{
		{name: "Gzip", head: []byte{0x1f, 0x8b, 0x08, 0x00}, want: TarGz},
		{name: "Zstd", head: []byte{0x28, 0xb5, 0x2f, 0xfd}, want: TarZst},
		{name: "Plain", head: []byte("ustar"), want: Tar},
		{name: "Short", head: []byte{0x1f}, want: Tar},
		{name: "Empty", head: nil, want: Tar},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectFormat(tc.head); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"tar", "tar.gz", "tar.zst"} {
		f, err := ParseFormat(s)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", s, err)
		}
		if f.String() != s {
			t.Errorf("expected %q, got %q", s, f.String())
		}
	}
	if _, err := ParseFormat("zip"); err == nil {
		t.Error("expected an error for an unsupported format")
	}
	if got := Format("rar").String(); got != "unknown_archive_format(rar)" {
		t.Errorf("unexpected String for unknown format: %s", got)
	}
}
