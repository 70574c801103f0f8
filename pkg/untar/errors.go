package untar

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrArchiveRead is matched by every *ArchiveReadError via errors.Is.
	ErrArchiveRead = errors.New("archive read error")
	// ErrPermissionRepair is matched by every *PermissionRepairError via errors.Is.
	ErrPermissionRepair = errors.New("permission repair error")

	errEmptyArchive = errors.New("empty file")
)

// ArchiveReadError reports a source that is missing, empty, corrupt, not a
// tar stream, or that names a member outside the target directory.
type ArchiveReadError struct {
	Path   string
	Member string // empty when the failure is not tied to a member
	Err    error
}

func (e *ArchiveReadError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s: %s: member %s: %v", ErrArchiveRead, e.Path, e.Member, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrArchiveRead, e.Path, e.Err)
}

func (e *ArchiveReadError) Unwrap() error { return e.Err }

func (e *ArchiveReadError) Is(target error) bool { return target == ErrArchiveRead }

// PermissionRepairError reports a failed chmod during the repair pass. The
// target directory may be left partially repaired.
type PermissionRepairError struct {
	Path string
	Mode os.FileMode
	Err  error
}

func (e *PermissionRepairError) Error() string {
	return fmt.Sprintf("%s: chmod %s to %#o: %v", ErrPermissionRepair, e.Path, uint32(e.Mode), e.Err)
}

func (e *PermissionRepairError) Unwrap() error { return e.Err }

func (e *PermissionRepairError) Is(target error) bool { return target == ErrPermissionRepair }
