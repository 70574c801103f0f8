package untar

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/pool"
	"github.com/paulschiretz/pgl-buildaux/pkg/untarmetrics"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

var errIllegalPath = errors.New("illegal file path in archive")

// workDirPerms is applied to every directory created during unpacking, so
// later members can always be written regardless of the umask.
const workDirPerms os.FileMode = 0o700

// entry is a manifest record: the archive member and where it landed.
type entry struct {
	Member
	path string
}

// task holds the mutable state for a single extraction.
type task struct {
	ctx        context.Context
	source     string
	absTarget  string
	bufferPool *pool.FixedBufferPool
	metrics    untarmetrics.Metrics

	manifest     []entry
	implicitDirs []string // parents created on demand, not archive members
}

// unpack is the first phase: every member is written to disk and recorded.
func (t *task) unpack() error {
	s, err := openSource(t.source, t.metrics)
	if err != nil {
		return err
	}
	defer s.Close()
	plog.Debug("Detected archive format", "source", t.source, "format", s.format)

	tr := tar.NewReader(s.r)
	for {
		select {
		case <-t.ctx.Done():
			return t.ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &ArchiveReadError{Path: t.source, Err: err}
		}

		t.metrics.AddEntriesProcessed(1)
		if err := t.unpackMember(tr, hdr); err != nil {
			return err
		}
	}
	return nil
}

func (t *task) unpackMember(tr io.Reader, hdr *tar.Header) error {
	if hdr.Typeflag == tar.TypeXGlobalHeader {
		return nil
	}

	path, err := t.resolvePath(hdr.Name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		err = t.makeDir(path)
	case tar.TypeReg:
		err = t.writeFile(tr, hdr, path)
	case tar.TypeSymlink:
		err = t.makeSymlink(hdr, path)
	case tar.TypeLink:
		err = t.makeHardlink(hdr, path)
	default:
		plog.Warn("Skipping unsupported archive member", "member", hdr.Name, "type", string(hdr.Typeflag))
		t.metrics.AddEntriesSkipped(1)
		return nil
	}
	if err != nil {
		return err
	}

	plog.Debug("EXTRACT", "member", hdr.Name, "mode", fmt.Sprintf("%#o", hdr.Mode))
	t.manifest = append(t.manifest, entry{Member: memberFromHeader(hdr), path: path})
	return nil
}

// resolvePath maps a member name to its location below the target. Names
// that climb out of the target are rejected. Leading slashes are dropped.
// The parent directory is resolved with securejoin so a symlink extracted
// earlier cannot redirect a later member outside the target; the final
// component is never followed.
func (t *task) resolvePath(name string) (string, error) {
	lexical := filepath.Join(t.absTarget, filepath.FromSlash(name))
	if !util.IsWithin(t.absTarget, lexical) {
		return "", &ArchiveReadError{Path: t.source, Member: name, Err: errIllegalPath}
	}
	if lexical == t.absTarget {
		return lexical, nil
	}

	rel, err := filepath.Rel(t.absTarget, lexical)
	if err != nil {
		return "", &ArchiveReadError{Path: t.source, Member: name, Err: err}
	}
	parent, err := securejoin.SecureJoin(t.absTarget, filepath.Dir(rel))
	if err != nil {
		return "", fmt.Errorf("could not resolve %s below %s: %w", name, t.absTarget, err)
	}
	return filepath.Join(parent, filepath.Base(rel)), nil
}

// ensureDir creates path and any missing parents below the target with
// workDirPerms. Existing directories that the owner cannot write to are
// opened up; the repair phase restores their final modes.
func (t *task) ensureDir(path string) error {
	if !util.IsWithin(t.absTarget, path) {
		return fmt.Errorf("%w: %s", errIllegalPath, path)
	}
	if path == t.absTarget {
		return nil
	}

	info, err := os.Lstat(path)
	switch {
	case err == nil && info.IsDir():
		perm := info.Mode().Perm()
		if perm&workDirPerms != workDirPerms {
			return os.Chmod(path, util.WithUserExecutePermission(util.WithUserWritePermission(perm|util.PermUserRead)))
		}
		return nil
	case err == nil:
		return fmt.Errorf("cannot create directory %s: a file is in the way", path)
	case !os.IsNotExist(err):
		return err
	}

	if err := t.ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.Mkdir(path, workDirPerms); err != nil {
		return err
	}
	t.implicitDirs = append(t.implicitDirs, path)
	// Mkdir is subject to the umask, Chmod is not.
	return os.Chmod(path, workDirPerms)
}

// removeExisting clears path so a new file or link can be created there.
// Removing first also stops a symlink from an earlier member being followed.
func removeExisting(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat destination path %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot overwrite directory with a file: %s", path)
	}
	return os.Remove(path)
}

func (t *task) makeDir(path string) error {
	if info, err := os.Lstat(path); err == nil && !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to replace %s with a directory: %w", path, err)
		}
	}
	if err := t.ensureDir(path); err != nil {
		return fmt.Errorf("could not create directory %s: %w", path, err)
	}
	return nil
}

func (t *task) writeFile(tr io.Reader, hdr *tar.Header, path string) error {
	if err := t.ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("could not create parent of %s: %w", path, err)
	}
	if err := removeExisting(path); err != nil {
		return err
	}

	// The mode passed here is filtered by the umask; the repair phase fixes it.
	outFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(hdr.Mode)&os.ModePerm)
	if err != nil {
		return fmt.Errorf("could not create file %s: %w", path, err)
	}

	in := &errTrackingReader{r: tr}
	bufPtr := t.bufferPool.Get()
	n, err := io.CopyBuffer(outFile, in, *bufPtr)
	t.bufferPool.Put(bufPtr)
	t.metrics.AddBytesWritten(n)
	closeErr := outFile.Close()
	if err != nil {
		if in.err != nil {
			return &ArchiveReadError{Path: t.source, Member: hdr.Name, Err: in.err}
		}
		return fmt.Errorf("could not write file %s: %w", path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("could not close file %s: %w", path, closeErr)
	}

	_ = os.Chtimes(path, hdr.AccessTime, hdr.ModTime)
	return nil
}

func (t *task) makeSymlink(hdr *tar.Header, path string) error {
	if err := t.ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("could not create parent of %s: %w", path, err)
	}
	if err := removeExisting(path); err != nil {
		return err
	}
	if err := os.Symlink(hdr.Linkname, path); err != nil {
		return fmt.Errorf("could not create symlink %s: %w", path, err)
	}
	return nil
}

func (t *task) makeHardlink(hdr *tar.Header, path string) error {
	linkTarget, err := t.resolvePath(hdr.Linkname)
	if err != nil {
		return err
	}
	if err := t.ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("could not create parent of %s: %w", path, err)
	}
	if err := removeExisting(path); err != nil {
		return err
	}
	if err := os.Link(linkTarget, path); err != nil {
		return fmt.Errorf("could not create hard link %s: %w", path, err)
	}
	return nil
}

// repair is the second phase. Each on-disk path gets the mode of the last
// member written to it, with mask cleared. Directories created on demand are
// treated as mode 0777 members. Files go first, then directories deepest
// first, so no directory loses its search bit before its children are done.
// Symlinks are skipped: chmod would follow them.
func (t *task) repair(mask os.FileMode) error {
	final := make(map[string]entry, len(t.manifest)+len(t.implicitDirs))
	for _, p := range t.implicitDirs {
		final[p] = entry{Member: Member{Typeflag: tar.TypeDir, Mode: os.ModePerm}, path: p}
	}
	for _, e := range t.manifest {
		final[e.path] = e
	}

	var files, dirs []entry
	for _, e := range final {
		switch {
		case e.IsSymlink():
		case e.IsDir():
			dirs = append(dirs, e)
		default:
			files = append(files, e)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].path > dirs[j].path })

	for _, e := range append(files, dirs...) {
		if err := t.chmod(e, mask); err != nil {
			return err
		}
	}
	return nil
}

func (t *task) chmod(e entry, mask os.FileMode) error {
	perm := util.MaskPerm(e.Mode, mask)

	info, err := os.Lstat(e.path)
	if err != nil {
		return &PermissionRepairError{Path: e.path, Mode: perm, Err: err}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		plog.Debug("Skipping permission repair on symlink", "path", e.path)
		return nil
	}

	if err := os.Chmod(e.path, perm); err != nil {
		return &PermissionRepairError{Path: e.path, Mode: perm, Err: err}
	}
	t.metrics.AddPermissionsRepaired(1)
	return nil
}
