// Package iconheader turns a directory of bitmap files into a C header that
// embeds each file as an unsigned char array.
package iconheader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-buildaux/pkg/hints"
	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

const (
	DefaultPattern = "*.bmp"
	DefaultGuard   = "_ICONS_H_"
	DefaultPrefix  = "icon_"

	bytesPerLine = 16
	maxReaders   = 8
)

// ErrNoIcons is wrapped in a hint when the directory holds no matching files.
var ErrNoIcons = errors.New("no icon files found")

const mitLicense = `MIT License

%sPermission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.`

// MITLicense returns the MIT license text. A non-empty holder adds a
// copyright line.
func MITLicense(holder string) string {
	line := ""
	if holder != "" {
		line = "Copyright (c) " + holder + "\n\n"
	}
	return fmt.Sprintf(mitLicense, line)
}

// Options controls the generated header. Zero fields take the defaults.
type Options struct {
	Pattern string // base name pattern, shell syntax
	Guard   string // include guard macro
	Prefix  string // identifier prefix
	License string // comment block text, one line per line; MIT when empty
}

func (o Options) withDefaults() Options {
	if o.Pattern == "" {
		o.Pattern = DefaultPattern
	}
	if o.Guard == "" {
		o.Guard = DefaultGuard
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.License == "" {
		o.License = MITLicense("")
	}
	return o
}

type icon struct {
	file  string
	ident string
	data  []byte
}

// Identifier derives the C identifier suffix for a file name: the extension
// is dropped and every character whose lower-case form is not a letter,
// digit or underscore becomes an underscore. Case is preserved.
func Identifier(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	var b strings.Builder
	for _, r := range base {
		if isIdentRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	l := strings.ToLower(string(r))
	if len(l) != 1 {
		return false
	}
	c := l[0]
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}

// collect finds matching files in dir, sorted by name. Subdirectories are
// not searched.
func collect(dir string, g glob.Glob, prefix string) ([]icon, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read icon directory %s: %w", dir, err)
	}

	var icons []icon
	seen := make(map[string]string)
	for _, e := range entries {
		if !e.Type().IsRegular() || !g.Match(e.Name()) {
			continue
		}
		ident := prefix + Identifier(e.Name())
		if other, ok := seen[ident]; ok {
			return nil, fmt.Errorf("files %s and %s both map to identifier %s", other, e.Name(), ident)
		}
		seen[ident] = e.Name()
		icons = append(icons, icon{file: e.Name(), ident: ident})
	}
	sort.Slice(icons, func(i, j int) bool { return icons[i].file < icons[j].file })
	return icons, nil
}

// Generate writes the header for every matching file in dir to w and
// returns the number of arrays written. A directory with no matching files
// yields a hint wrapping ErrNoIcons and nothing is written.
func Generate(ctx context.Context, w io.Writer, dir string, opts Options) (int, error) {
	opts = opts.withDefaults()
	g, err := glob.Compile(opts.Pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
	}

	icons, err := collect(dir, g, opts.Prefix)
	if err != nil {
		return 0, err
	}
	if len(icons) == 0 {
		return 0, hints.Newf("%w in %s matching %s", ErrNoIcons, dir, opts.Pattern)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxReaders)
	for i := range icons {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, icons[i].file))
			if err != nil {
				return fmt.Errorf("could not read icon %s: %w", icons[i].file, err)
			}
			icons[i].data = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	writeHeader(bw, opts)
	for _, ic := range icons {
		writeIcon(bw, ic)
		plog.Debug("Embedded icon", "file", ic.file, "identifier", ic.ident, "bytes", len(ic.data))
	}
	writeFooter(bw)
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("could not write header: %w", err)
	}
	return len(icons), nil
}

func writeHeader(w *bufio.Writer, opts Options) {
	w.WriteString("/**\n")
	for _, line := range strings.Split(strings.TrimRight(opts.License, "\n"), "\n") {
		if line == "" {
			w.WriteString(" *\n")
			continue
		}
		w.WriteString(" * " + line + "\n")
	}
	w.WriteString(" */\n\n")
	w.WriteString("// include only once\n")
	fmt.Fprintf(w, "#ifndef %s\n#define %s\n\n", opts.Guard, opts.Guard)
}

func writeIcon(w *bufio.Writer, ic icon) {
	fmt.Fprintf(w, "const unsigned char %s[]={\n", ic.ident)
	for i := 0; i < len(ic.data); i += bytesPerLine {
		end := min(i+bytesPerLine, len(ic.data))
		w.WriteString("  ")
		for _, b := range ic.data[i:end] {
			fmt.Fprintf(w, "0x%02x,", b)
		}
		w.WriteByte('\n')
	}
	w.WriteString("  };\n\n")
}

func writeFooter(w *bufio.Writer) {
	w.WriteString("// end of include only once\n#endif\n")
}

// WriteFile generates the header into path. The file is replaced atomically
// so a failed run never leaves a truncated header behind.
func WriteFile(ctx context.Context, path, dir string, opts Options) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("could not create temporary file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	n, err := Generate(ctx, tmp, dir, opts)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("could not close %s: %w", tmpPath, closeErr)
	}
	if err != nil {
		return 0, err
	}

	if err := os.Chmod(tmpPath, util.UserWritableFilePerms); err != nil {
		return 0, fmt.Errorf("could not set permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("could not move header into place at %s: %w", path, err)
	}
	plog.Info("Wrote icon header", "path", path, "icons", n)
	return n, nil
}
