// Package filebundle indexes a student's uploaded files for one question by
// part name and renders them by file family.
package filebundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/i18n"
)

// Bundle maps part names to absolute file paths.
type Bundle struct {
	files map[string]string
	order []string
}

// New returns an empty bundle.
func New() *Bundle {
	return &Bundle{files: make(map[string]string)}
}

// Add registers path under part. A later file with the same part name
// replaces the earlier one.
func (b *Bundle) Add(part, path string) {
	if prev, ok := b.files[part]; ok {
		if prev != path {
			slog.Warn("file part name collision, keeping the later file",
				"part", part, "replaced", prev, "kept", path)
		}
	} else {
		b.order = append(b.order, part)
	}
	b.files[part] = path
}

// Path returns the file registered for part.
func (b *Bundle) Path(part string) (string, bool) {
	if b == nil {
		return "", false
	}
	p, ok := b.files[part]
	return p, ok
}

// Names returns the registered part names in insertion order.
func (b *Bundle) Names() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.order...)
}

// Len returns the number of registered parts.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.files)
}

// PartName derives the part name of an uploaded file: the text after the
// record key (or, failing that, after the question id) with leading
// separators stripped.
func PartName(filename, key, questionID string) string {
	base := filepath.Base(filename)
	rest := base
	if i := indexAtBoundary(base, key); i >= 0 {
		rest = base[i+len(key):]
	} else if i := indexAtBoundary(base, questionID); i >= 0 {
		rest = base[i+len(questionID):]
	}
	rest = strings.TrimLeft(rest, "_-")
	if rest == "" {
		return base
	}
	return rest
}

// indexAtBoundary finds sub in s where it is neither preceded nor followed by
// a letter or digit.
func indexAtBoundary(s, sub string) int {
	if sub == "" {
		return -1
	}
	for off := 0; off <= len(s)-len(sub); {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			return -1
		}
		i += off
		end := i + len(sub)
		if (i == 0 || !isWordByte(s[i-1])) && (end == len(s) || !isWordByte(s[end])) {
			return i
		}
		off = i + 1
	}
	return -1
}

func isWordByte(c byte) bool {
	return c < 0x80 && (unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)))
}

// Scan lists the regular files in dir.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read file directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Collect builds the bundle of files in dir whose names contain key.
func Collect(dir string, names []string, key, questionID string) (*Bundle, error) {
	b := New()
	for _, name := range names {
		if indexAtBoundary(name, key) < 0 {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		b.Add(PartName(name, key, questionID), abs)
	}
	return b, nil
}

// Render writes one file part: a header naming the part, then the file
// content (or a placeholder in template mode), padded to budget pages. A part
// with no registered file renders only its header.
func (b *Bundle) Render(ctx context.Context, d *document.Document, cfg config.Config, part string, template bool, budget int) error {
	start := d.PageNo()
	d.Subheader(i18n.Td(ctx, "FileHeader", map[string]any{"Name": part}))

	switch path, ok := b.Path(part); {
	case template:
		d.Body(i18n.T(ctx, "FileTemplate"))
	case ok:
		renderPath(ctx, d, cfg, path)
	}

	return d.PadUntil(ctx, start+budget-1, "file "+part)
}

func renderPath(ctx context.Context, d *document.Document, cfg config.Config, path string) {
	family := cfg.FamilyFor(path)
	if family == config.FamilyImage {
		renderImage(ctx, d, path, nil)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("unable to read uploaded file", "path", path, "error", err)
		d.Body(err.Error())
		return
	}
	switch family {
	case config.FamilyMarkdown:
		d.Markdown(data)
	case config.FamilyCode:
		d.Code(string(data))
	default:
		mime := mimetype.Detect(data)
		switch {
		case strings.HasPrefix(mime.String(), "image/"):
			renderImage(ctx, d, path, mime)
		case isText(mime):
			d.Code(string(data))
		default:
			d.Body(i18n.Td(ctx, "FileBinary", map[string]any{"Type": mime.String()}))
		}
	}
}

func renderImage(ctx context.Context, d *document.Document, path string, mime *mimetype.MIME) {
	if mime == nil {
		var err error
		if mime, err = mimetype.DetectFile(path); err != nil {
			slog.Warn("unable to read uploaded image", "path", path, "error", err)
			d.Body(err.Error())
			return
		}
	}
	imageType := pdfImageType(mime)
	if imageType == "" {
		d.Body(i18n.Td(ctx, "FileBinary", map[string]any{"Type": mime.String()}))
		return
	}
	if err := d.Image(path, imageType); err != nil {
		slog.Warn("unable to embed image", "path", path, "error", err)
		d.Body(i18n.Td(ctx, "FileBinary", map[string]any{"Type": mime.String()}))
	}
}

func pdfImageType(mime *mimetype.MIME) string {
	switch {
	case mime.Is("image/png"):
		return "PNG"
	case mime.Is("image/jpeg"):
		return "JPG"
	case mime.Is("image/gif"):
		return "GIF"
	}
	return ""
}

func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
