// Package shard inspects written output files: it checks their page counts
// against the run plan and splits them back into per-student documents.
package shard

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	plmodel "github.com/pavelanni/plgspl/internal/model"
)

// ErrPageMismatch means a shard's page count breaks the fixed per-submission
// layout.
var ErrPageMismatch = errors.New("shard page count mismatch")

func init() {
	api.DisableConfigDir()
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return n, nil
}

// Verify re-opens every shard and checks it holds exactly pagesPerSubmission
// pages per student.
func Verify(shards []plmodel.ShardInfo, pagesPerSubmission int) error {
	for _, sh := range shards {
		n, err := PageCount(sh.Path)
		if err != nil {
			return err
		}
		if want := sh.Students() * pagesPerSubmission; n != want {
			return fmt.Errorf("%w: %s has %d pages, want %d", ErrPageMismatch, sh.Path, n, want)
		}
		slog.Debug("shard verified", "path", sh.Path, "pages", n)
	}
	return nil
}

var rangeSuffix = regexp.MustCompile(`_(\d+)-(\d+)\.pdf$`)

// ParseRange reads the student range from a shard file name such as
// exam_40-79.pdf.
func ParseRange(path string) (first, last int, ok bool) {
	m := rangeSuffix.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, 0, false
	}
	first, _ = strconv.Atoi(m[1])
	last, _ = strconv.Atoi(m[2])
	return first, last, last >= first
}

func readContext(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	ctx, err := api.ReadContext(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", path, err)
	}
	return ctx, nil
}

// Split writes one PDF per submission of the shard at path into outDir.
// names[i] names the i-th submission's file; missing names fall back to the
// submission's position. It returns the written paths.
func Split(path, outDir string, pagesPerSubmission int, names []string) ([]string, error) {
	if pagesPerSubmission < 1 {
		return nil, fmt.Errorf("pages per submission must be positive, got %d", pagesPerSubmission)
	}
	ctx, err := readContext(path)
	if err != nil {
		return nil, err
	}
	if ctx.PageCount%pagesPerSubmission != 0 {
		return nil, fmt.Errorf("%w: %s has %d pages, not a multiple of %d",
			ErrPageMismatch, path, ctx.PageCount, pagesPerSubmission)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	count := ctx.PageCount / pagesPerSubmission
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pages := make([]int, pagesPerSubmission)
		for j := range pages {
			pages[j] = i*pagesPerSubmission + j + 1
		}
		part, err := pdfcpu.ExtractPages(ctx, pages, false)
		if err != nil {
			return out, fmt.Errorf("extract submission %d: %w", i, err)
		}
		var buf bytes.Buffer
		if err := api.WriteContext(part, &buf); err != nil {
			return out, fmt.Errorf("write submission %d: %w", i, err)
		}
		name := fmt.Sprintf("%03d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		dst := filepath.Join(outDir, name+".pdf")
		if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
			return out, fmt.Errorf("write %s: %w", dst, err)
		}
		out = append(out, dst)
	}
	slog.Info("shard split", "path", path, "submissions", count, "dir", outDir)
	return out, nil
}
