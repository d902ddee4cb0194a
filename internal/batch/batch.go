// Package batch renders a cohort of submissions into page-budgeted output
// files and writes the score summary.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
	"github.com/pavelanni/plgspl/internal/submission"
)

// ErrBudgetUnsatisfiable means a single submission needs more pages than
// one output file may hold.
var ErrBudgetUnsatisfiable = errors.New("pages-per-file budget cannot hold one submission")

// Recorder receives progress of a run. Implementations must not retain the
// entries slice.
type Recorder interface {
	RecordPlan(ctx context.Context, pagesPerSubmission, submissionsPerFile int) error
	RecordShard(ctx context.Context, shard model.ShardInfo) error
	RecordSummary(ctx context.Context, studentID string, entries []model.SummaryEntry) error
}

// Options configures an Assembler.
type Options struct {
	OutPrefix string
	Config    config.Config
	// Template is the submission rendered as the blank sample and used to
	// fill unanswered slots. Nil selects the first submission.
	Template *submission.Submission
	// TemplateFill enables filling unanswered question slots from Template.
	TemplateFill bool
	Recorder     Recorder
}

// Result describes a finished run.
type Result struct {
	SamplePath         string
	SummaryPath        string
	PagesPerSubmission int
	SubmissionsPerFile int
	Shards             []model.ShardInfo
	Summary            model.Summary
}

// Assembler renders submissions in order into output shards.
type Assembler struct {
	reg  *registry.Registry
	opts Options
}

// New creates an Assembler.
func New(reg *registry.Registry, opts Options) *Assembler {
	return &Assembler{reg: reg, opts: opts}
}

// SamplePath is the blank specimen written before the shards.
func (a *Assembler) SamplePath() string { return a.opts.OutPrefix + "_sample.pdf" }

// IncompletePath receives the partial document when a run is aborted.
func (a *Assembler) IncompletePath() string { return a.opts.OutPrefix + "_incomplete.pdf" }

// SummaryPath is the per-student score summary.
func (a *Assembler) SummaryPath() string { return a.opts.OutPrefix + "_summary.json" }

// ShardPath names the output file covering students first..last.
func (a *Assembler) ShardPath(first, last int) string {
	return fmt.Sprintf("%s_%d-%d.pdf", a.opts.OutPrefix, first, last)
}

// Run renders subs in the given order. A page overflow aborts the run: the
// document under construction is written to IncompletePath and the
// overflow error is returned. Shards already flushed stay on disk.
func (a *Assembler) Run(ctx context.Context, subs []*submission.Submission) (Result, error) {
	if len(subs) == 0 {
		return Result{}, errors.New("no submissions to render")
	}
	cfg := a.opts.Config
	tmpl := a.opts.Template
	if tmpl == nil {
		tmpl = subs[0]
	}

	res := Result{SamplePath: a.SamplePath(), Summary: model.Summary{}}
	sample := document.New(cfg)
	if _, err := tmpl.Render(ctx, sample, a.reg, submission.RenderOptions{Config: cfg, Template: true}); err != nil {
		a.dumpIncomplete(sample)
		return res, fmt.Errorf("render sample: %w", err)
	}
	res.PagesPerSubmission = sample.PageNo()
	if err := sample.WriteFile(res.SamplePath); err != nil {
		return res, fmt.Errorf("write sample: %w", err)
	}

	res.SubmissionsPerFile = cfg.PagesPerFile / res.PagesPerSubmission
	if res.SubmissionsPerFile < 1 {
		return res, fmt.Errorf("%w: %d pages per file, %d pages per submission",
			ErrBudgetUnsatisfiable, cfg.PagesPerFile, res.PagesPerSubmission)
	}
	slog.Info("sample written", "path", res.SamplePath,
		"pages_per_submission", res.PagesPerSubmission, "submissions_per_file", res.SubmissionsPerFile)
	if rec := a.opts.Recorder; rec != nil {
		if err := rec.RecordPlan(ctx, res.PagesPerSubmission, res.SubmissionsPerFile); err != nil {
			return res, fmt.Errorf("record plan: %w", err)
		}
	}

	opts := submission.RenderOptions{Config: cfg}
	if a.opts.TemplateFill {
		opts.Fallback = tmpl
	}

	var (
		doc   *document.Document
		first int
	)
	flush := func(last int) error {
		info := model.ShardInfo{
			Index:        len(res.Shards),
			Path:         a.ShardPath(first, last),
			FirstStudent: first,
			LastStudent:  last,
			Pages:        doc.PageNo(),
		}
		if err := doc.WriteFile(info.Path); err != nil {
			return fmt.Errorf("write shard %s: %w", info.Path, err)
		}
		slog.Info("shard written", "path", info.Path, "students", info.Students(), "pages", info.Pages)
		res.Shards = append(res.Shards, info)
		doc = nil
		if rec := a.opts.Recorder; rec != nil {
			if err := rec.RecordShard(ctx, info); err != nil {
				return fmt.Errorf("record shard: %w", err)
			}
		}
		return nil
	}

	for i, s := range subs {
		if doc == nil {
			doc = document.New(cfg)
			first = i
		}
		before := doc.PageNo()
		entries, err := s.Render(ctx, doc, a.reg, opts)
		if err != nil {
			a.dumpIncomplete(doc)
			return res, fmt.Errorf("student %s: %w", s.UID, err)
		}
		if pages := doc.PageNo() - before; pages != res.PagesPerSubmission {
			slog.Warn("submission page count differs from sample",
				"student", s.UID, "pages", pages, "expected", res.PagesPerSubmission)
		}
		res.Summary[s.UID] = entries
		if rec := a.opts.Recorder; rec != nil {
			if err := rec.RecordSummary(ctx, s.UID, entries); err != nil {
				return res, fmt.Errorf("record summary: %w", err)
			}
		}
		if i-first+1 == res.SubmissionsPerFile {
			if err := flush(i); err != nil {
				return res, err
			}
		}
	}
	if doc != nil {
		if err := flush(len(subs) - 1); err != nil {
			return res, err
		}
	}

	res.SummaryPath = a.SummaryPath()
	if err := WriteSummary(res.SummaryPath, res.Summary); err != nil {
		return res, err
	}
	return res, nil
}

func (a *Assembler) dumpIncomplete(d *document.Document) {
	path := a.IncompletePath()
	if err := d.WriteFile(path); err != nil {
		slog.Error("unable to write incomplete document", "path", path, "error", err)
		return
	}
	slog.Error("run aborted, partial output written", "path", path)
}

// WriteSummary writes the summary as indented JSON.
func WriteSummary(path string, s model.Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (model.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var s model.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}
