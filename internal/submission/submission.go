// Package submission groups one student's assembled questions and renders
// them in canonical question order.
package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/plgspl/internal/answer"
	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/i18n"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
)

// StudentQuestion is one student's answer to one question variant.
type StudentQuestion struct {
	Question *registry.Question
	Variant  string
	Parts    []answer.Part
	Scores   map[string]model.PartialScore
}

// Render draws every part in order.
func (sq *StudentQuestion) Render(ctx context.Context, d *document.Document, cfg config.Config, template bool) error {
	for i := range sq.Parts {
		if err := sq.Parts[i].Render(ctx, d, cfg, template); err != nil {
			return fmt.Errorf("render %s: %w", sq.Variant, err)
		}
	}
	return nil
}

// ScoresJSON encodes the resolved part scores for the summary.
func (sq *StudentQuestion) ScoresJSON() string {
	if sq.Scores == nil {
		return "{}"
	}
	data, err := json.Marshal(sq.Scores)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Submission is everything one student submitted, keyed by variant id.
type Submission struct {
	UID       string
	Questions map[string]*StudentQuestion
}

// New returns an empty submission for uid.
func New(uid string) *Submission {
	return &Submission{UID: uid, Questions: make(map[string]*StudentQuestion)}
}

// Add stores sq under its variant. A later answer for the same variant
// replaces the earlier one.
func (s *Submission) Add(sq *StudentQuestion) {
	if _, ok := s.Questions[sq.Variant]; ok {
		slog.Warn("duplicate answer for variant, keeping the later one", "student", s.UID, "variant", sq.Variant)
	}
	s.Questions[sq.Variant] = sq
}

// Get returns the answer for a variant, or nil.
func (s *Submission) Get(variant string) *StudentQuestion {
	if s == nil {
		return nil
	}
	return s.Questions[variant]
}

// RenderOptions controls a submission render.
type RenderOptions struct {
	Config config.Config
	// Template renders the submission as a blank specimen: no student id,
	// blank anchors, no answers.
	Template bool
	// Fallback fills question slots the student left empty, rendered in
	// template mode. Nil disables filling.
	Fallback *Submission
}

// Render appends the front page and every selected question to d, and
// returns one summary entry per rendered question slot.
func (s *Submission) Render(ctx context.Context, d *document.Document, reg *registry.Registry, opts RenderOptions) ([]model.SummaryEntry, error) {
	d.AddPage()
	label := ""
	if !opts.Template {
		label = i18n.Td(ctx, "StudentLabel", map[string]any{"ID": s.UID})
	}
	d.Title(label)

	var entries []model.SummaryEntry
	for _, q := range reg.Questions() {
		remaining := q.NumberChoose
		used := make(map[string]bool, remaining)
		for _, v := range q.Variants {
			if remaining == 0 {
				break
			}
			sq := s.Get(v)
			if sq == nil {
				continue
			}
			if err := sq.Render(ctx, d, opts.Config, opts.Template); err != nil {
				return entries, err
			}
			scores := "null"
			if !opts.Template {
				scores = sq.ScoresJSON()
			}
			entries = append(entries, model.SummaryEntry{Variant: v, Scores: scores})
			used[v] = true
			remaining--
		}
		if remaining == 0 || opts.Fallback == nil {
			continue
		}
		for _, v := range q.Variants {
			if remaining == 0 {
				break
			}
			sq := opts.Fallback.Get(v)
			if used[v] || sq == nil {
				continue
			}
			if err := sq.Render(ctx, d, opts.Config, true); err != nil {
				return entries, err
			}
			entries = append(entries, model.SummaryEntry{Variant: v, Scores: "null"})
			used[v] = true
			remaining--
		}
		if remaining > 0 {
			slog.Warn("template submission cannot fill question slot",
				"student", s.UID, "question", q.ID, "missing", remaining)
		}
	}
	return entries, nil
}
