// Package answer models one rendered piece of a question. Every part shares
// one render protocol; the kind-specific content lives in a Body, and the
// set of bodies is closed to this package.
package answer

import (
	"context"
	"fmt"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/i18n"
)

// Kind names a body variant.
type Kind string

const (
	KindString   Kind = "string"
	KindChoice   Kind = "choice"
	KindArray    Kind = "array"
	KindSymbolic Kind = "symbolic"
	KindFile     Kind = "file"
)

// Body is the kind-specific content of a part. The render methods report
// whether they drew anything so the part can fall back to default text.
type Body interface {
	Kind() Kind
	renderContext(ctx context.Context, d *document.Document) bool
	renderExpected(ctx context.Context, d *document.Document) bool
	renderAnswer(ctx context.Context, d *document.Document, cfg config.Config) error
	renderTemplate(ctx context.Context, d *document.Document, cfg config.Config) error
}

// Part is one rendered piece of a question.
type Part struct {
	Question int // question number
	Index    int // 1-based within the question
	Key      string
	Score    float64 // fraction in [0, 1]
	Graded   bool    // false leaves the anchor blank for the grader
	Weight   float64
	MaxPages int
	Body     Body
}

// New builds a graded part whose page budget is derived from the body kind.
func New(question, index int, key string, score, weight float64, body Body, budgets config.Budgets) Part {
	return Part{
		Question: question,
		Index:    index,
		Key:      key,
		Score:    score,
		Graded:   true,
		Weight:   weight,
		MaxPages: budgetFor(body, budgets),
		Body:     body,
	}
}

func budgetFor(body Body, b config.Budgets) int {
	pages := b.Default
	switch v := body.(type) {
	case *String:
		pages = b.String
	case *File:
		pages = v.PerFile * len(v.Names)
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

// File parts carry no partial score; the grader fills their box.
func (p *Part) blankAnchor(template bool) bool {
	return template || !p.Graded || p.Body.Kind() == KindFile
}

// Tier is the anchor style the part renders with.
func (p *Part) Tier(template bool) Tier {
	return AnchorTier(p.Score, p.blankAnchor(template))
}

// Label identifies the part in diagnostics.
func (p *Part) Label() string {
	return fmt.Sprintf("Question %d.%d: %s", p.Question, p.Index, p.Key)
}

// Render draws the part on a fresh page and pads it to exactly MaxPages
// pages. In template mode the anchor is blank and the template answer
// replaces the given answer.
func (p *Part) Render(ctx context.Context, d *document.Document, cfg config.Config, template bool) error {
	d.AddPage()
	start := d.PageNo()

	d.Header(i18n.Td(ctx, "PartHeader", map[string]any{
		"Number": p.Question,
		"Part":   p.Index,
		"Key":    p.Key,
	}))
	if !p.Body.renderContext(ctx, d) {
		d.Body(i18n.T(ctx, "NoContext"))
	}
	d.Divider()
	renderAnchor(d, cfg.Anchors, p.Score, p.blankAnchor(template))
	d.Divider()
	if !p.Body.renderExpected(ctx, d) {
		d.Body(i18n.T(ctx, "NoExpected"))
	}
	d.Divider()

	var err error
	if template {
		err = p.Body.renderTemplate(ctx, d, cfg)
	} else {
		err = p.Body.renderAnswer(ctx, d, cfg)
	}
	if err != nil {
		return err
	}
	return d.PadUntil(ctx, start+p.MaxPages-1, p.Label())
}
