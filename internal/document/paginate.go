package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/plgspl/internal/i18n"
)

// ErrPageOverflow is wrapped by every OverflowError.
var ErrPageOverflow = errors.New("page budget exceeded")

// OverflowError reports content that ran past its last budgeted page.
// Every following student in the same file would be misaligned, so callers
// treat it as fatal for the whole run.
type OverflowError struct {
	Label string
	Page  int
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: content reached page %d, budget ends at page %d", e.Label, e.Page, e.Limit)
}

func (e *OverflowError) Unwrap() error {
	return ErrPageOverflow
}

// Pad appends exactly one blank filler page.
func (d *Document) Pad(ctx context.Context) {
	d.pdf.AddPage()
	d.Divider()
	d.setFont(d.cfg.Fonts.Body)
	d.pdf.CellFormat(d.width(), d.cfg.Page.LineHeight, Sanitize(i18n.T(ctx, "BlankPage")), "", 1, "C", false, 0, "")
}

// PadUntil appends blank pages until the current page is target. It returns
// an *OverflowError without touching the document when the current page is
// already past target.
func (d *Document) PadUntil(ctx context.Context, target int, label string) error {
	if page := d.PageNo(); page > target {
		return &OverflowError{Label: label, Page: page, Limit: target}
	}
	for d.PageNo() < target {
		d.Pad(ctx)
	}
	return d.Err()
}
