// Package document wraps the PDF drawing primitives used by every renderer
// and enforces the per-part page budgets.
package document

import (
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/pavelanni/plgspl/internal/config"
)

// Document is one output PDF under construction.
type Document struct {
	pdf *fpdf.Fpdf
	cfg config.Config
}

// New creates an empty document laid out according to cfg.
func New(cfg config.Config) *Document {
	pdf := fpdf.New("P", "mm", cfg.Page.Size, "")
	pdf.SetMargins(cfg.Page.Margin, cfg.Page.Margin, cfg.Page.Margin)
	pdf.SetAutoPageBreak(true, cfg.Page.Margin)
	pdf.SetCreator("plgspl", true)
	return &Document{pdf: pdf, cfg: cfg}
}

// PageNo returns the current page number, 0 before the first page.
func (d *Document) PageNo() int {
	return d.pdf.PageNo()
}

// AddPage starts a new page and resets the body font.
func (d *Document) AddPage() {
	d.pdf.AddPage()
	d.setFont(d.cfg.Fonts.Body)
}

func (d *Document) setFont(f config.Font) {
	d.pdf.SetFont(f.Family, f.Style, f.Size)
}

// width is the text width: the configured width or the full content width.
func (d *Document) width() float64 {
	if d.cfg.Page.Width > 0 {
		return d.cfg.Page.Width
	}
	pw, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	return pw - left - right
}

// Title writes a large centered line, used on front pages.
func (d *Document) Title(s string) {
	d.setFont(d.cfg.Fonts.Title)
	d.pdf.Ln(60)
	d.pdf.MultiCell(d.width(), 20, Sanitize(s), "", "C", false)
	d.setFont(d.cfg.Fonts.Body)
}

// Header writes a part header underlined in red.
func (d *Document) Header(s string) {
	s = Sanitize(s)
	d.setFont(d.cfg.Fonts.Header)
	d.pdf.MultiCell(d.width(), d.cfg.Page.LineHeight*2, s, "", "L", false)
	w := d.pdf.GetStringWidth(s)
	if limit := d.width(); w > limit {
		w = limit
	}
	left, _, _, _ := d.pdf.GetMargins()
	y := d.pdf.GetY()
	d.pdf.SetLineWidth(0.5)
	d.pdf.SetDrawColor(255, 0, 0)
	d.pdf.Line(left, y, left+2+w, y)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.Ln(d.cfg.Page.LineHeight)
	d.setFont(d.cfg.Fonts.Body)
}

// Subheader writes a section label.
func (d *Document) Subheader(s string) {
	d.setFont(d.cfg.Fonts.Subheader)
	d.pdf.MultiCell(d.width(), d.cfg.Page.LineHeight*1.5, Sanitize(s), "", "L", false)
	d.setFont(d.cfg.Fonts.Body)
}

// Body writes wrapped body text.
func (d *Document) Body(s string) {
	d.setFont(d.cfg.Fonts.Body)
	d.pdf.MultiCell(d.width(), d.cfg.Page.LineHeight, Sanitize(s), "", "L", false)
}

// Code writes monospaced text line by line, wrapping lines wider than the page.
func (d *Document) Code(s string) {
	d.setFont(d.cfg.Fonts.Code)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		line = Sanitize(line)
		if strings.TrimSpace(line) == "" {
			d.pdf.Ln(d.cfg.Page.LineHeight)
			continue
		}
		d.pdf.MultiCell(d.width(), d.cfg.Page.LineHeight, line, "", "L", false)
	}
	d.setFont(d.cfg.Fonts.Body)
}

// Divider draws a thin full-width rule and advances the cursor.
func (d *Document) Divider() {
	pw, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	y := d.pdf.GetY() + 1
	d.pdf.SetLineWidth(0.2)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.Line(left, y, pw-right, y)
	d.pdf.Ln(3)
}

// Box draws a filled, bordered, full-width box with a centered label.
func (d *Document) Box(style config.AnchorStyle, label string) {
	d.pdf.SetFillColor(style.Fill[0], style.Fill[1], style.Fill[2])
	d.setFont(d.cfg.Fonts.Subheader)
	d.pdf.CellFormat(d.width(), style.Height, Sanitize(label), "1", 1, "C", true, 0, "")
	d.setFont(d.cfg.Fonts.Body)
}

// Image embeds an image scaled to the content width, shrunk further when it
// would not fit on one page. imageType is one of PNG, JPG or GIF.
// A failed embed leaves the document usable and returns the error.
func (d *Document) Image(path, imageType string) error {
	opts := fpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	info := d.pdf.RegisterImageOptions(path, opts)
	if err := d.pdf.Error(); err != nil || info == nil {
		d.pdf.ClearError()
		return err
	}
	w := d.width()
	h := w
	if info.Width() > 0 {
		h = w * info.Height() / info.Width()
	}
	_, ph := d.pdf.GetPageSize()
	_, top, _, bottom := d.pdf.GetMargins()
	if maxH := ph - top - bottom - 4*d.cfg.Page.LineHeight; h > maxH {
		w = w * maxH / h
		h = maxH
	}
	left, _, _, _ := d.pdf.GetMargins()
	d.pdf.ImageOptions(path, left, d.pdf.GetY(), w, h, true, opts, 0, "")
	if err := d.pdf.Error(); err != nil {
		d.pdf.ClearError()
		return err
	}
	return nil
}

// Err returns the first drawing error, if any.
func (d *Document) Err() error {
	return d.pdf.Error()
}

// Output writes the document to w and closes it.
func (d *Document) Output(w io.Writer) error {
	return d.pdf.Output(w)
}

// WriteFile writes the document to path and closes it.
func (d *Document) WriteFile(path string) error {
	return d.pdf.OutputFileAndClose(path)
}
