package document

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var typography = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201c", `"`, "\u201d", `"`,
	"\u2013", "-", "\u2014", "-", "\u2212", "-", "\u2026", "...",
	"\u00a0", " ", "\u00d7", "x", "\u00b7", "*",
)

// Sanitize reduces s to printable ASCII plus newlines. Accents are folded
// to their base letters, tabs become four spaces, anything else is dropped.
func Sanitize(s string) string {
	s = typography.Replace(s)
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
		case r == '\t':
			b.WriteString("    ")
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case r != '\r' && unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

var (
	htmlPolicyOnce sync.Once
	htmlPolicy     *bluemonday.Policy

	blockEnd   = regexp.MustCompile(`(?i)</(p|h[1-6]|li|pre|blockquote|tr|div|ul|ol)>|<hr\s*/?>`)
	basicNames = strings.NewReplacer(
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<li>", "- ",
	)
)

// basicSanitizer keeps only the tags the PDF HTML writer understands.
func basicSanitizer() *bluemonday.Policy {
	htmlPolicyOnce.Do(func() {
		policy := bluemonday.NewPolicy()
		policy.AllowElements("b", "i", "u", "br")
		htmlPolicy = policy
	})
	return htmlPolicy
}

// toBasicHTML rewrites arbitrary HTML into the b/i/u/br subset. Text stays
// entity-escaped so a literal angle bracket cannot open a tag.
func toBasicHTML(s string) string {
	s = basicNames.Replace(s)
	s = blockEnd.ReplaceAllString(s, "<br>")
	return Sanitize(basicSanitizer().Sanitize(s))
}

// basicSegments tokenizes the reduced markup of s and decodes entities in
// the text segments only.
func basicSegments(s string) []fpdf.HTMLBasicSegmentType {
	segs := fpdf.HTMLBasicTokenize(toBasicHTML(s))
	for i := range segs {
		switch segs[i].Cat {
		case 'T':
			segs[i].Str = Sanitize(html.UnescapeString(segs[i].Str))
		default:
			segs[i].Str = strings.TrimSpace(strings.TrimSuffix(segs[i].Str, "/"))
		}
	}
	return segs
}

// HTML writes rich markup reduced to bold, italic, underline and line breaks.
func (d *Document) HTML(s string) {
	d.setFont(d.cfg.Fonts.Body)
	lh := d.cfg.Page.LineHeight
	var bold, italic, underline int
	restyle := func() {
		style := ""
		if bold > 0 {
			style += "B"
		}
		if italic > 0 {
			style += "I"
		}
		if underline > 0 {
			style += "U"
		}
		d.pdf.SetFont("", style, 0)
	}
	for _, seg := range basicSegments(s) {
		step := 1
		switch seg.Cat {
		case 'T':
			d.pdf.Write(lh, seg.Str)
			continue
		case 'C':
			step = -1
		}
		switch seg.Str {
		case "b":
			bold += step
		case "i":
			italic += step
		case "u":
			underline += step
		case "br":
			if step > 0 {
				d.pdf.Ln(lh)
			}
			continue
		default:
			continue
		}
		restyle()
	}
	d.setFont(d.cfg.Fonts.Body)
	d.pdf.Ln(lh)
}

// Markdown converts src to HTML and writes it.
func (d *Document) Markdown(src []byte) {
	d.HTML(string(markdown.ToHTML(src, nil, nil)))
}
