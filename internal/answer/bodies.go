package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/filebundle"
	"github.com/pavelanni/plgspl/internal/i18n"
)

// String is a free-text answer. Empty Context or Expected fall back to the
// default text.
type String struct {
	Context  string
	Expected string
	Answer   string
}

func (*String) Kind() Kind { return KindString }

func (s *String) renderContext(_ context.Context, d *document.Document) bool {
	if s.Context == "" {
		return false
	}
	d.Body(s.Context)
	return true
}

func (s *String) renderExpected(_ context.Context, d *document.Document) bool {
	if s.Expected == "" {
		return false
	}
	d.Body(s.Expected)
	return true
}

func (s *String) renderAnswer(_ context.Context, d *document.Document, _ config.Config) error {
	d.Body(s.Answer)
	return nil
}

func (*String) renderTemplate(context.Context, *document.Document, config.Config) error {
	return nil
}

// Option is one multiple-choice option descriptor.
type Option struct {
	Key   string
	Text  string
	HTML  string
	Value any
	Raw   json.RawMessage
}

// OptionFrom reads an option descriptor from a decoded JSON value. A bare
// string is taken as an option key.
func OptionFrom(v any) Option {
	raw, _ := json.Marshal(v)
	o := Option{Raw: raw}
	switch t := v.(type) {
	case string:
		o.Key = t
	case map[string]any:
		o.Key = stringField(t, "key")
		o.HTML = stringField(t, "html")
		o.Text = stringField(t, "text")
		o.Value = t["value"]
	}
	return o
}

func stringField(m map[string]any, name string) string {
	s, _ := m[name].(string)
	return s
}

func (o Option) render(d *document.Document) {
	prefix := ""
	if o.Key != "" {
		prefix = "(" + o.Key + ") "
	}
	switch {
	case o.HTML != "":
		d.HTML(prefix + o.HTML)
	case o.Text != "":
		d.Body(prefix + o.Text)
	case o.Key != "" && o.Value != nil:
		d.Body(o.Key + ": " + FormatValue(o.Value))
	case o.Key != "":
		d.Body(prefix)
	default:
		d.Code(string(o.Raw))
	}
}

// Choice is a multiple-choice answer.
type Choice struct {
	Context  []Option
	Expected []Option
	Given    []Option
}

func (*Choice) Kind() Kind { return KindChoice }

func renderOptions(d *document.Document, opts []Option) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		o.render(d)
	}
	return true
}

func (c *Choice) renderContext(_ context.Context, d *document.Document) bool {
	return renderOptions(d, c.Context)
}

func (c *Choice) renderExpected(_ context.Context, d *document.Document) bool {
	return renderOptions(d, c.Expected)
}

func (c *Choice) renderAnswer(ctx context.Context, d *document.Document, _ config.Config) error {
	if !renderOptions(d, c.Given) {
		d.Body(i18n.T(ctx, "NoAnswer"))
	}
	return nil
}

func (*Choice) renderTemplate(context.Context, *document.Document, config.Config) error {
	return nil
}

// Array is a vector-valued answer; Expected and Given are stringified lists.
type Array struct {
	Expected string
	Given    string
}

func (*Array) Kind() Kind { return KindArray }

func (*Array) renderContext(context.Context, *document.Document) bool { return false }

func (a *Array) renderExpected(_ context.Context, d *document.Document) bool {
	if a.Expected == "" {
		return false
	}
	d.Code(a.Expected)
	return true
}

func (a *Array) renderAnswer(_ context.Context, d *document.Document, _ config.Config) error {
	d.Code(a.Given)
	return nil
}

func (*Array) renderTemplate(context.Context, *document.Document, config.Config) error {
	return nil
}

// Symbolic is a single expression with its free variables. The answer key
// is not rendered.
type Symbolic struct {
	Value     string
	Variables []string
}

func (*Symbolic) Kind() Kind { return KindSymbolic }

func (*Symbolic) renderContext(context.Context, *document.Document) bool { return false }

func (*Symbolic) renderExpected(context.Context, *document.Document) bool { return false }

func (s *Symbolic) renderAnswer(ctx context.Context, d *document.Document, _ config.Config) error {
	d.Code(s.Value)
	if len(s.Variables) > 0 {
		d.Body(i18n.Td(ctx, "Variables", map[string]any{"Vars": strings.Join(s.Variables, ", ")}))
	}
	return nil
}

func (*Symbolic) renderTemplate(context.Context, *document.Document, config.Config) error {
	return nil
}

// File bundles uploaded files; each file starts on its own page and gets
// PerFile pages whether or not the student uploaded it.
type File struct {
	Bundle  *filebundle.Bundle
	Names   []string
	PerFile int
}

func (*File) Kind() Kind { return KindFile }

func (*File) renderContext(context.Context, *document.Document) bool { return true }

func (*File) renderExpected(context.Context, *document.Document) bool { return true }

func (f *File) renderAnswer(ctx context.Context, d *document.Document, cfg config.Config) error {
	return f.renderFiles(ctx, d, cfg, false)
}

func (f *File) renderTemplate(ctx context.Context, d *document.Document, cfg config.Config) error {
	return f.renderFiles(ctx, d, cfg, true)
}

func (f *File) renderFiles(ctx context.Context, d *document.Document, cfg config.Config, template bool) error {
	for i, name := range f.Names {
		if i > 0 {
			d.AddPage()
		}
		if err := f.Bundle.Render(ctx, d, cfg, name, template, f.PerFile); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue renders a decoded JSON value as text: strings verbatim,
// everything else as compact JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
