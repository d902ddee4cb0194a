// Package assemble decomposes one student's raw answer data for a question
// into the ordered parts that get rendered.
package assemble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pavelanni/plgspl/internal/answer"
	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/filebundle"
	"github.com/pavelanni/plgspl/internal/i18n"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
)

// FilePartKey labels the part that bundles uploaded files.
const FilePartKey = "files"

// Input is the raw material for one student question.
type Input struct {
	Question      *registry.Question
	Params        string
	TrueAnswer    string
	Submitted     string
	PartialScores string
	Bundle        *filebundle.Bundle
}

// Result is the assembled question.
type Result struct {
	Parts []answer.Part
	// Scores holds the resolved score of every scored part, keyed by part name.
	Scores map[string]model.PartialScore
}

type blob struct {
	keys   []string
	values map[string]any
}

func decodeBlob(name, raw string) (blob, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return blob{values: map[string]any{}}, nil
	}
	keys, err := orderedKeys([]byte(raw))
	if err != nil {
		return blob{}, fmt.Errorf("decode %s: %w", name, err)
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	values := map[string]any{}
	if err := dec.Decode(&values); err != nil {
		return blob{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return blob{keys: keys, values: values}, nil
}

// orderedKeys returns the top-level keys of a JSON object in document order.
func orderedKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not a JSON object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if _, err := dec.Token(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return keys, nil
}

func decodeScores(raw string) ([]string, map[string]model.PartialScore, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, map[string]model.PartialScore{}, nil
	}
	keys, err := orderedKeys([]byte(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("decode partial scores: %w", err)
	}
	scores := map[string]model.PartialScore{}
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, nil, fmt.Errorf("decode partial scores: %w", err)
	}
	return keys, scores, nil
}

// expectedNames picks the part iteration order: the explicit parts filter,
// else the partial score keys, else the submitted answer keys. Keys starting
// with an underscore are bookkeeping, not parts.
func expectedNames(q *registry.Question, scoreKeys, submittedKeys []string) []string {
	src := q.Parts
	if len(src) == 0 {
		src = scoreKeys
	}
	if len(src) == 0 {
		src = submittedKeys
	}
	names := make([]string, 0, len(src))
	for _, n := range src {
		if strings.HasPrefix(n, "_") || !q.AcceptsPart(n) {
			continue
		}
		names = append(names, n)
	}
	return names
}

// Build assembles the parts of one student question.
func Build(ctx context.Context, in Input, cfg config.Config) (Result, error) {
	q := in.Question
	params, err := decodeBlob("params", in.Params)
	if err != nil {
		return Result{}, err
	}
	truth, err := decodeBlob("true answer", in.TrueAnswer)
	if err != nil {
		return Result{}, err
	}
	given, err := decodeBlob("submitted answer", in.Submitted)
	if err != nil {
		return Result{}, err
	}
	scoreKeys, partial, err := decodeScores(in.PartialScores)
	if err != nil {
		return Result{}, err
	}

	res := Result{Scores: map[string]model.PartialScore{}}
	add := func(name string, ps model.PartialScore, body answer.Body) {
		index := len(res.Parts) + 1
		part := answer.New(q.Number, index, name, ps.Value(), ps.Weight, body, cfg.Budgets)
		part.Graded = ps.Graded()
		res.Parts = append(res.Parts, part)
		res.Scores[name] = ps
	}

	for _, name := range expectedNames(q, scoreKeys, given.keys) {
		// without a partial score entry the grader decides
		ps, ok := partial[name]
		if !ok {
			ps = model.PartialScore{Weight: 1}
		}
		v, ok := given.values[name]
		if !ok {
			ps = model.Scored(0, ps.Weight)
			add(name, ps, &answer.String{
				Context:  answer.FormatValue(params.values[name]),
				Expected: answer.FormatValue(truth.values[name]),
				Answer:   i18n.T(ctx, "NoAnswer"),
			})
			continue
		}
		body := partBody(name, v, params.values[name], truth.values[name], cfg)
		if body == nil {
			slog.Warn("unsupported answer shape, part skipped",
				"question", q.ID, "part", name, "type", fmt.Sprintf("%T", v))
			continue
		}
		add(name, ps, body)
	}

	for _, name := range requiredFiles(params.values[cfg.RequiredFilesParam]) {
		q.AddFileName(name)
	}
	if len(q.FileNames) > 0 {
		names := append([]string(nil), q.FileNames...)
		index := len(res.Parts) + 1
		res.Parts = append(res.Parts, answer.New(q.Number, index, FilePartKey, 0, 0,
			&answer.File{Bundle: in.Bundle, Names: names, PerFile: cfg.Budgets.File}, cfg.Budgets))
	}
	return res, nil
}

func partBody(name string, v, param, truth any, cfg config.Config) answer.Body {
	if strings.HasPrefix(name, cfg.ChoicePrefix) {
		pl, pok := param.([]any)
		tl, tok := truth.([]any)
		if pok && tok {
			return &answer.Choice{
				Context:  options(pl),
				Expected: options(tl),
				Given:    givenOptions(v),
			}
		}
	}

	switch t := v.(type) {
	case []any:
		return &answer.Array{Expected: answer.FormatValue(truth), Given: answer.FormatValue(t)}
	case map[string]any:
		switch t["_type"] {
		case "sympy":
			return &answer.Symbolic{Value: answer.FormatValue(t["_value"]), Variables: stringList(t["_variables"])}
		case "ndarray":
			return &answer.Array{Expected: firstRowText(truth), Given: firstRowText(t)}
		}
		return nil
	}
	return &answer.String{
		Context:  answer.FormatValue(param),
		Expected: answer.FormatValue(truth),
		Answer:   answer.FormatValue(v),
	}
}

func options(list []any) []answer.Option {
	out := make([]answer.Option, 0, len(list))
	for _, v := range list {
		out = append(out, answer.OptionFrom(v))
	}
	return out
}

func givenOptions(v any) []answer.Option {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return options(t)
	}
	return []answer.Option{answer.OptionFrom(v)}
}

// firstRowText renders the first row of a tagged numeric array. Untagged
// values are formatted as they are.
func firstRowText(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return answer.FormatValue(v)
	}
	value := m["_value"]
	if rows, ok := value.([]any); ok && len(rows) > 0 {
		if _, nested := rows[0].([]any); nested {
			return answer.FormatValue(rows[0])
		}
	}
	return answer.FormatValue(value)
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, answer.FormatValue(item))
	}
	return out
}

func requiredFiles(v any) []string {
	switch t := v.(type) {
	case []any:
		return stringList(t)
	case string:
		var names []string
		for _, n := range strings.Split(t, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return names
	}
	return nil
}

// RequiredFiles returns the file names the params blob declares under the
// configured required-files key.
func RequiredFiles(params string, cfg config.Config) []string {
	b, err := decodeBlob("params", params)
	if err != nil {
		return nil
	}
	return requiredFiles(b.values[cfg.RequiredFilesParam])
}
