// Package registry maps question ids and their variant ids to shared
// question descriptors in canonical render order.
package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Question describes one logical question and all its variants.
type Question struct {
	ID     string
	Number int // 1-based, used in part headers
	// Parts restricts which part names are rendered; empty accepts all.
	Parts []string
	// FileNames lists expected file parts, in discovery order.
	FileNames    []string
	NumberChoose int
	Variants     []string
}

// AcceptsPart reports whether a part name passes the parts filter.
func (q *Question) AcceptsPart(name string) bool {
	if len(q.Parts) == 0 {
		return true
	}
	for _, p := range q.Parts {
		if p == name {
			return true
		}
	}
	return false
}

// AddFileName appends a file part name unless it is already known.
func (q *Question) AddFileName(name string) bool {
	for _, f := range q.FileNames {
		if f == name {
			return false
		}
	}
	q.FileNames = append(q.FileNames, name)
	return true
}

// Registry is an indexed arena of questions plus a lookup from every id and
// variant id to its question's index.
type Registry struct {
	questions []*Question
	index     map[string]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Add registers q under its id and every variant. The number is assigned
// from the registration order.
func (r *Registry) Add(q Question) (*Question, error) {
	if len(q.Variants) == 0 {
		q.Variants = []string{q.ID}
	}
	if q.NumberChoose <= 0 {
		q.NumberChoose = 1
	}
	if q.NumberChoose > len(q.Variants) {
		return nil, fmt.Errorf("question %s: numberChoose %d exceeds %d variants", q.ID, q.NumberChoose, len(q.Variants))
	}
	ids := append([]string{q.ID}, q.Variants...)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.index[id]; ok {
			return nil, fmt.Errorf("question id %s registered twice", id)
		}
	}
	q.Number = len(r.questions) + 1
	stored := &q
	r.questions = append(r.questions, stored)
	for id := range seen {
		r.index[id] = len(r.questions) - 1
	}
	return stored, nil
}

// Get returns the question registered under id or any of its variants.
func (r *Registry) Get(id string) *Question {
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	return r.questions[i]
}

// Questions returns the questions in canonical render order.
func (r *Registry) Questions() []*Question {
	return r.questions
}

// QuestionCount returns the number of distinct questions.
func (r *Registry) QuestionCount() int {
	return len(r.questions)
}

// VariantCount returns the number of ids that resolve to a question.
func (r *Registry) VariantCount() int {
	return len(r.index)
}

//go:embed assessment.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func assessmentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("assessment.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("assessment.schema.json")
	})
	return schema, schemaErr
}

type rawAssessment struct {
	Zones []struct {
		Title     string `json:"title"`
		Questions []struct {
			ID           string `json:"id"`
			Alternatives []struct {
				ID string `json:"id"`
			} `json:"alternatives"`
			NumberChoose int      `json:"numberChoose"`
			Parts        []string `json:"parts"`
			Files        []string `json:"files"`
		} `json:"questions"`
	} `json:"zones"`
}

// Parse validates an assessment document and builds its registry.
func Parse(data []byte) (*Registry, error) {
	sch, err := assessmentSchema()
	if err != nil {
		return nil, fmt.Errorf("compile assessment schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate assessment: %w", err)
	}

	var raw rawAssessment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}

	r := New()
	for _, z := range raw.Zones {
		for _, rq := range z.Questions {
			q := Question{
				ID:           rq.ID,
				Parts:        rq.Parts,
				FileNames:    append([]string(nil), rq.Files...),
				NumberChoose: rq.NumberChoose,
			}
			if len(rq.Alternatives) > 0 {
				for _, alt := range rq.Alternatives {
					q.Variants = append(q.Variants, alt.ID)
				}
				q.ID = q.Variants[0]
				if q.NumberChoose == 0 {
					q.NumberChoose = len(q.Variants)
				}
			}
			if _, err := r.Add(q); err != nil {
				return nil, fmt.Errorf("zone %q: %w", z.Title, err)
			}
		}
	}
	slog.Info("parsed assessment config",
		"questions", r.QuestionCount(),
		"variants", r.VariantCount(),
	)
	return r, nil
}

// Load reads and parses the assessment file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}
