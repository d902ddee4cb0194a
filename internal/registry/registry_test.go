package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const assessment = `{
  "zones": [
    {"title": "Part A", "questions": [
      {"id": "q1", "parts": ["a", "b"]},
      {"numberChoose": 1, "alternatives": [{"id": "q2v1"}, {"id": "q2v2"}]}
    ]},
    {"title": "Part B", "questions": [
      {"id": "q3", "files": ["main.py"]},
      {"alternatives": [{"id": "q4a"}, {"id": "q4b"}]}
    ]}
  ]
}`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(assessment))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.QuestionCount() != 4 {
		t.Errorf("QuestionCount() = %d, want 4", r.QuestionCount())
	}
	if r.VariantCount() != 6 {
		t.Errorf("VariantCount() = %d, want 6", r.VariantCount())
	}

	var numbers []int
	var ids []string
	for _, q := range r.Questions() {
		numbers = append(numbers, q.Number)
		ids = append(ids, q.ID)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, numbers); diff != "" {
		t.Errorf("numbers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"q1", "q2v1", "q3", "q4a"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	q4 := r.Get("q4b")
	if q4 == nil || q4.NumberChoose != 2 {
		t.Fatalf("q4b: want numberChoose defaulted to 2 alternatives, got %+v", q4)
	}
	if got := r.Get("q3").FileNames; len(got) != 1 || got[0] != "main.py" {
		t.Errorf("q3 files = %v, want [main.py]", got)
	}
}

func TestVariantsShareDescriptor(t *testing.T) {
	r, err := Parse([]byte(assessment))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, b := r.Get("q2v1"), r.Get("q2v2")
	if a == nil || a != b {
		t.Fatalf("variants must resolve to the same descriptor: %p vs %p", a, b)
	}
	a.AddFileName("report.md")
	if len(b.FileNames) != 1 {
		t.Errorf("file name added through one variant not visible through the other")
	}
	if r.Get("missing") != nil {
		t.Error("unknown id should resolve to nil")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no zones", `{}`},
		{"id and alternatives", `{"zones":[{"questions":[{"id":"x","alternatives":[{"id":"y"}]}]}]}`},
		{"neither id nor alternatives", `{"zones":[{"questions":[{"numberChoose":1}]}]}`},
		{"duplicate id", `{"zones":[{"questions":[{"id":"x"},{"id":"x"}]}]}`},
		{"choose too many", `{"zones":[{"questions":[{"numberChoose":3,"alternatives":[{"id":"a"},{"id":"b"}]}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestAcceptsPart(t *testing.T) {
	all := &Question{ID: "q"}
	some := &Question{ID: "q", Parts: []string{"a"}}
	if !all.AcceptsPart("anything") {
		t.Error("empty filter should accept every part")
	}
	if !some.AcceptsPart("a") || some.AcceptsPart("b") {
		t.Error("filter should accept only listed parts")
	}
	if !some.AddFileName("f.py") || some.AddFileName("f.py") {
		t.Error("AddFileName should report only the first insertion")
	}
}
