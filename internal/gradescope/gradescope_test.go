package gradescope

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/plgspl/internal/model"
)

func TestWriteClassList(t *testing.T) {
	recs := []model.Record{
		{StudentID: "111", UID: "a@x.edu", QuestionID: "q1"},
		{StudentID: "222", QuestionID: "q1"},
		{StudentID: "111", UID: "a@x.edu", QuestionID: "q2"},
	}
	var buf bytes.Buffer
	if err := WriteClassList(&buf, recs); err != nil {
		t.Fatalf("WriteClassList: %v", err)
	}
	want := "Full Name,Email,SID\na@x.edu,a@x.edu,111\n222,,222\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("class list mismatch (-want +got):\n%s", diff)
	}
}

const export = `Name,SID,Email,Total Score,Max Points,Status,Submission ID,Submission Time,Lateness (H:M:S),View Count,1.1: a (1.0 pts),1.2: b (1.0 pts),2.1: files (2.0 pts)
Ann,111,a@x.edu,3,4,Graded,1,t,0,1,1.0,0.5,1.5
Bob,222,b@x.edu,0,4,Missing,,,,,,,
Cid,333,c@x.edu,2,4,Graded,2,t,0,1,1.0,1.0,
`

func TestMerge(t *testing.T) {
	summary := model.Summary{
		// a is auto graded, b waits for the manual grade
		"111": {{Variant: "q1", Scores: `{"a":{"score":1,"weight":1},"b":{"score":null,"weight":3}}`}, {Variant: "q2b", Scores: `{}`}},
		"222": {{Variant: "q1", Scores: `{}`}, {Variant: "q2a", Scores: `{}`}},
		"333": {{Variant: "q1", Scores: `{"a":{"score":0.5,"weight":1}}`}, {Variant: "q2a", Scores: "null"}},
	}
	scores, err := Merge(summary, strings.NewReader(export), 1)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := []Score{
		{UID: "a@x.edu", Instance: 1, QID: "q1", ScorePerc: 81.25, Feedback: "25 + 1.5/2 on gradescope"},
		{UID: "a@x.edu", Instance: 1, QID: "q2b", ScorePerc: 75, Feedback: "0 + 1.5/2 on gradescope"},
		{UID: "c@x.edu", Instance: 1, QID: "q1", ScorePerc: 50, Feedback: "50 + 2/2 on gradescope"},
	}
	if diff := cmp.Diff(want, scores); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := WriteScores(&buf, scores[:1]); err != nil {
		t.Fatalf("WriteScores: %v", err)
	}
	if got := buf.String(); got != "uid,instance,qid,score_perc,feedback\na@x.edu,1,q1,81.25,25 + 1.5/2 on gradescope\n" {
		t.Errorf("WriteScores = %q", got)
	}
}

func TestShares(t *testing.T) {
	tests := []struct {
		name         string
		scores       string
		auto, manual float64
	}{
		{"no parts is all manual", `{}`, 0, 100},
		{"all auto graded", `{"a":{"score":0.5,"weight":2}}`, 50, 0},
		{"mixed", `{"a":{"score":1,"weight":1},"b":{"score":null,"weight":3}}`, 25, 75},
		{"manual share rounds up", `{"a":{"score":0,"weight":2},"b":{"score":null,"weight":1}}`, 0, 34},
		{"exact share stays", `{"a":{"score":1,"weight":3},"b":{"score":null,"weight":7}}`, 30, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auto, manual, err := shares(model.SummaryEntry{Variant: "q", Scores: tt.scores})
			if err != nil {
				t.Fatalf("shares: %v", err)
			}
			if math.Abs(auto-tt.auto) > 1e-9 || manual != tt.manual {
				t.Errorf("shares = %v, %v; want %v, %v", auto, manual, tt.auto, tt.manual)
			}
		})
	}
}

func TestMergeSlotMismatch(t *testing.T) {
	summary := model.Summary{"111": {{Variant: "q1", Scores: "{}"}}}
	if _, err := Merge(summary, strings.NewReader(export), 1); err == nil {
		t.Error("expected error when rendered slots and export questions differ")
	}
}

func TestMergeHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no questions", "Name,SID,Email\n"},
		{"no sid", "Name,Email,1.1: a (1 pts)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Merge(model.Summary{}, strings.NewReader(tt.header), 1); err == nil {
				t.Error("expected header error")
			}
		})
	}
}
