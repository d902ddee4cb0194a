package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/plgspl/internal/answer"
	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/i18n"
	"github.com/pavelanni/plgspl/internal/ingest"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
	"github.com/pavelanni/plgspl/internal/submission"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeRecorder struct {
	plan     [2]int
	shards   []model.ShardInfo
	students []string
}

func (f *fakeRecorder) RecordPlan(_ context.Context, pages, perFile int) error {
	f.plan = [2]int{pages, perFile}
	return nil
}

func (f *fakeRecorder) RecordShard(_ context.Context, s model.ShardInfo) error {
	f.shards = append(f.shards, s)
	return nil
}

func (f *fakeRecorder) RecordSummary(_ context.Context, id string, _ []model.SummaryEntry) error {
	f.students = append(f.students, id)
	return nil
}

// cohort builds n submissions of one single-part question, so every
// submission renders to a front page plus one part page.
func cohort(t *testing.T, n int) (*registry.Registry, []*submission.Submission) {
	t.Helper()
	reg := registry.New()
	q, err := reg.Add(registry.Question{ID: "q1"})
	if err != nil {
		t.Fatal(err)
	}
	var subs []*submission.Submission
	for i := 0; i < n; i++ {
		s := submission.New(fmt.Sprintf("s%d", i))
		p := answer.New(q.Number, 1, "a", 1, 1, &answer.String{Answer: "ok"}, config.Default().Budgets)
		s.Add(&submission.StudentQuestion{Question: q, Variant: "q1", Parts: []answer.Part{p}})
		subs = append(subs, s)
	}
	return reg, subs
}

func TestShardSizes(t *testing.T) {
	tests := []struct {
		name     string
		students int
		budget   int
		want     [][2]int
	}{
		{"exact multiple", 4, 4, [][2]int{{0, 1}, {2, 3}}},
		{"final partial shard", 5, 5, [][2]int{{0, 1}, {2, 3}, {4, 4}}},
		{"fewer than one shard", 2, 200, [][2]int{{0, 1}}},
		{"one per shard", 3, 2, [][2]int{{0, 0}, {1, 1}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, subs := cohort(t, tt.students)
			cfg := config.Default()
			cfg.PagesPerFile = tt.budget
			rec := &fakeRecorder{}
			out := filepath.Join(t.TempDir(), "exam")
			res, err := New(reg, Options{OutPrefix: out, Config: cfg, Recorder: rec}).Run(context.Background(), subs)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.PagesPerSubmission != 2 {
				t.Fatalf("pages per submission = %d, want 2", res.PagesPerSubmission)
			}
			if want := tt.budget / 2; res.SubmissionsPerFile != want {
				t.Errorf("submissions per file = %d, want %d", res.SubmissionsPerFile, want)
			}
			var got [][2]int
			for _, s := range res.Shards {
				got = append(got, [2]int{s.FirstStudent, s.LastStudent})
				if s.Pages != 2*s.Students() {
					t.Errorf("shard %d has %d pages, want %d", s.Index, s.Pages, 2*s.Students())
				}
				if _, err := os.Stat(s.Path); err != nil {
					t.Errorf("shard file: %v", err)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("shard ranges mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(res.Shards, rec.shards); diff != "" {
				t.Errorf("recorded shards mismatch (-want +got):\n%s", diff)
			}
			if rec.plan != [2]int{2, tt.budget / 2} {
				t.Errorf("recorded plan = %v", rec.plan)
			}

			summary, err := ReadSummary(res.SummaryPath)
			if err != nil {
				t.Fatalf("ReadSummary: %v", err)
			}
			if len(summary) != tt.students {
				t.Errorf("summary has %d students, want %d", len(summary), tt.students)
			}
			if _, err := os.Stat(res.SamplePath); err != nil {
				t.Errorf("sample file: %v", err)
			}
		})
	}
}

func TestBudgetUnsatisfiable(t *testing.T) {
	reg, subs := cohort(t, 2)
	cfg := config.Default()
	cfg.PagesPerFile = 1
	out := filepath.Join(t.TempDir(), "exam")
	_, err := New(reg, Options{OutPrefix: out, Config: cfg}).Run(context.Background(), subs)
	if !errors.Is(err, ErrBudgetUnsatisfiable) {
		t.Fatalf("err = %v, want ErrBudgetUnsatisfiable", err)
	}
}

// Three students, one question with two parts of one page each. A answers
// both, B only the first, and C's first answer runs past its page.
func TestOverflowHaltsRun(t *testing.T) {
	reg := registry.New()
	if _, err := reg.Add(registry.Question{ID: "q1", Parts: []string{"p1", "p2"}}); err != nil {
		t.Fatal(err)
	}
	long := strings.Repeat("line\\n", 100)
	recs := []model.Record{
		{StudentID: "A", QuestionID: "q1", SubmittedAnswer: `{"p1": "x", "p2": "y"}`, PartialScores: `{"p1": {"score": 1, "weight": 1}, "p2": {"score": 0.5, "weight": 1}}`},
		{StudentID: "B", QuestionID: "q1", SubmittedAnswer: `{"p1": "x"}`},
		{StudentID: "C", QuestionID: "q1", SubmittedAnswer: `{"p1": "` + long + `", "p2": "y"}`},
		{StudentID: "D", QuestionID: "q1", SubmittedAnswer: `{"p1": "x", "p2": "y"}`},
	}
	cfg := config.Default()
	subs, err := ingest.Build(context.Background(), recs, reg, "", cfg)
	if err != nil {
		t.Fatalf("ingest.Build: %v", err)
	}

	b := subs[1].Get("q1")
	if len(b.Parts) != 2 {
		t.Fatalf("B has %d parts, want 2", len(b.Parts))
	}
	if got := b.Parts[1].Body.(*answer.String).Answer; got != "No answer provided." {
		t.Errorf("B part 2 answer = %q", got)
	}

	rec := &fakeRecorder{}
	a := New(reg, Options{OutPrefix: filepath.Join(t.TempDir(), "exam"), Config: cfg, Recorder: rec})
	res, err := a.Run(context.Background(), subs)
	if !errors.Is(err, document.ErrPageOverflow) {
		t.Fatalf("err = %v, want ErrPageOverflow", err)
	}
	var oe *document.OverflowError
	if !errors.As(err, &oe) || oe.Label != "Question 1.1: p1" {
		t.Errorf("overflow = %v, want label of C's first part", err)
	}
	if res.PagesPerSubmission != 3 {
		t.Errorf("pages per submission = %d, want 3", res.PagesPerSubmission)
	}
	if diff := cmp.Diff([]string{"A", "B"}, rec.students); diff != "" {
		t.Errorf("rendered students mismatch (-want +got):\n%s", diff)
	}
	if len(res.Shards) != 0 {
		t.Errorf("%d shards written, want none", len(res.Shards))
	}
	if _, err := os.Stat(a.IncompletePath()); err != nil {
		t.Errorf("incomplete file: %v", err)
	}
	if _, err := os.Stat(a.SummaryPath()); !os.IsNotExist(err) {
		t.Errorf("summary must not be written on abort, stat err = %v", err)
	}
}
