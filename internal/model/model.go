package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one manual grading row: one student's answer to one question.
type Record struct {
	StudentID       string // UIN
	UID             string // login or email, when the export carries it
	QuestionID      string
	SubmissionID    string
	Params          string
	TrueAnswer      string
	SubmittedAnswer string
	PartialScores   string // empty unless the export carries partial credit
}

// Key is the substring uploaded files for this record are named with.
func (r Record) Key() string {
	return r.StudentID + "_" + r.QuestionID + "_" + r.SubmissionID
}

// PartialScore is one entry of the partial_scores map. A nil Score means the
// part has no automatic score and is left to the grader.
type PartialScore struct {
	Score  *float64 `json:"score"`
	Weight float64  `json:"weight"`
}

// Scored returns a PartialScore carrying score.
func Scored(score, weight float64) PartialScore {
	return PartialScore{Score: &score, Weight: weight}
}

// Graded reports whether the part carries an automatic score.
func (p PartialScore) Graded() bool { return p.Score != nil }

// Value returns the score, or 0 when the part is ungraded.
func (p PartialScore) Value() float64 {
	if p.Score == nil {
		return 0
	}
	return *p.Score
}

// SummaryEntry records one rendered question slot of a submission.
// It encodes as a two-element JSON array: [variant, scores_json].
type SummaryEntry struct {
	Variant string
	// Scores is the JSON encoding of map[part]PartialScore, or "null" for
	// slots filled from the template submission.
	Scores string
}

// Template reports whether the slot was filled from the template submission.
func (e SummaryEntry) Template() bool {
	return e.Scores == "" || e.Scores == "null"
}

// PartScores decodes Scores.
func (e SummaryEntry) PartScores() (map[string]PartialScore, error) {
	if e.Template() {
		return nil, nil
	}
	var m map[string]PartialScore
	if err := json.Unmarshal([]byte(e.Scores), &m); err != nil {
		return nil, fmt.Errorf("decode scores for %s: %w", e.Variant, err)
	}
	return m, nil
}

func (e SummaryEntry) MarshalJSON() ([]byte, error) {
	scores := e.Scores
	if scores == "" {
		scores = "null"
	}
	return json.Marshal([2]string{e.Variant, scores})
}

func (e *SummaryEntry) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("summary entry: expected [variant, scores], got %d elements", len(pair))
	}
	e.Variant, e.Scores = pair[0], pair[1]
	return nil
}

// Summary maps a student id to the slots rendered for that student, in render order.
type Summary map[string][]SummaryEntry

// ShardInfo describes one written output file.
type ShardInfo struct {
	Index        int    `json:"index"`
	Path         string `json:"path"`
	FirstStudent int    `json:"first_student"`
	LastStudent  int    `json:"last_student"`
	Pages        int    `json:"pages"`
}

// Students returns how many submissions the shard holds.
func (s ShardInfo) Students() int {
	return s.LastStudent - s.FirstStudent + 1
}

// RunStatus represents the outcome of a batch run.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is a recorded batch run.
type Run struct {
	ID                 string    `json:"id"`
	OutPrefix          string    `json:"out_prefix"`
	Status             RunStatus `json:"status"`
	PagesPerSubmission int       `json:"pages_per_submission"`
	SubmissionsPerFile int       `json:"submissions_per_file"`
	StartedAt          time.Time `json:"started_at"`
}

// RunInputs are the inputs a run was started with.
type RunInputs struct {
	Assessment   string `json:"assessment"`
	Records      string `json:"records"`
	Files        string `json:"files,omitempty"`
	TemplateUID  string `json:"template_uid,omitempty"`
	TemplateFill bool   `json:"template_fill"`
	PagesPerFile int    `json:"pages_per_file"`
}

// RunExport is the JSON structure produced by the export command.
type RunExport struct {
	Run     Run         `json:"run"`
	Error   string      `json:"error,omitempty"`
	Inputs  RunInputs   `json:"inputs"`
	Shards  []ShardInfo `json:"shards"`
	Summary Summary     `json:"summary"`
}
