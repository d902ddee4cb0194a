// Package ingest loads manual grading records and builds the cohort of
// submissions to render.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pavelanni/plgspl/internal/assemble"
	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/filebundle"
	"github.com/pavelanni/plgspl/internal/model"
	"github.com/pavelanni/plgspl/internal/registry"
	"github.com/pavelanni/plgspl/internal/submission"
)

// column aliases, matched case-insensitively
var columns = map[string][]string{
	"student":   {"uin", "student_id", "student"},
	"uid":       {"uid", "email"},
	"qid":       {"qid", "question_id"},
	"sid":       {"submission_id", "sid"},
	"params":    {"params"},
	"true":      {"true_answer"},
	"submitted": {"submitted_answer"},
	"partial":   {"partial_scores"},
}

var required = []string{"student", "qid", "submitted"}

func headerIndex(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	idx := make(map[string]int, len(columns))
	for field, aliases := range columns {
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[field] = i
				break
			}
		}
	}
	for _, field := range required {
		if _, ok := idx[field]; !ok {
			return nil, fmt.Errorf("missing column %q", columns[field][0])
		}
	}
	return idx, nil
}

// ReadRecords parses a manual grading CSV.
func ReadRecords(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("read records: empty file")
		}
		return nil, fmt.Errorf("read records header: %w", err)
	}
	idx, err := headerIndex(header)
	if err != nil {
		return nil, fmt.Errorf("read records header: %w", err)
	}

	var records []model.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read records: %w", err)
		}
		get := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		rec := model.Record{
			StudentID:       get("student"),
			UID:             get("uid"),
			QuestionID:      get("qid"),
			SubmissionID:    get("sid"),
			Params:          get("params"),
			TrueAnswer:      get("true"),
			SubmittedAnswer: get("submitted"),
			PartialScores:   get("partial"),
		}
		if rec.StudentID == "" || rec.QuestionID == "" {
			slog.Warn("record without student or question id skipped", "line", line)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadRecords reads the manual grading CSV at path.
func LoadRecords(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()
	return ReadRecords(f)
}

// Build turns records into submissions in order of first appearance.
// Files for every record are collected first so each question knows all of
// its file parts before any student's parts are assembled; that keeps the
// file pages identical across students. filesDir may be empty.
func Build(ctx context.Context, records []model.Record, reg *registry.Registry, filesDir string, cfg config.Config) ([]*submission.Submission, error) {
	var names []string
	if filesDir != "" {
		var err error
		if names, err = filebundle.Scan(filesDir); err != nil {
			return nil, err
		}
	}

	type pending struct {
		rec    model.Record
		q      *registry.Question
		bundle *filebundle.Bundle
	}
	rows := make([]pending, 0, len(records))
	for _, rec := range records {
		q := reg.Get(rec.QuestionID)
		if q == nil {
			slog.Warn("record for unknown question skipped", "student", rec.StudentID, "question", rec.QuestionID)
			continue
		}
		var bundle *filebundle.Bundle
		if filesDir != "" {
			var err error
			bundle, err = filebundle.Collect(filesDir, names, rec.Key(), rec.QuestionID)
			if err != nil {
				return nil, fmt.Errorf("collect files for %s: %w", rec.Key(), err)
			}
			for _, part := range bundle.Names() {
				q.AddFileName(part)
			}
		}
		for _, name := range assemble.RequiredFiles(rec.Params, cfg) {
			q.AddFileName(name)
		}
		rows = append(rows, pending{rec: rec, q: q, bundle: bundle})
	}

	var subs []*submission.Submission
	byID := make(map[string]*submission.Submission)
	for _, row := range rows {
		res, err := assemble.Build(ctx, assemble.Input{
			Question:      row.q,
			Params:        row.rec.Params,
			TrueAnswer:    row.rec.TrueAnswer,
			Submitted:     row.rec.SubmittedAnswer,
			PartialScores: row.rec.PartialScores,
			Bundle:        row.bundle,
		}, cfg)
		if err != nil {
			slog.Warn("record skipped", "student", row.rec.StudentID, "question", row.rec.QuestionID, "error", err)
			continue
		}
		s, ok := byID[row.rec.StudentID]
		if !ok {
			s = submission.New(row.rec.StudentID)
			byID[row.rec.StudentID] = s
			subs = append(subs, s)
		}
		s.Add(&submission.StudentQuestion{
			Question: row.q,
			Variant:  row.rec.QuestionID,
			Parts:    res.Parts,
			Scores:   res.Scores,
		})
	}
	slog.Info("cohort built", "records", len(records), "submissions", len(subs))
	return subs, nil
}

// StudentIDs returns the ids of subs in order. Applied to the result of
// Build, it is the order submissions are rendered and sharded in.
func StudentIDs(subs []*submission.Submission) []string {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.UID
	}
	return ids
}
