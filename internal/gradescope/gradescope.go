// Package gradescope converts between the grading platform's CSV files and
// the records and summaries this tool works with.
package gradescope

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/plgspl/internal/model"
)

// WriteClassList writes a mock roster with one row per student, in order of
// first appearance. The SID column carries the student id the summary is
// keyed by.
func WriteClassList(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Full Name", "Email", "SID"}); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.StudentID] {
			continue
		}
		seen[r.StudentID] = true
		email := r.UID
		name := email
		if name == "" {
			name = r.StudentID
		}
		if err := cw.Write([]string{name, email, r.StudentID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Score is one row of the manual grading score upload.
type Score struct {
	UID       string
	Instance  int
	QID       string
	ScorePerc float64
	Feedback  string
}

// question columns look like "2.1: explain (1.5 pts)"
var partColumn = regexp.MustCompile(`^\s*(\d+)(?:\.\d+)*\s*:.*\(\s*(\d+(?:\.\d+)?)\s*pts?\s*\)\s*$`)

type question struct {
	number  int
	columns []int
	max     float64
}

func parseHeader(header []string) (map[string]int, []question, error) {
	named := make(map[string]int)
	byNumber := make(map[int]*question)
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		if m := partColumn.FindStringSubmatch(h); m != nil {
			n, _ := strconv.Atoi(m[1])
			pts, _ := strconv.ParseFloat(m[2], 64)
			q, ok := byNumber[n]
			if !ok {
				q = &question{number: n}
				byNumber[n] = q
			}
			q.columns = append(q.columns, i)
			q.max += pts
			continue
		}
		named[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"sid", "email"} {
		if _, ok := named[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}
	if len(byNumber) == 0 {
		return nil, nil, errors.New("no question columns")
	}
	questions := make([]question, 0, len(byNumber))
	for _, q := range byNumber {
		questions = append(questions, *q)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].number < questions[j].number })
	return named, questions, nil
}

// Merge combines a grading platform score export with the run summary. The
// i-th question of the export is matched to the i-th rendered slot of the
// student. The manual grade is scaled by the slot's manual weight and added
// to its automatic score, capped at 100. Slots filled from the template
// submission produce no row.
func Merge(summary model.Summary, export io.Reader, instance int) ([]Score, error) {
	cr := csv.NewReader(export)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read export header: %w", err)
	}
	named, questions, err := parseHeader(header)
	if err != nil {
		return nil, fmt.Errorf("read export header: %w", err)
	}
	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	statusCol, hasStatus := named["status"]

	var scores []Score
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		if hasStatus && strings.EqualFold(cell(row, statusCol), "missing") {
			continue
		}
		sid, email := cell(row, named["sid"]), cell(row, named["email"])
		entries, ok := summary[sid]
		if !ok {
			slog.Warn("student not in summary, skipped", "sid", sid)
			continue
		}
		if len(entries) != len(questions) {
			return nil, fmt.Errorf("student %s: %d rendered questions, export has %d", sid, len(entries), len(questions))
		}
		for i, q := range questions {
			if entries[i].Template() {
				continue
			}
			auto, manual, err := shares(entries[i])
			if err != nil {
				return nil, fmt.Errorf("student %s: %w", sid, err)
			}
			var got float64
			for _, c := range q.columns {
				v := cell(row, c)
				if v == "" {
					continue
				}
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("student %s question %d: bad score %q", sid, q.number, v)
				}
				got += f
			}
			frac := 0.0
			if q.max > 0 {
				frac = got / q.max
			}
			perc := math.Round(100*(manual*frac+auto)) / 100
			perc = math.Max(0, math.Min(100, perc))
			scores = append(scores, Score{
				UID:       email,
				Instance:  instance,
				QID:       entries[i].Variant,
				ScorePerc: perc,
				Feedback: fmt.Sprintf("%s + %s/%s on gradescope",
					formatPoints(math.Round(100*auto)/100), formatPoints(got), formatPoints(q.max)),
			})
		}
	}
	return scores, nil
}

// shares splits a slot into percentages: the automatically graded score
// already earned, and the weight left to the manual grade. Parts without a
// score are manual. A slot with no weighted parts is entirely manual.
func shares(e model.SummaryEntry) (auto, manual float64, err error) {
	parts, err := e.PartScores()
	if err != nil {
		return 0, 0, err
	}
	var total, earned, open float64
	for _, p := range parts {
		total += p.Weight
		if p.Graded() {
			earned += p.Value() * p.Weight
		} else {
			open += p.Weight
		}
	}
	if total <= 0 {
		return 0, 100, nil
	}
	// round before ceil so 0.7 of the weight stays 70, not 71
	return 100 * earned / total, math.Ceil(math.Round(1e6*100*open/total) / 1e6), nil
}

func formatPoints(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteScores writes the manual grading score upload CSV.
func WriteScores(w io.Writer, scores []Score) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"uid", "instance", "qid", "score_perc", "feedback"}); err != nil {
		return err
	}
	for _, s := range scores {
		row := []string{s.UID, strconv.Itoa(s.Instance), s.QID, formatPoints(s.ScorePerc), s.Feedback}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
