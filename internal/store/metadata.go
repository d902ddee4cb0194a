package store

import (
	"database/sql"
	"errors"
	"strconv"

	"github.com/pavelanni/plgspl/internal/model"
)

// SetMetadata upserts a key-value pair for a run.
func (s *Store) SetMetadata(runID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO run_metadata (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = ?`,
		runID, key, value, value,
	)
	return err
}

// GetMetadata returns the value for a run metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(runID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM run_metadata WHERE run_id = ? AND key = ?`, runID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetRunInputs stores the inputs a run was started with.
func (s *Store) SetRunInputs(runID string, in model.RunInputs) error {
	pairs := []struct{ k, v string }{
		{"assessment", in.Assessment},
		{"records", in.Records},
		{"files", in.Files},
		{"template_uid", in.TemplateUID},
		{"template_fill", strconv.FormatBool(in.TemplateFill)},
		{"pages_per_file", strconv.Itoa(in.PagesPerFile)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(runID, p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetRunInputs reads the inputs stored by SetRunInputs.
func (s *Store) GetRunInputs(runID string) (model.RunInputs, error) {
	var in model.RunInputs
	var err error

	if in.Assessment, err = s.GetMetadata(runID, "assessment"); err != nil {
		return in, err
	}
	if in.Records, err = s.GetMetadata(runID, "records"); err != nil {
		return in, err
	}
	if in.Files, err = s.GetMetadata(runID, "files"); err != nil {
		return in, err
	}
	if in.TemplateUID, err = s.GetMetadata(runID, "template_uid"); err != nil {
		return in, err
	}
	fill, err := s.GetMetadata(runID, "template_fill")
	if err != nil {
		return in, err
	}
	if fill != "" {
		if in.TemplateFill, err = strconv.ParseBool(fill); err != nil {
			return in, err
		}
	}
	ppf, err := s.GetMetadata(runID, "pages_per_file")
	if err != nil {
		return in, err
	}
	if ppf != "" {
		if in.PagesPerFile, err = strconv.Atoi(ppf); err != nil {
			return in, err
		}
	}
	return in, nil
}
