package store

import (
	"fmt"

	"github.com/pavelanni/plgspl/internal/model"
)

// ExportRun builds the export document of one run: its plan, shards,
// inputs and summary.
func (s *Store) ExportRun(id string) (model.RunExport, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return model.RunExport{}, fmt.Errorf("get run %s: %w", id, err)
	}
	inputs, err := s.GetRunInputs(id)
	if err != nil {
		return model.RunExport{}, fmt.Errorf("get inputs of run %s: %w", id, err)
	}
	shards, err := s.ListShards(id)
	if err != nil {
		return model.RunExport{}, fmt.Errorf("list shards of run %s: %w", id, err)
	}
	summary, err := s.Summary(id)
	if err != nil {
		return model.RunExport{}, fmt.Errorf("summary of run %s: %w", id, err)
	}
	msg, err := s.RunError(id)
	if err != nil {
		return model.RunExport{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return model.RunExport{
		Run:     run,
		Error:   msg,
		Inputs:  inputs,
		Shards:  shards,
		Summary: summary,
	}, nil
}
