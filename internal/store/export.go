package store

import (
	"fmt"

	"github.com/pavelanni/interviewer/internal/model"
)

// ExportAllReports returns every archived report, newest first.
func (s *Store) ExportAllReports() ([]model.Report, error) {
	summaries, err := s.ListReports()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	reports := make([]model.Report, 0, len(summaries))
	for _, sum := range summaries {
		r, err := s.GetReport(sum.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get report %s: %w", sum.SessionID, err)
		}
		if r == nil {
			continue
		}
		reports = append(reports, *r)
	}
	return reports, nil
}
