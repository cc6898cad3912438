package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// OverlapScheduler detects date conflicts among active stay bookings for a
// resource. A booking counts as active while pending, approved, or
// completed; cancelled and rejected bookings release their dates.
type OverlapScheduler struct {
	repo domain.RequestRepository
}

// NewOverlapScheduler creates a scheduler backed by the given repository.
func NewOverlapScheduler(repo domain.RequestRepository) *OverlapScheduler {
	return &OverlapScheduler{repo: repo}
}

// Conflict returns the id of a stay booking for resourceID in one of the
// given statuses whose interval overlaps the candidate, or "" when the
// dates are free. excludeID skips one record, used when re-validating an
// existing booking at approval time.
//
// Creation gates against all active bookings (pending included); approval
// gates only against bookings that already hold the dates, so the first
// of two overlapping pending requests to be approved wins.
//
// The scan is O(n) over the resource's matching bookings, which stays
// small for realistic booking volumes.
func (s *OverlapScheduler) Conflict(ctx context.Context, resourceID string, candidate domain.Interval, excludeID string, statuses []domain.Status) (string, error) {
	kind := domain.KindStayBooking
	active, err := s.repo.List(ctx, domain.ListFilter{
		ResourceID: resourceID,
		Kind:       &kind,
		Statuses:   statuses,
	})
	if err != nil {
		return "", fmt.Errorf("loading active bookings: %w", err)
	}

	for _, r := range active {
		if r.ID == excludeID {
			continue
		}
		if candidate.Overlaps(r.Interval()) {
			return r.ID, nil
		}
	}

	return "", nil
}
