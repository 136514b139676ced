package cms

import (
	"context"
	"fmt"
	"strings"
)

// RecordVisit counts a visit for sessionID at most once. The session flag
// is claimed first with an atomic test-and-set, so concurrent calls from
// the same session (two tabs) increment once between them. If the
// increment fails the flag is released so a later visit can retry.
// It reports whether this call incremented the counter.
func (s *Service) RecordVisit(ctx context.Context, sessionID string) (bool, error) {
	const op = "record visit"
	if strings.TrimSpace(sessionID) == "" {
		return false, invalid("session", "a session id is required")
	}
	if s.sessions == nil {
		return false, fmt.Errorf("%s: no session store configured", op)
	}

	first, err := s.sessions.MarkCounted(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("%s: checking session flag: %w", op, err)
	}
	if !first {
		return false, nil
	}

	count, err := s.db.IncrementVisitorCount(ctx, s.clock.Now())
	if err != nil {
		if cerr := s.sessions.ClearCounted(context.WithoutCancel(ctx), sessionID); cerr != nil {
			s.logger.Warn("releasing session flag failed", "session", sessionID, "error", cerr)
		}
		return false, &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}

	s.recorder.VisitCounted()
	s.logger.Debug("visit counted", "count", count)
	s.notify(ctx, TableSiteStatistics, ChangeUpdate)
	return true, nil
}

// CurrentCount returns the site counter.
func (s *Service) CurrentCount(ctx context.Context) (*SiteCounter, error) {
	return s.db.GetSiteCounter(ctx)
}

// ResetCounter sets the visitor count to zero. Session flags already set
// stay set.
func (s *Service) ResetCounter(ctx context.Context, confirm Confirmation) error {
	const op = "reset counter"
	if !confirm {
		return fmt.Errorf("%s: %w", op, ErrConfirmationRequired)
	}
	if err := s.db.ResetVisitorCount(ctx, s.clock.Now()); err != nil {
		return &OpError{Op: op, Kind: ErrMetadataWrite, Err: err}
	}
	s.logger.Info("visitor counter reset")
	s.notify(ctx, TableSiteStatistics, ChangeUpdate)
	return nil
}

// TouchLastUpdated stamps the counter's last-modified time without
// changing the count.
func (s *Service) TouchLastUpdated(ctx context.Context) error {
	if err := s.db.TouchLastUpdated(ctx, s.clock.Now()); err != nil {
		return &OpError{Op: "touch last updated", Kind: ErrMetadataWrite, Err: err}
	}
	s.notify(ctx, TableSiteStatistics, ChangeUpdate)
	return nil
}
