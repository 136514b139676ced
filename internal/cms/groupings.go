package cms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventInput carries the administrator-supplied fields of a new event.
type EventInput struct {
	Name        string
	Description string
	Date        *time.Time
}

// CreateEvent validates and records a new event.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("event_name", "Event name is required")
	}

	ev := &Event{
		ID:          s.ids.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.db.CreateEvent(ctx, ev); err != nil {
		return nil, &OpError{Op: "create event", Kind: ErrMetadataWrite, Err: err}
	}

	s.logger.Info("event created", "id", ev.ID, "name", ev.Name)
	s.notify(ctx, TableEvents, ChangeInsert)
	return ev, nil
}

// GetEvent returns a single event.
func (s *Service) GetEvent(ctx context.Context, id string) (*Event, error) {
	return s.db.GetEvent(ctx, id)
}

// ListEvents returns all events, newest first.
func (s *Service) ListEvents(ctx context.Context) ([]*Event, error) {
	return s.db.ListEvents(ctx)
}

// CascadeReport summarises a grouping deletion.
type CascadeReport struct {
	EventID       string
	AssetsRemoved int
	Orphans       []OrphanedBlob
}

// DeleteGrouping deletes an event together with every asset it owns.
//
// The owned asset rows and the event row are removed in one metadata
// transaction; if that fails nothing is deleted anywhere. Blobs are then
// removed one by one. Blob failures do not stop the loop and are returned
// in the report rather than as an error.
func (s *Service) DeleteGrouping(ctx context.Context, id string, confirm Confirmation) (*CascadeReport, error) {
	const op = "delete event"
	if !confirm {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrConfirmationRequired)
	}

	assets, err := s.db.DeleteEventCascade(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", op, id, err)
		}
		return nil, &OpError{Op: op, Kind: ErrMetadataDelete, Err: err}
	}

	report := &CascadeReport{EventID: id, AssetsRemoved: len(assets)}
	touched := map[Table]bool{}
	for _, a := range assets {
		touched[a.Kind.Policy().Table] = true
		if orphan := s.removeBlob(ctx, a.Path); orphan != nil {
			report.Orphans = append(report.Orphans, *orphan)
		}
	}

	s.notify(ctx, TableEvents, ChangeDelete)
	for t := range touched {
		s.notify(ctx, t, ChangeDelete)
	}

	if n := len(report.Orphans); n > 0 {
		s.recorder.OrphanedBlobs(n)
		s.logger.Warn("event deleted with orphaned blobs", "id", id, "count", n, "paths", summarizeOrphans(report.Orphans))
	}
	s.logger.Info("event deleted", "id", id, "assets", len(assets))
	return report, nil
}
