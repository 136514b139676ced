package cms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Upload is one file submitted for storage.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	EventID     string
	Title       Title
}

// validateUpload checks u against the policy of kind. It performs no I/O.
func validateUpload(kind AssetKind, u Upload) (UploadPolicy, error) {
	p := kind.Policy()
	if p.Table == "" {
		return p, invalid("kind", "unknown asset kind %q", kind)
	}
	if strings.TrimSpace(u.FileName) == "" || u.Body == nil {
		return p, invalid("file", "a file must be selected")
	}
	if u.Size <= 0 {
		return p, invalid("file", "file is empty")
	}
	if u.Size > p.MaxSize {
		return p, invalid("file", "file is %s, the limit is %s", humanSize(u.Size), humanSize(p.MaxSize))
	}
	if !p.Allows(u.ContentType) {
		return p, invalid("file", "file type %q is not allowed", u.ContentType)
	}
	if p.RequireGrouping && strings.TrimSpace(u.EventID) == "" {
		return p, invalid("event_id", "an event must be selected")
	}
	if !p.AllowGrouping && u.EventID != "" {
		return p, invalid("event_id", "%s assets do not belong to an event", kind)
	}
	if p.RequireTitle && strings.TrimSpace(u.Title.EN) == "" {
		return p, invalid("title.en", "English title is required")
	}
	return p, nil
}

func humanSize(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	}
	return fmt.Sprintf("%d KB", (n+1023)/1024)
}

// CreateAsset stores the blob and then records its metadata row. Either
// both stores end up holding the asset or neither does; if removing the
// blob after a failed insert also fails, the returned error carries an
// OrphanedBlob warning.
func (s *Service) CreateAsset(ctx context.Context, kind AssetKind, u Upload) (*Asset, error) {
	a, err := s.createAsset(ctx, kind, u)
	if err != nil {
		s.recorder.AssetFailed(kind, KindOf(err))
		return nil, err
	}
	s.recorder.AssetCreated(kind)
	return a, nil
}

func (s *Service) createAsset(ctx context.Context, kind AssetKind, u Upload) (*Asset, error) {
	const op = "create asset"

	p, err := validateUpload(kind, u)
	if err != nil {
		return nil, err
	}

	if p.RequireGrouping {
		if _, err := s.db.GetEvent(ctx, u.EventID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, invalid("event_id", "event %s does not exist", u.EventID)
			}
			return nil, &OpError{Op: op, Kind: ErrMetadataWrite, Err: fmt.Errorf("looking up event: %w", err)}
		}
	}

	now := s.clock.Now()
	path, err := BlobPath(p.Prefix, now, u.FileName, s.random)
	if err != nil {
		return nil, &OpError{Op: op, Kind: ErrStorageWrite, Err: err}
	}

	if err := s.store.Put(ctx, path, u.Body, u.Size, u.ContentType); err != nil {
		return nil, &OpError{Op: op, Kind: ErrStorageWrite, Err: fmt.Errorf("uploading %s: %w", path, err)}
	}

	a := &Asset{
		ID:          s.ids.New(),
		Kind:        kind,
		EventID:     u.EventID,
		URL:         s.store.PublicURL(path),
		Path:        path,
		FileName:    u.FileName,
		FileSize:    u.Size,
		ContentType: u.ContentType,
		Title:       u.Title,
		UploadedAt:  now,
	}

	if err := s.db.InsertAsset(ctx, a); err != nil {
		opErr := &OpError{Op: op, Kind: ErrMetadataWrite, Err: fmt.Errorf("recording %s: %w", path, err)}
		if orphan := s.removeBlob(ctx, path); orphan != nil {
			opErr.Warnings = append(opErr.Warnings, *orphan)
			s.recorder.OrphanedBlobs(1)
		}
		return nil, opErr
	}

	s.logger.Info("asset created", "kind", kind, "id", a.ID, "path", path)
	s.notify(ctx, p.Table, ChangeInsert)
	return a, nil
}

// BatchFailure is one file of a batch that could not be created.
type BatchFailure struct {
	FileName string
	Err      error
}

// BatchResult reports a multi-file upload.
type BatchResult struct {
	Created []*Asset
	Failed  []BatchFailure
}

// CreateAssets creates each upload independently. A failure on one file
// does not stop the rest.
func (s *Service) CreateAssets(ctx context.Context, kind AssetKind, uploads []Upload) *BatchResult {
	res := &BatchResult{}
	for _, u := range uploads {
		a, err := s.CreateAsset(ctx, kind, u)
		if err != nil {
			res.Failed = append(res.Failed, BatchFailure{FileName: u.FileName, Err: err})
			continue
		}
		res.Created = append(res.Created, a)
	}
	return res
}

// DeleteAsset removes the metadata row and then, best effort, the blob.
// If the row cannot be deleted the blob is left untouched. A blob that
// cannot be removed is reported as a warning, not an error.
func (s *Service) DeleteAsset(ctx context.Context, kind AssetKind, id string, confirm Confirmation) ([]OrphanedBlob, error) {
	const op = "delete asset"
	if !confirm {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrConfirmationRequired)
	}

	p := kind.Policy()
	if p.Table == "" {
		return nil, invalid("kind", "unknown asset kind %q", kind)
	}

	a, err := s.db.GetAsset(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", op, id, err)
		}
		return nil, &OpError{Op: op, Kind: ErrMetadataDelete, Err: err}
	}

	if err := s.db.DeleteAsset(ctx, kind, id); err != nil {
		return nil, &OpError{Op: op, Kind: ErrMetadataDelete, Err: err}
	}
	s.recorder.AssetDeleted(kind)
	s.notify(ctx, p.Table, ChangeDelete)

	var warnings []OrphanedBlob
	if orphan := s.removeBlob(ctx, a.Path); orphan != nil {
		warnings = append(warnings, *orphan)
		s.recorder.OrphanedBlobs(1)
	}
	s.logger.Info("asset deleted", "kind", kind, "id", id, "path", a.Path)
	return warnings, nil
}

// GetAsset returns a single asset.
func (s *Service) GetAsset(ctx context.Context, kind AssetKind, id string) (*Asset, error) {
	return s.db.GetAsset(ctx, kind, id)
}

// ListAssets returns assets of kind, optionally restricted to one event.
func (s *Service) ListAssets(ctx context.Context, kind AssetKind, eventID string) ([]*Asset, error) {
	if kind.Policy().Table == "" {
		return nil, invalid("kind", "unknown asset kind %q", kind)
	}
	return s.db.ListAssets(ctx, kind, eventID)
}
