package cms

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// VerifyReport lists the inconsistencies found between the two stores.
type VerifyReport struct {
	// Orphans are blobs under an asset prefix with no metadata row.
	Orphans []ObjectInfo
	// Broken are asset rows whose blob is missing.
	Broken []*Asset
	// Swept are orphans removed by Sweep.
	Swept []string
}

// Verify compares every asset prefix in the object store with the asset
// tables.
func (s *Service) Verify(ctx context.Context) (*VerifyReport, error) {
	report := &VerifyReport{}
	for _, kind := range AssetKinds() {
		p := kind.Policy()

		assets, err := s.db.ListAssets(ctx, kind, "")
		if err != nil {
			return nil, fmt.Errorf("listing %s assets: %w", kind, err)
		}
		objects, err := s.store.List(ctx, p.Prefix+"/")
		if err != nil {
			return nil, fmt.Errorf("listing %s blobs: %w", p.Prefix, err)
		}

		present := make(map[string]bool, len(objects))
		for _, o := range objects {
			present[o.Key] = true
		}
		referenced := make(map[string]bool, len(assets))
		for _, a := range assets {
			referenced[a.Path] = true
			if !present[a.Path] {
				report.Broken = append(report.Broken, a)
			}
		}
		for _, o := range objects {
			if !referenced[o.Key] {
				report.Orphans = append(report.Orphans, o)
			}
		}
	}

	sort.Slice(report.Orphans, func(i, j int) bool { return report.Orphans[i].Key < report.Orphans[j].Key })
	return report, nil
}

// Sweep runs Verify and deletes orphans last modified more than grace ago.
// Younger orphans may belong to a create that has not recorded its row yet.
func (s *Service) Sweep(ctx context.Context, grace time.Duration, confirm Confirmation) (*VerifyReport, error) {
	if !confirm {
		return nil, fmt.Errorf("sweep orphans: %w", ErrConfirmationRequired)
	}
	report, err := s.Verify(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.clock.Now().Add(-grace)
	for _, o := range report.Orphans {
		if o.ModTime.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, o.Key); err != nil {
			s.logger.Warn("sweeping orphan failed", "path", o.Key, "error", err)
			continue
		}
		report.Swept = append(report.Swept, o.Key)
	}
	s.logger.Info("orphan sweep finished", "found", len(report.Orphans), "swept", len(report.Swept))
	return report, nil
}

// History returns the most recent audited operations.
func (s *Service) History(ctx context.Context, limit int) ([]*Operation, error) {
	return s.db.ListOperations(ctx, limit)
}
