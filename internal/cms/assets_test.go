package cms_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"cms-go/internal/cms"
	"cms-go/internal/testutil"
)

func upload(name, contentType string, size int, eventID string) cms.Upload {
	return cms.Upload{
		FileName:    name,
		ContentType: contentType,
		Size:        int64(size),
		Body:        bytes.NewReader(make([]byte, size)),
		EventID:     eventID,
	}
}

func mustEvent(t *testing.T, h *testutil.Harness, name string) *cms.Event {
	t.Helper()
	ev, err := h.Service.CreateEvent(context.Background(), cms.EventInput{Name: name})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	return ev
}

func TestCreateAsset_GalleryUnderEvent(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	ev := mustEvent(t, h, "Health Camp")

	a, err := h.Service.CreateAsset(ctx, cms.AssetGallery, upload("camp.jpg", "image/jpeg", 2<<20, ev.ID))
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	if a.EventID != ev.ID {
		t.Errorf("EventID = %q, want %q", a.EventID, ev.ID)
	}
	if !strings.HasPrefix(a.Path, "gallery/1705314600000-") || !strings.HasSuffix(a.Path, ".jpg") {
		t.Errorf("Path = %q", a.Path)
	}
	if a.URL != "https://cdn.test/"+a.Path {
		t.Errorf("URL = %q", a.URL)
	}
	if ok, _ := h.Store.Exists(ctx, a.Path); !ok {
		t.Error("blob missing after successful create")
	}

	rows, err := h.Service.ListAssets(ctx, cms.AssetGallery, ev.ID)
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ID != a.ID || rows[0].FileSize != 2<<20 {
		t.Errorf("ListAssets() = %+v", rows)
	}
	if !h.Notifier.Tables()[cms.TableGalleryImages] {
		t.Error("gallery_images change not published")
	}
}

func TestCreateAsset_Validation(t *testing.T) {
	tests := []struct {
		name      string
		kind      cms.AssetKind
		upload    cms.Upload
		wantField string
	}{
		{
			name:      "report over 10 MB",
			kind:      cms.AssetReport,
			upload:    func() cms.Upload { u := upload("q1.pdf", "application/pdf", 12<<20, ""); u.Title.EN = "Q1"; return u }(),
			wantField: "file",
		},
		{
			name:      "image over 5 MB",
			kind:      cms.AssetTeam,
			upload:    upload("team.png", "image/png", 5<<20+1, ""),
			wantField: "file",
		},
		{
			name:      "empty file",
			kind:      cms.AssetTeam,
			upload:    upload("team.png", "image/png", 0, ""),
			wantField: "file",
		},
		{
			name:      "missing file name",
			kind:      cms.AssetTeam,
			upload:    upload("", "image/png", 10, ""),
			wantField: "file",
		},
		{
			name:      "disallowed type",
			kind:      cms.AssetSlide,
			upload:    func() cms.Upload { u := upload("s.svg", "image/svg+xml", 10, ""); u.Title.EN = "S"; return u }(),
			wantField: "file",
		},
		{
			name:      "gallery without event",
			kind:      cms.AssetGallery,
			upload:    upload("g.jpg", "image/jpeg", 10, ""),
			wantField: "event_id",
		},
		{
			name:      "slide without english title",
			kind:      cms.AssetSlide,
			upload:    func() cms.Upload { u := upload("s.jpg", "image/jpeg", 10, ""); u.Title.MR = "स्लाइड"; return u }(),
			wantField: "title.en",
		},
		{
			name:      "team image with event",
			kind:      cms.AssetTeam,
			upload:    upload("t.jpg", "image/jpeg", 10, "id-99"),
			wantField: "event_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness(t)

			_, err := h.Service.CreateAsset(context.Background(), tt.kind, tt.upload)
			var verr *cms.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CreateAsset() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
			// Rejected before either store was contacted.
			if h.Store.Puts() != 0 || h.DB.TotalCalls() != 0 {
				t.Errorf("store puts = %d, db calls = %d, want none", h.Store.Puts(), h.DB.TotalCalls())
			}
		})
	}
}

func TestCreateAsset_UnknownEvent(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Service.CreateAsset(context.Background(), cms.AssetGallery, upload("g.jpg", "image/jpeg", 10, "missing"))
	if !errors.Is(err, cms.ErrValidation) {
		t.Fatalf("CreateAsset() error = %v, want ValidationError", err)
	}
	if h.Store.Puts() != 0 {
		t.Error("blob uploaded for an event that does not exist")
	}
}

func TestCreateAsset_SlideEnglishOnly(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()

	u := upload("hero.webp", "image/webp", 1024, "")
	u.Title = cms.Title{EN: "Welcome"}
	a, err := h.Service.CreateAsset(ctx, cms.AssetSlide, u)
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}

	got, err := h.Service.GetAsset(ctx, cms.AssetSlide, a.ID)
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	for _, lang := range []string{"en", "mr", "hi"} {
		if title := got.Title.Localized(lang); title != "Welcome" {
			t.Errorf("Localized(%q) = %q, want English fallback", lang, title)
		}
	}
}

func TestCreateAsset_StorageFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Store.FailPut = true

	_, err := h.Service.CreateAsset(context.Background(), cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))
	if !errors.Is(err, cms.ErrStorageWrite) {
		t.Fatalf("CreateAsset() error = %v, want ErrStorageWrite", err)
	}
	if n := h.DB.Calls("InsertAsset"); n != 0 {
		t.Errorf("InsertAsset called %d times after storage failure", n)
	}
	rows, _ := h.Service.ListAssets(context.Background(), cms.AssetTeam, "")
	if len(rows) != 0 {
		t.Errorf("metadata rows = %d, want 0", len(rows))
	}
}

func TestCreateAsset_MetadataFailureCompensates(t *testing.T) {
	tests := []struct {
		name         string
		failDelete   bool
		wantBlobs    int
		wantWarnings int
	}{
		{name: "compensation succeeds", failDelete: false, wantBlobs: 0, wantWarnings: 0},
		{name: "compensation fails", failDelete: true, wantBlobs: 1, wantWarnings: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness(t)
			rec := &testutil.Recorder{}
			h.Service.SetRecorder(rec)
			h.DB.FailInsertAsset = true
			h.Store.FailDelete = tt.failDelete

			_, err := h.Service.CreateAsset(context.Background(), cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))
			if !errors.Is(err, cms.ErrMetadataWrite) {
				t.Fatalf("CreateAsset() error = %v, want ErrMetadataWrite", err)
			}
			if h.Store.Len() != tt.wantBlobs {
				t.Errorf("blobs = %d, want %d", h.Store.Len(), tt.wantBlobs)
			}
			if got := len(cms.WarningsOf(err)); got != tt.wantWarnings {
				t.Errorf("warnings = %d, want %d", got, tt.wantWarnings)
			}
			if got := len(h.Logger.Entries("WARN")); got != tt.wantWarnings {
				t.Errorf("warn logs = %d, want %d", got, tt.wantWarnings)
			}
			if rec.Failed != 1 || rec.Orphans != tt.wantWarnings {
				t.Errorf("recorder = %+v", rec)
			}
			// The user still sees the metadata failure.
			if out := cms.Describe("Upload", err, nil); out.Kind != "metadata_write" {
				t.Errorf("Describe().Kind = %q", out.Kind)
			}
		})
	}
}

func TestCreateAssets_Batch(t *testing.T) {
	h := testutil.NewHarness(t)
	ev := mustEvent(t, h, "Yoga Day")

	res := h.Service.CreateAssets(context.Background(), cms.AssetGallery, []cms.Upload{
		upload("a.jpg", "image/jpeg", 10, ev.ID),
		upload("b.exe", "application/octet-stream", 10, ev.ID),
		upload("c.png", "image/png", 10, ev.ID),
	})

	if len(res.Created) != 2 {
		t.Errorf("created = %d, want 2", len(res.Created))
	}
	if len(res.Failed) != 1 || res.Failed[0].FileName != "b.exe" || !errors.Is(res.Failed[0].Err, cms.ErrValidation) {
		t.Errorf("failed = %+v", res.Failed)
	}
}

func TestDeleteAsset(t *testing.T) {
	ctx := context.Background()

	t.Run("requires confirmation", func(t *testing.T) {
		h := testutil.NewHarness(t)
		a, _ := h.Service.CreateAsset(ctx, cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))

		_, err := h.Service.DeleteAsset(ctx, cms.AssetTeam, a.ID, cms.Unconfirmed)
		if !errors.Is(err, cms.ErrConfirmationRequired) {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		if n := h.DB.Calls("DeleteAsset"); n != 0 {
			t.Errorf("DeleteAsset reached the database %d times", n)
		}
	})

	t.Run("removes row then blob", func(t *testing.T) {
		h := testutil.NewHarness(t)
		a, _ := h.Service.CreateAsset(ctx, cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))

		warnings, err := h.Service.DeleteAsset(ctx, cms.AssetTeam, a.ID, cms.Confirmed)
		if err != nil || len(warnings) != 0 {
			t.Fatalf("DeleteAsset() = %v, %v", warnings, err)
		}
		if _, err := h.Service.GetAsset(ctx, cms.AssetTeam, a.ID); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("row still present: %v", err)
		}
		if h.Store.Len() != 0 {
			t.Error("blob still present")
		}
	})

	t.Run("metadata failure keeps blob", func(t *testing.T) {
		h := testutil.NewHarness(t)
		a, _ := h.Service.CreateAsset(ctx, cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))
		h.DB.FailDeleteAsset = true

		_, err := h.Service.DeleteAsset(ctx, cms.AssetTeam, a.ID, cms.Confirmed)
		if !errors.Is(err, cms.ErrMetadataDelete) {
			t.Fatalf("DeleteAsset() error = %v, want ErrMetadataDelete", err)
		}
		if h.Store.Deletes() != 0 || h.Store.Len() != 1 {
			t.Error("blob touched although the row could not be deleted")
		}
	})

	t.Run("blob failure is a warning", func(t *testing.T) {
		h := testutil.NewHarness(t)
		a, _ := h.Service.CreateAsset(ctx, cms.AssetTeam, upload("t.jpg", "image/jpeg", 10, ""))
		h.Store.FailDelete = true

		warnings, err := h.Service.DeleteAsset(ctx, cms.AssetTeam, a.ID, cms.Confirmed)
		if err != nil {
			t.Fatalf("DeleteAsset() error = %v", err)
		}
		if len(warnings) != 1 || warnings[0].Path != a.Path {
			t.Errorf("warnings = %+v", warnings)
		}
	})

	t.Run("missing asset", func(t *testing.T) {
		h := testutil.NewHarness(t)
		_, err := h.Service.DeleteAsset(ctx, cms.AssetTeam, "nope", cms.Confirmed)
		if !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("DeleteAsset() error = %v, want ErrNotFound", err)
		}
	})
}
