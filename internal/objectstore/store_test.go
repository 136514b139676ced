package objectstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cms-go/internal/cms"
)

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// storeContract runs the behavior every local ObjectStore must share.
func storeContract(t *testing.T, newStore func(t *testing.T) cms.ObjectStore) {
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		data := "hello world"
		if err := s.Put(ctx, "gallery/a.jpg", strings.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		var buf bytes.Buffer
		if err := s.Get(ctx, "gallery/a.jpg", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != data {
			t.Errorf("Get() = %q, want %q", buf.String(), data)
		}
	})

	t.Run("size mismatch leaves nothing behind", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "gallery/short.jpg", strings.NewReader("abc"), 100, "image/jpeg"); err == nil {
			t.Fatal("expected size mismatch error")
		}
		ok, err := s.Exists(ctx, "gallery/short.jpg")
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if ok {
			t.Error("object exists after failed put")
		}
	})

	t.Run("get missing wraps ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.Get(ctx, "gallery/missing.jpg", &bytes.Buffer{})
		if !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, "slides/s.png", strings.NewReader("x"), 1, "image/png"); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := s.Delete(ctx, "slides/s.png"); err != nil {
				t.Fatalf("Delete() #%d error = %v", i+1, err)
			}
		}
		if ok, _ := s.Exists(ctx, "slides/s.png"); ok {
			t.Error("object still exists after delete")
		}
	})

	t.Run("list filters by prefix", func(t *testing.T) {
		s := newStore(t)
		for _, key := range []string{"gallery/1.jpg", "gallery/2.jpg", "slides/1.png"} {
			if err := s.Put(ctx, key, strings.NewReader("data"), 4, "image/jpeg"); err != nil {
				t.Fatalf("Put(%s) error = %v", key, err)
			}
		}
		got, err := s.List(ctx, "gallery/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List() returned %d objects, want 2", len(got))
		}
		if got[0].Key != "gallery/1.jpg" || got[1].Key != "gallery/2.jpg" {
			t.Errorf("List() keys = %s, %s", got[0].Key, got[1].Key)
		}
		if got[0].Size != 4 {
			t.Errorf("Size = %d, want 4", got[0].Size)
		}
	})

	t.Run("rejects escaping keys", func(t *testing.T) {
		s := newStore(t)
		for _, key := range []string{"../etc/passwd", "/abs", "a//b", "dir/", ""} {
			if err := s.Put(ctx, key, strings.NewReader("x"), 1, "text/plain"); err == nil {
				t.Errorf("Put(%q) succeeded, want error", key)
			}
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := newStore(t).ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) cms.ObjectStore {
		return NewMemoryStore("", nil)
	})
}

func TestFileSystemStore(t *testing.T) {
	storeContract(t, func(t *testing.T) cms.ObjectStore {
		s, err := NewFileSystemStore(t.TempDir(), "")
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		return s
	})
}

func TestMemoryStore_ModTimeAndContentType(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	s := NewMemoryStore("https://cdn.example.org", clockFunc(func() time.Time { return at }))

	if err := s.Put(context.Background(), "team-images/t.webp", strings.NewReader("img"), 3, "image/webp"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, _ := s.List(context.Background(), "team-images/")
	if len(got) != 1 || !got[0].ModTime.Equal(at) {
		t.Errorf("List() = %+v, want one object stamped %v", got, at)
	}
	if ct, ok := s.ContentType("team-images/t.webp"); !ok || ct != "image/webp" {
		t.Errorf("ContentType() = %q, %v", ct, ok)
	}
	if url := s.PublicURL("team-images/t.webp"); url != "https://cdn.example.org/team-images/t.webp" {
		t.Errorf("PublicURL() = %q", url)
	}
}
