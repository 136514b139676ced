package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"cms-go/internal/cms"
)

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	Bucket          string
	CredentialsFile string // application default credentials when empty
	Endpoint        string // emulator endpoint; disables authentication
	PublicBaseURL   string
}

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var _ cms.ObjectStore = (*GCSStore)(nil)

// NewGCSStore creates a storage client for the bucket.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch {
	case opts.Endpoint != "":
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	baseURL := opts.PublicBaseURL
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + opts.Bucket
	}
	return &GCSStore{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	// Cancelling the writer's context aborts the upload without creating
	// the object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType

	written, err := io.Copy(w, io.LimitReader(r, size+1))
	if err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if written != size {
		cancel()
		_ = w.Close()
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", key, err)
	}
	return nil
}

func (g *GCSStore) Get(ctx context.Context, key string, w io.Writer) error {
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("object %s: %w", key, cms.ErrNotFound)
		}
		return fmt.Errorf("opening %s: %w", key, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (g *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("attrs %s: %w", key, err)
	}
	return true, nil
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]cms.ObjectInfo, error) {
	var out []cms.ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		out = append(out, cms.ObjectInfo{Key: attrs.Name, Size: attrs.Size, ModTime: attrs.Updated.UTC()})
	}
	return out, nil
}

func (g *GCSStore) PublicURL(key string) string { return joinURL(g.baseURL, key) }

// ValidateSetup checks that the bucket exists and is reachable.
func (g *GCSStore) ValidateSetup(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", g.bucket, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error { return g.client.Close() }
