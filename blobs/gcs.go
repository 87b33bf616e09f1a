package blobs

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"
)

// GCSStore saves blobs as objects under Prefix in a Cloud Storage bucket. Credentials
// are taken from the environment.
type GCSStore struct {
	Bucket string
	Prefix string
}

var _ Store = (*GCSStore)(nil)

func (s *GCSStore) objectKey(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

func (s *GCSStore) URL(name string) string {
	return "gs://" + s.Bucket + "/" + s.objectKey(name)
}

func (s *GCSStore) Put(ctx context.Context, name string, src io.Reader) (int64, error) {
	log := klog.FromContext(ctx)
	gcsURL := s.URL(name)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	startedAt := time.Now()
	w := client.Bucket(s.Bucket).Object(s.objectKey(name)).NewWriter(ctx)
	n, err := io.Copy(w, src)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("uploading to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("closing GCS writer: %w", err)
	}
	log.Info("uploaded blob to GCS", "url", gcsURL, "bytes", n, "duration", time.Since(startedAt))
	return n, nil
}
