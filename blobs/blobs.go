// Package blobs stores the images written by the commands either in a local directory or
// in a Google Cloud Storage bucket.
package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// Store writes named blobs
type Store interface {
	// Put copies src to the blob with the given name, replacing any existing blob.
	Put(ctx context.Context, name string, src io.Reader) (int64, error)
	// Location of a blob for logging
	URL(name string) string
}

// Open returns a store for a destination which is either a local directory or a
// gs://bucket/prefix url.
func Open(dest string) (Store, error) {
	if rest, ok := strings.CutPrefix(dest, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("missing bucket name in %q", dest)
		}
		return &GCSStore{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	}
	if dest == "" {
		return nil, fmt.Errorf("empty blob destination")
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &DirStore{Dir: dest}, nil
}

// DirStore saves blobs as files in a directory.
type DirStore struct {
	Dir string
}

var _ Store = (*DirStore)(nil)

func (s *DirStore) URL(name string) string {
	return filepath.Join(s.Dir, name)
}

// Put writes to a temporary file and renames it once complete.
func (s *DirStore) Put(ctx context.Context, name string, src io.Reader) (int64, error) {
	log := klog.FromContext(ctx)
	destinationPath := s.URL(name)

	tempFile, err := os.CreateTemp(s.Dir, ".blob")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	n, err := io.Copy(tempFile, src)
	if err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return n, fmt.Errorf("writing %q: %w", destinationPath, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempFile.Name(), destinationPath); err != nil {
		os.Remove(tempFile.Name())
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	log.V(2).Info("wrote blob", "path", destinationPath, "bytes", n)
	return n, nil
}
