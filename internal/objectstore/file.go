package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"booklisting/internal/models"
	"booklisting/internal/staging"
)

// FileStore keeps uploaded images in a local directory. The directory is
// expected to be served at publicBaseURL.
type FileStore struct {
	baseDir       string
	publicBaseURL string
	now           func() time.Time
}

func NewFileStore(baseDir, publicBaseURL string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.New("object store base dir required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &FileStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}, nil
}

func (s *FileStore) Upload(ctx context.Context, blob staging.Blob) (*models.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	key := objectKey(now, blob.Name)
	dest := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, blob.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("commit object %s: %w", key, err)
	}
	return &models.StoredObject{
		Key:         key,
		URL:         s.publicBaseURL + "/" + key,
		FileName:    blob.Name,
		ContentType: blob.ContentType,
		Size:        blob.Size(),
		CreatedAt:   now,
	}, nil
}

// Root is the directory holding stored objects.
func (s *FileStore) Root() string {
	return s.baseDir
}

// objectKey spreads objects by upload date and keeps the original extension.
func objectKey(now time.Time, name string) string {
	return fmt.Sprintf("%s/%s%s", now.Format("2006/01/02"), uuid.NewString(), strings.ToLower(filepath.Ext(name)))
}
