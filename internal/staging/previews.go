package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrPreviewNotFound = errors.New("preview not found")

// DiskPreviews writes each staged blob to its own file under dir and
// deletes it on release. It is shared by all sessions.
type DiskPreviews struct {
	dir       string
	urlPrefix string

	mu   sync.Mutex
	live map[string]string // key -> content type
}

// NewDiskPreviews prepares dir and serves handles under urlPrefix.
func NewDiskPreviews(dir, urlPrefix string) (*DiskPreviews, error) {
	if dir == "" {
		return nil, errors.New("staging dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &DiskPreviews{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		live:      make(map[string]string),
	}, nil
}

func (p *DiskPreviews) Acquire(blob Blob) (PreviewHandle, error) {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(blob.Name))
	if err := os.WriteFile(filepath.Join(p.dir, key), blob.Data, 0o600); err != nil {
		return PreviewHandle{}, fmt.Errorf("write preview: %w", err)
	}
	p.mu.Lock()
	p.live[key] = blob.ContentType
	p.mu.Unlock()
	return PreviewHandle{Key: key, URL: p.urlPrefix + "/" + key}, nil
}

func (p *DiskPreviews) Release(h PreviewHandle) error {
	p.mu.Lock()
	_, ok := p.live[h.Key]
	delete(p.live, h.Key)
	p.mu.Unlock()
	if !ok {
		return ErrPreviewNotFound
	}
	if err := os.Remove(filepath.Join(p.dir, h.Key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove preview: %w", err)
	}
	return nil
}

// Open returns the on-disk path and content type of a live preview.
func (p *DiskPreviews) Open(key string) (string, string, error) {
	p.mu.Lock()
	ct, ok := p.live[key]
	p.mu.Unlock()
	if !ok || key != filepath.Base(key) {
		return "", "", ErrPreviewNotFound
	}
	return filepath.Join(p.dir, key), ct, nil
}

// Live reports how many handles are currently acquired.
func (p *DiskPreviews) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Purge removes files left in dir by a previous process.
func (p *DiskPreviews) Purge() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := p.live[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale preview: %w", err)
		}
	}
	return nil
}

// MemoryPreviews keeps handles in process memory.
type MemoryPreviews struct {
	mu   sync.Mutex
	live map[string]Blob
}

func NewMemoryPreviews() *MemoryPreviews {
	return &MemoryPreviews{live: make(map[string]Blob)}
}

func (p *MemoryPreviews) Acquire(blob Blob) (PreviewHandle, error) {
	key := uuid.NewString()
	p.mu.Lock()
	p.live[key] = blob
	p.mu.Unlock()
	return PreviewHandle{Key: key, URL: "mem://" + key}, nil
}

func (p *MemoryPreviews) Release(h PreviewHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[h.Key]; !ok {
		return ErrPreviewNotFound
	}
	delete(p.live, h.Key)
	return nil
}

func (p *MemoryPreviews) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}
