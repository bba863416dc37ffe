package staging

import (
	"errors"
	"fmt"
	"log"
)

var ErrIndexOutOfRange = errors.New("staged image index out of range")

// Blob is a locally selected image held in memory until submission.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

func (b Blob) Size() int64 {
	return int64(len(b.Data))
}

// PreviewHandle is a revocable local reference used to display a staged image.
type PreviewHandle struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Previews acquires and releases preview handles.
type Previews interface {
	Acquire(blob Blob) (PreviewHandle, error)
	Release(handle PreviewHandle) error
}

// StagedImage pairs a blob with the preview handle it owns.
type StagedImage struct {
	Blob    Blob
	Preview PreviewHandle
}

// Buffer holds staged images in positional order. It is owned by exactly
// one wizard session and is not safe for concurrent use.
type Buffer struct {
	previews Previews
	images   []StagedImage
}

func NewBuffer(previews Previews) *Buffer {
	return &Buffer{previews: previews}
}

// Stage appends one image per blob, keeping already staged images. If a
// preview cannot be acquired, handles acquired during this call are
// released and the buffer is left unchanged.
func (b *Buffer) Stage(blobs []Blob) error {
	added := make([]StagedImage, 0, len(blobs))
	for _, blob := range blobs {
		handle, err := b.previews.Acquire(blob)
		if err != nil {
			for _, img := range added {
				b.release(img.Preview)
			}
			return fmt.Errorf("acquire preview for %s: %w", blob.Name, err)
		}
		added = append(added, StagedImage{Blob: blob, Preview: handle})
	}
	b.images = append(b.images, added...)
	return nil
}

// Unstage removes the image at index and releases its preview. Later
// images shift down by one.
func (b *Buffer) Unstage(index int) error {
	if index < 0 || index >= len(b.images) {
		return ErrIndexOutOfRange
	}
	img := b.images[index]
	b.images = append(b.images[:index:index], b.images[index+1:]...)
	b.release(img.Preview)
	return nil
}

// Clear removes every image and releases every preview.
func (b *Buffer) Clear() {
	images := b.images
	b.images = nil
	for _, img := range images {
		b.release(img.Preview)
	}
}

func (b *Buffer) Len() int {
	return len(b.images)
}

// Blobs returns the staged blobs in order.
func (b *Buffer) Blobs() []Blob {
	out := make([]Blob, len(b.images))
	for i, img := range b.images {
		out[i] = img.Blob
	}
	return out
}

// Handles returns the live preview handles in order.
func (b *Buffer) Handles() []PreviewHandle {
	out := make([]PreviewHandle, len(b.images))
	for i, img := range b.images {
		out[i] = img.Preview
	}
	return out
}

// Lookup finds the staged image that owns the preview key.
func (b *Buffer) Lookup(key string) (StagedImage, bool) {
	for _, img := range b.images {
		if img.Preview.Key == key {
			return img, true
		}
	}
	return StagedImage{}, false
}

func (b *Buffer) release(h PreviewHandle) {
	if err := b.previews.Release(h); err != nil {
		log.Printf("release preview %s failed: %v", h.Key, err)
	}
}
