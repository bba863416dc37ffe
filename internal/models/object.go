package models

import "time"

// StoredObject describes an image accepted by the object store.
type StoredObject struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Bucket      string    `json:"bucket,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
