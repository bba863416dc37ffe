package models

import "time"

// Listing is the persisted record of one completed book-sale submission.
type Listing struct {
	ID                   string         `json:"id,omitempty"`
	Fields               map[string]any `json:"fields"`
	Images               []string       `json:"images"`
	SubmitterID          string         `json:"submitterId"`
	SubmitterDisplayName string         `json:"submitterDisplayName"`
	CreatedAt            *time.Time     `json:"createdAt,omitempty"`
}

const ListingsCollection = "listings"
