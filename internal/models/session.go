package models

import "time"

// Session summarizes a wizard session for clients.
type Session struct {
	ID                   string    `json:"id"`
	SubmitterID          string    `json:"submitter_id"`
	SubmitterDisplayName string    `json:"submitter_display_name"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
