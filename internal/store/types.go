package store

import "time"

// Context is a library item as projected from the event log.
// Labels holds associated label ids in insertion order.
type Context struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Version    string    `json:"version"`
	CreatorID  string    `json:"creator_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Labels     []string  `json:"labels"`
}

// Label is a projected label row.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Library is the projected library record with its member set.
type Library struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	CreatorID string   `json:"creator_id,omitempty"`
	Members   []string `json:"members,omitempty"`
}
