// Package models defines the domain types shared by the curator pipeline.
package models

import "time"

// NoteRecord is a parsed Markdown note as seen by one orchestration pass.
// It is read-only for every stage.
type NoteRecord struct {
	Path        string         `json:"path"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body"`
	Title       string         `json:"title,omitempty"`
	Links       []string       `json:"links,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Checksum    string         `json:"checksum,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Text returns the content handed to AI providers: title followed by body.
func (n NoteRecord) Text() string {
	if n.Title == "" {
		return n.Body
	}
	return n.Title + "\n\n" + n.Body
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
