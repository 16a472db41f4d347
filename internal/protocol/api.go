// Package protocol defines the command-service request/response types.
package protocol

import "github.com/corvex/corvex/internal/models"

// TreeResponse is returned by GET /api/v1/tree
type TreeResponse struct {
	Root *models.Folder `json:"root"`
}

// ErrorResponse is returned on API errors. Kind carries the error taxonomy
// name ("not_found", "conflict", ...).
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Kind  string `json:"kind"`
}

// PathChangeRequest is the body for POST /api/v1/rename and POST /api/v1/move.
type PathChangeRequest struct {
	Kind    string `json:"kind"` // "file" | "folder"
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// ContentRequest is the body for PUT /api/v1/content/{path}.
type ContentRequest struct {
	Content string `json:"content"`
}

// ContentResponse is returned by GET /api/v1/content/{path}.
type ContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Change event types published on GET /api/v1/events.
const (
	EventCreate = "create"
	EventRename = "rename"
	EventMove   = "move"
	EventDelete = "delete"
	EventModify = "modify"
)

// ChangeEvent is a server-sent notification that the workspace changed.
type ChangeEvent struct {
	Type      string `json:"type"`
	Kind      string `json:"kind,omitempty"`
	Path      string `json:"path"`
	NewPath   string `json:"new_path,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// TokenResponse is printed by `corvex-server token`.
type TokenResponse struct {
	Token     string `json:"token"`
	Subject   string `json:"subject"`
	ExpiresAt int64  `json:"expires_at"`
}
