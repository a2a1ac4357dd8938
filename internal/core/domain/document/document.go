package document

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateDocumentRequest represents the payload for creating a document
type CreateDocumentRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body"`
}

// UpdateDocumentRequest represents a partial document update
type UpdateDocumentRequest struct {
	Title *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Body  *string `json:"body,omitempty"`
}

// Apply copies the non-nil fields of req onto the document.
func (d *Document) Apply(req *UpdateDocumentRequest) {
	if req.Title != nil {
		d.Title = *req.Title
	}
	if req.Body != nil {
		d.Body = *req.Body
	}
	d.UpdatedAt = time.Now()
}

type SearchRequest struct {
	Query   string `query:"q"`
	Cursor  string `query:"cursor"`
	Refresh bool   `query:"refresh"`
}

type SearchResult struct {
	Items      []Document `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	FromCache  bool       `json:"from_cache"`
}
