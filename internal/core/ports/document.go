package ports

import (
	"context"
	"errors"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/google/uuid"
)

// ErrDocumentNotFound is returned when a document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// ErrInvalidDocument is returned when a document fails business validation.
var ErrInvalidDocument = errors.New("invalid document")

// DocumentRepository defines the interface for document persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *document.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*document.Document, error)
	Update(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search returns up to limit documents matching query, ordered by id, strictly after cursor.
	Search(ctx context.Context, query string, cursor string, limit int) ([]*document.Document, error)
}

// DocumentService defines the interface for document business logic
type DocumentService interface {
	CreateDocument(ctx context.Context, req *document.CreateDocumentRequest) (*document.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*document.Document, error)
	UpdateDocument(ctx context.Context, id uuid.UUID, req *document.UpdateDocumentRequest) (*document.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	SearchDocuments(ctx context.Context, req *document.SearchRequest) (*document.SearchResult, error)
}
