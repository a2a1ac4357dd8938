package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/db"
)

// DocumentRepository implements ports.DocumentRepository on Postgres
type DocumentRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(database *db.Database, logger *logrus.Logger) ports.DocumentRepository {
	return &DocumentRepository{db: database, logger: logger}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	query := `
		INSERT INTO documents (id, title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.DB.ExecContext(ctx, query, doc.ID, doc.Title, doc.Body, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	var doc document.Document
	query := `
		SELECT id, title, body, created_at, updated_at
		FROM documents
		WHERE id = $1`

	if err := r.db.DB.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ports.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document by ID: %w", err)
	}
	return &doc, nil
}

// Update overwrites title, body and updated_at
func (r *DocumentRepository) Update(ctx context.Context, doc *document.Document) error {
	query := `
		UPDATE documents
		SET title = $2, body = $3, updated_at = $4
		WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, doc.ID, doc.Title, doc.Body, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return requireAffected(result, doc.ID)
}

// Delete removes a document
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireAffected(result, id)
}

// Search returns documents whose title or body contains query, keyset-paginated by id
func (r *DocumentRepository) Search(ctx context.Context, query string, cursor string, limit int) ([]*document.Document, error) {
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
	}

	sqlQuery := `
		SELECT id, title, body, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR body ILIKE '%' || $1 || '%')
		  AND id > COALESCE(NULLIF($2, '')::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
		ORDER BY id
		LIMIT $3`

	docs := []*document.Document{}
	if err := r.db.DB.SelectContext(ctx, &docs, sqlQuery, escapeLike(strings.TrimSpace(query)), cursor, limit); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"query": query, "cursor": cursor}).WithError(err).Error("document search failed")
		}
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return docs, nil
}

func requireAffected(result sql.Result, id uuid.UUID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, ports.ErrDocumentNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
