package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
)

// DefaultSearchPageSize is the number of documents per search page.
const DefaultSearchPageSize = 20

type DocumentService struct {
	repo     ports.DocumentRepository
	search   *cache.Fetcher[document.Document]
	pageSize int
	logger   *logrus.Logger
}

// NewDocumentService wires document CRUD with a paged search cache. search may be nil,
// in which case every search goes to the repository.
func NewDocumentService(repo ports.DocumentRepository, search *cache.Fetcher[document.Document], pageSize int, logger *logrus.Logger) ports.DocumentService {
	if pageSize <= 0 {
		pageSize = DefaultSearchPageSize
	}
	return &DocumentService{repo: repo, search: search, pageSize: pageSize, logger: logger}
}

func (s *DocumentService) CreateDocument(ctx context.Context, req *document.CreateDocumentRequest) (*document.Document, error) {
	now := time.Now().UTC()
	doc := &document.Document{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc.Title == "" {
		return nil, fmt.Errorf("%w: title must not be blank", ports.ErrInvalidDocument)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	s.invalidateSearch(ctx, "create", doc.ID)
	return doc, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DocumentService) UpdateDocument(ctx context.Context, id uuid.UUID, req *document.UpdateDocumentRequest) (*document.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Apply(req)
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	s.invalidateSearch(ctx, "update", id)
	return doc, nil
}

func (s *DocumentService) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.invalidateSearch(ctx, "delete", id)
	return nil
}

// SearchDocuments serves a page of matching documents, from the page cache unless
// req.Refresh is set. The cursor is the id of the last document on the previous page.
func (s *DocumentService) SearchDocuments(ctx context.Context, req *document.SearchRequest) (*document.SearchResult, error) {
	if s.search == nil {
		page, err := s.loadPage(ctx, req.Query, req.Cursor)
		if err != nil {
			return nil, err
		}
		return &document.SearchResult{Items: page.Items, NextCursor: page.NextCursor}, nil
	}
	res, err := s.search.Fetch(ctx, req.Query, req.Cursor, req.Refresh, s.loadPage)
	if err != nil {
		return nil, err
	}
	return &document.SearchResult{Items: res.Items, NextCursor: res.NextCursor, FromCache: res.FromCache}, nil
}

// loadPage asks the repository for one extra row to learn whether a next page exists.
func (s *DocumentService) loadPage(ctx context.Context, query, cursor string) (cache.Page[document.Document], error) {
	docs, err := s.repo.Search(ctx, strings.TrimSpace(query), cursor, s.pageSize+1)
	if err != nil {
		return cache.Page[document.Document]{}, fmt.Errorf("failed to search documents: %w", err)
	}
	page := cache.Page[document.Document]{Items: make([]document.Document, 0, len(docs))}
	for i, d := range docs {
		if i == s.pageSize {
			page.NextCursor = docs[i-1].ID.String()
			break
		}
		page.Items = append(page.Items, *d)
	}
	return page, nil
}

func (s *DocumentService) invalidateSearch(ctx context.Context, op string, id uuid.UUID) {
	if s.search == nil {
		return
	}
	if !s.search.Invalidate(ctx) && s.logger != nil {
		s.logger.WithFields(logrus.Fields{"op": op, "document_id": id, "namespace": s.search.Namespace()}).Warn("failed to invalidate search cache")
	}
}
