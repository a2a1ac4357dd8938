package services_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/replaycache/internal/application/services"
	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/cache"
	"github.com/avatarctic/replaycache/internal/mocks"
)

func docs(n int) []*document.Document {
	out := make([]*document.Document, n)
	for i := range out {
		out[i] = &document.Document{ID: uuid.New(), Title: "doc " + strconv.Itoa(i)}
	}
	return out
}

func TestCreateDocument_TrimsTitleAndAssignsID(t *testing.T) {
	var saved *document.Document
	repo := &mocks.DocumentRepositoryMock{CreateFn: func(_ context.Context, d *document.Document) error {
		saved = d
		return nil
	}}
	svc := impl.NewDocumentService(repo, nil, 0, nil)

	doc, err := svc.CreateDocument(context.Background(), &document.CreateDocumentRequest{Title: "  Hello  ", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, "Hello", doc.Title)
	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Same(t, saved, doc)
	require.False(t, doc.CreatedAt.IsZero())
}

func TestCreateDocument_BlankTitleIsInvalid(t *testing.T) {
	svc := impl.NewDocumentService(&mocks.DocumentRepositoryMock{}, nil, 0, nil)
	_, err := svc.CreateDocument(context.Background(), &document.CreateDocumentRequest{Title: "   "})
	require.ErrorIs(t, err, ports.ErrInvalidDocument)
}

func TestUpdateDocument_AppliesPartialChanges(t *testing.T) {
	id := uuid.New()
	repo := &mocks.DocumentRepositoryMock{GetByIDFn: func(context.Context, uuid.UUID) (*document.Document, error) {
		return &document.Document{ID: id, Title: "old", Body: "keep"}, nil
	}}
	svc := impl.NewDocumentService(repo, nil, 0, nil)

	title := "new"
	doc, err := svc.UpdateDocument(context.Background(), id, &document.UpdateDocumentRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "new", doc.Title)
	require.Equal(t, "keep", doc.Body)
}

func TestUpdateDocument_NotFound(t *testing.T) {
	svc := impl.NewDocumentService(&mocks.DocumentRepositoryMock{}, nil, 0, nil)
	_, err := svc.UpdateDocument(context.Background(), uuid.New(), &document.UpdateDocumentRequest{})
	require.ErrorIs(t, err, ports.ErrDocumentNotFound)
}

func TestSearchDocuments_PaginatesWithCursor(t *testing.T) {
	all := docs(5)
	var gotLimit int
	repo := &mocks.DocumentRepositoryMock{SearchFn: func(_ context.Context, q, cursor string, limit int) ([]*document.Document, error) {
		gotLimit = limit
		return all[:limit], nil
	}}
	svc := impl.NewDocumentService(repo, nil, 2, nil)

	res, err := svc.SearchDocuments(context.Background(), &document.SearchRequest{Query: "doc"})
	require.NoError(t, err)
	require.Equal(t, 3, gotLimit)
	require.Len(t, res.Items, 2)
	require.Equal(t, all[1].ID.String(), res.NextCursor)
	require.False(t, res.FromCache)
}

func TestSearchDocuments_LastPageHasNoCursor(t *testing.T) {
	repo := &mocks.DocumentRepositoryMock{SearchFn: func(context.Context, string, string, int) ([]*document.Document, error) {
		return docs(1), nil
	}}
	svc := impl.NewDocumentService(repo, nil, 2, nil)

	res, err := svc.SearchDocuments(context.Background(), &document.SearchRequest{Query: "doc"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Empty(t, res.NextCursor)
}

func TestSearchDocuments_CachedUntilMutation(t *testing.T) {
	ctx := context.Background()
	calls := 0
	repo := &mocks.DocumentRepositoryMock{SearchFn: func(context.Context, string, string, int) ([]*document.Document, error) {
		calls++
		return docs(1), nil
	}}
	fetcher := cache.NewFetcher[document.Document](cache.NewMemoryCache(), cache.FetcherConfig{Namespace: "search"}, nil)
	svc := impl.NewDocumentService(repo, fetcher, 10, nil)

	_, err := svc.SearchDocuments(ctx, &document.SearchRequest{Query: "doc"})
	require.NoError(t, err)
	res, err := svc.SearchDocuments(ctx, &document.SearchRequest{Query: "doc"})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, 1, calls)

	res, err = svc.SearchDocuments(ctx, &document.SearchRequest{Query: "doc", Refresh: true})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, 2, calls)

	_, err = svc.CreateDocument(ctx, &document.CreateDocumentRequest{Title: "new"})
	require.NoError(t, err)
	res, err = svc.SearchDocuments(ctx, &document.SearchRequest{Query: "doc"})
	require.NoError(t, err)
	require.False(t, res.FromCache, "a mutation invalidates cached pages")
	require.Equal(t, 3, calls)
}

func TestSearchDocuments_RepositoryErrorSurfaces(t *testing.T) {
	repo := &mocks.DocumentRepositoryMock{SearchFn: func(context.Context, string, string, int) ([]*document.Document, error) {
		return nil, errors.New("db down")
	}}
	svc := impl.NewDocumentService(repo, nil, 2, nil)
	_, err := svc.SearchDocuments(context.Background(), &document.SearchRequest{Query: "doc"})
	require.Error(t, err)
}
