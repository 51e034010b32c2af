package repository

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/debemdeboas/inkwell/internal/db"
	"github.com/debemdeboas/inkwell/internal/model"
)

func setupTestRepo(t *testing.T) *DBArticleRepository {
	t.Helper()
	sqlite := db.NewSQLite(":memory:")
	if err := sqlite.InitDB(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return NewDBArticleRepository(sqlite)
}

func payload(title, body string) model.ArticlePayload {
	return model.ArticlePayload{
		Status:    model.StatusDraft,
		Title:     title,
		Body:      body,
		Tags:      []string{"go", "Go", " cats "},
		UploadIDs: []string{"u1", "u2", "u1"},
	}
}

func TestSaveAndGetArticle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	saved, err := repo.SaveArticle(ctx, payload("Hello", "# Hello\n\n![x](https://cdn.example.com/1)"))
	if err != nil {
		t.Fatalf("Failed to save article: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("Expected an article id")
	}
	if saved.PublishedDate != nil {
		t.Error("Expected draft to have no published date")
	}
	if !slices.Equal(saved.UploadIDs, []string{"u1", "u2"}) {
		t.Errorf("Expected deduplicated upload ids, got %v", saved.UploadIDs)
	}

	// Bypass the cache to exercise the database path.
	fresh := NewDBArticleRepository(repo.db)
	got, err := fresh.GetArticle(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if got.Body != saved.Body {
		t.Errorf("Expected body %q, got %q", saved.Body, got.Body)
	}
	if got.Title != "Hello" {
		t.Errorf("Expected title Hello, got %s", got.Title)
	}
	if !slices.Equal(got.Tags, saved.Tags) {
		t.Errorf("Expected tags %v, got %v", saved.Tags, got.Tags)
	}
	if !slices.Equal(got.UploadIDs, []string{"u1", "u2"}) {
		t.Errorf("Expected upload ids in order, got %v", got.UploadIDs)
	}
	if got.MDContentHash == "" {
		t.Error("Expected a content hash")
	}
}

func TestGetArticleNotFound(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.GetArticle(context.Background(), "missing")
	if !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("Expected ErrArticleNotFound, got %v", err)
	}
}

func TestSaveArticleUpdate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, err := repo.SaveArticle(ctx, payload("One", "body"))
	if err != nil {
		t.Fatalf("Failed to save article: %v", err)
	}

	p := payload("One, edited", "new body")
	p.ID = &first.ID
	p.Status = model.StatusPublished
	p.Tags = []string{"edited"}
	p.UploadIDs = nil
	updated, err := repo.SaveArticle(ctx, p)
	if err != nil {
		t.Fatalf("Failed to update article: %v", err)
	}
	if updated.ID != first.ID {
		t.Errorf("Expected id %s, got %s", first.ID, updated.ID)
	}
	if updated.PublishedDate == nil {
		t.Fatal("Expected published date on first publish")
	}
	if !updated.CreatedDate.Equal(first.CreatedDate) {
		t.Errorf("Expected created date %v, got %v", first.CreatedDate, updated.CreatedDate)
	}

	fresh := NewDBArticleRepository(repo.db)
	got, err := fresh.GetArticle(ctx, first.ID)
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if !slices.Equal(got.Tags, []string{"edited"}) {
		t.Errorf("Expected tags to be replaced, got %v", got.Tags)
	}
	if len(got.UploadIDs) != 0 {
		t.Errorf("Expected upload ids to be replaced, got %v", got.UploadIDs)
	}

	// Republishing keeps the original publish time.
	repo.now = func() time.Time { return updated.PublishedDate.Add(time.Hour) }
	again, err := repo.SaveArticle(ctx, p)
	if err != nil {
		t.Fatalf("Failed to republish article: %v", err)
	}
	if !again.PublishedDate.Equal(*updated.PublishedDate) {
		t.Errorf("Expected published date %v, got %v", updated.PublishedDate, again.PublishedDate)
	}
}

func TestSaveArticleErrors(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	withSlug := payload("Slugged", "body")
	withSlug.Slug = "taken"
	if _, err := repo.SaveArticle(ctx, withSlug); err != nil {
		t.Fatalf("Failed to save article: %v", err)
	}

	missingID := model.ArticleID("nope")
	tests := []struct {
		name    string
		mutate  func(p *model.ArticlePayload)
		wantErr error
	}{
		{"Empty title", func(p *model.ArticlePayload) { p.Title = "  " }, ErrInvalidArticle},
		{"Empty body", func(p *model.ArticlePayload) { p.Body = "" }, ErrInvalidArticle},
		{"Unknown status", func(p *model.ArticlePayload) { p.Status = "archived" }, ErrInvalidArticle},
		{"Slug conflict", func(p *model.ArticlePayload) { p.Slug = "taken" }, ErrSlugConflict},
		{"Unknown id", func(p *model.ArticlePayload) { p.ID = &missingID }, ErrArticleNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := payload("Title", "body")
			tt.mutate(&p)
			_, err := repo.SaveArticle(ctx, p)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEmptySlugsDoNotConflict(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := repo.SaveArticle(ctx, payload("No slug", "body")); err != nil {
			t.Fatalf("Failed to save article %d: %v", i, err)
		}
	}
}

func TestListArticles(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"Oldest", "Middle", "Newest"} {
		at := base.Add(time.Duration(i) * time.Hour)
		repo.now = func() time.Time { return at }
		if _, err := repo.SaveArticle(ctx, payload(title, "body")); err != nil {
			t.Fatalf("Failed to save article: %v", err)
		}
	}

	articles, err := repo.ListArticles(ctx)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("Expected 3 articles, got %d", len(articles))
	}
	for i, want := range []string{"Newest", "Middle", "Oldest"} {
		if articles[i].Title != want {
			t.Errorf("Expected article %d to be %s, got %s", i, want, articles[i].Title)
		}
		if articles[i].Body != "" {
			t.Errorf("Expected listing without body, got %q", articles[i].Body)
		}
	}
}

func TestSaveNotifier(t *testing.T) {
	repo := setupTestRepo(t)
	done := make(chan model.ArticleID, 1)
	repo.SetSaveNotifier(func(id model.ArticleID) { done <- id })

	saved, err := repo.SaveArticle(context.Background(), payload("Notify", "body"))
	if err != nil {
		t.Fatalf("Failed to save article: %v", err)
	}

	select {
	case id := <-done:
		if id != saved.ID {
			t.Errorf("Expected notification for %s, got %s", saved.ID, id)
		}
	case <-time.After(time.Second):
		t.Error("Expected save notification")
	}
}
