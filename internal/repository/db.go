// Package repository stores articles in the database. It is the save
// service the editor hands resolved drafts to.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/inkwell/internal/cache"
	"github.com/debemdeboas/inkwell/internal/db"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/util"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

var (
	ErrArticleNotFound = model.ErrArticleNotFound
	ErrSlugConflict    = model.ErrSlugConflict
	ErrInvalidArticle  = model.ErrInvalidArticle
)

var repoLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

type DBArticleRepository struct {
	articles *cache.Cache[model.ArticleID, *model.Article]

	saveNotifier func(model.ArticleID)

	db         db.DB
	compressor compression.Compressor
	now        func() time.Time
}

func NewDBArticleRepository(db db.DB) *DBArticleRepository {
	return &DBArticleRepository{
		articles:   cache.NewCache[model.ArticleID, *model.Article](),
		db:         db,
		compressor: compression.ZstdCompressor{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetSaveNotifier sets a function called after every successful save.
func (r *DBArticleRepository) SetSaveNotifier(notifier func(model.ArticleID)) {
	r.saveNotifier = notifier
}

func validate(p model.ArticlePayload) error {
	switch {
	case strings.TrimSpace(p.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidArticle)
	case strings.TrimSpace(p.Body) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidArticle)
	case p.Status != model.StatusDraft && p.Status != model.StatusPublished:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArticle, p.Status)
	}
	return nil
}

// SaveArticle inserts a new article when p.ID is nil and updates it
// otherwise. Tags and upload links are replaced as a whole.
func (r *DBArticleRepository) SaveArticle(ctx context.Context, p model.ArticlePayload) (*model.Article, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	compressed, err := r.compressor.Compress([]byte(p.Body))
	if err != nil {
		return nil, fmt.Errorf("error compressing content: %w", err)
	}

	now := r.now()
	a := &model.Article{
		Status:        p.Status,
		Title:         strings.TrimSpace(p.Title),
		Body:          p.Body,
		Summary:       p.Summary,
		Slug:          strings.TrimSpace(p.Slug),
		CoverURL:      p.CoverURL,
		Tags:          model.NormalizeTags(p.Tags),
		CategoryID:    p.CategoryID,
		UploadIDs:     dedupe(p.UploadIDs),
		MDContentHash: util.ContentHash(compressed),
		CreatedDate:   now,
		ModifiedDate:  now,
	}

	tx, err := r.db.Get().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if p.ID == nil {
		a.ID = model.ArticleID(uuid.NewString())
	} else {
		a.ID = *p.ID
		var created time.Time
		var published sql.NullTime
		err := tx.QueryRowContext(ctx, `SELECT created_at, published_at FROM posts WHERE id = ?`, a.ID).Scan(&created, &published)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, a.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("error reading article %s: %w", a.ID, err)
		}
		a.CreatedDate = created
		if published.Valid {
			t := published.Time
			a.PublishedDate = &t
		}
	}

	if a.Slug != "" {
		var other string
		err := tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE slug = ? AND id != ?`, a.Slug, a.ID).Scan(&other)
		if err == nil {
			return nil, fmt.Errorf("%w: %s", ErrSlugConflict, a.Slug)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error checking slug: %w", err)
		}
	}

	if a.IsPublished() && a.PublishedDate == nil {
		a.PublishedDate = &now
	}

	args := []any{
		a.Status, a.Title, nullable(a.Slug), a.Summary, a.CoverURL, a.CategoryID,
		compressed, a.MDContentHash, a.ModifiedDate, a.PublishedDate,
	}
	if p.ID == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO posts (status, title, slug, summary, cover_url, category_id, content, md_content_hash, modified_at, published_at, id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(args, a.ID, a.CreatedDate)...)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE posts SET status = ?, title = ?, slug = ?, summary = ?, cover_url = ?, category_id = ?,
			 content = ?, md_content_hash = ?, modified_at = ?, published_at = ? WHERE id = ?`,
			append(args, a.ID)...)
	}
	if err != nil {
		return nil, fmt.Errorf("error saving article: %w", err)
	}

	if err := replaceLinks(ctx, tx, "post_tags", "tag", a.ID, a.Tags); err != nil {
		return nil, err
	}
	if err := replaceLinks(ctx, tx, "post_uploads", "upload_id", a.ID, a.UploadIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing article: %w", err)
	}

	r.articles.Set(a.ID, a)
	repoLogger.Info().
		Str("article_id", string(a.ID)).
		Str("status", string(a.Status)).
		Int("uploads", len(a.UploadIDs)).
		Msg("Article saved")

	if r.saveNotifier != nil {
		go r.saveNotifier(a.ID)
	}

	out := *a
	return &out, nil
}

func replaceLinks(ctx context.Context, tx *sql.Tx, table, column string, id model.ArticleID, values []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE post_id = ?`, id); err != nil {
		return fmt.Errorf("error clearing %s: %w", table, err)
	}
	for i, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (post_id, position, `+column+`) VALUES (?, ?, ?)`, id, i, v); err != nil {
			return fmt.Errorf("error writing %s: %w", table, err)
		}
	}
	return nil
}

// GetArticle returns an article, from the cache when it was saved by this
// process.
func (r *DBArticleRepository) GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error) {
	if a, ok := r.articles.Get(id); ok {
		out := *a
		return &out, nil
	}

	var (
		a          model.Article
		slug       sql.NullString
		category   sql.NullString
		published  sql.NullTime
		compressed []byte
	)
	err := r.db.Get().QueryRowContext(ctx,
		`SELECT id, status, title, slug, summary, cover_url, category_id, content, md_content_hash, created_at, modified_at, published_at
		 FROM posts WHERE id = ?`, id).
		Scan(&a.ID, &a.Status, &a.Title, &slug, &a.Summary, &a.CoverURL, &category, &compressed, &a.MDContentHash, &a.CreatedDate, &a.ModifiedDate, &published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading article %s: %w", id, err)
	}

	content, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content: %w", err)
	}
	a.Body = string(content)
	a.Slug = slug.String
	if category.Valid {
		c := category.String
		a.CategoryID = &c
	}
	if published.Valid {
		t := published.Time
		a.PublishedDate = &t
	}

	if a.Tags, err = r.links(ctx, "post_tags", "tag", id); err != nil {
		return nil, err
	}
	if a.UploadIDs, err = r.links(ctx, "post_uploads", "upload_id", id); err != nil {
		return nil, err
	}

	r.articles.Set(a.ID, &a)
	out := a
	return &out, nil
}

func (r *DBArticleRepository) links(ctx context.Context, table, column string, id model.ArticleID) ([]string, error) {
	rows, err := r.db.Get().QueryContext(ctx, `SELECT `+column+` FROM `+table+` WHERE post_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("error querying %s: %w", table, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", table, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ListArticles returns every article without its body, most recently
// modified first.
func (r *DBArticleRepository) ListArticles(ctx context.Context) ([]model.Article, error) {
	rows, err := r.db.Get().QueryContext(ctx,
		`SELECT id, status, title, slug, summary, cover_url, md_content_hash, created_at, modified_at FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("error querying articles: %w", err)
	}
	defer rows.Close()

	articles := make([]model.Article, 0)
	for rows.Next() {
		var a model.Article
		var slug sql.NullString
		if err := rows.Scan(&a.ID, &a.Status, &a.Title, &slug, &a.Summary, &a.CoverURL, &a.MDContentHash, &a.CreatedDate, &a.ModifiedDate); err != nil {
			return nil, fmt.Errorf("error scanning article: %w", err)
		}
		a.Slug = slug.String
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(articles, func(a, b model.Article) int {
		return -a.ModifiedDate.Compare(b.ModifiedDate)
	})
	return articles, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
