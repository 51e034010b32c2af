// Package model defines the draft and article records shared by the editor,
// the draft cache and the article store.
package model

import (
	"errors"
	"time"
)

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrSlugConflict    = errors.New("slug already in use")
	ErrInvalidArticle  = errors.New("invalid article")
)

type ArticleID string

type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusPublished ArticleStatus = "published"
)

// ArticlePayload is the fully resolved article handed to the save service.
// Every image in Body and CoverURL is already durable.
type ArticlePayload struct {
	ID         *ArticleID    `json:"id,omitempty"`
	Status     ArticleStatus `json:"status"`
	Title      string        `json:"title"`
	Body       string        `json:"body"`
	Summary    string        `json:"summary,omitempty"`
	CoverURL   string        `json:"cover_url,omitempty"`
	Tags       []string      `json:"tags"`
	CategoryID *string       `json:"category_id,omitempty"`
	Slug       string        `json:"slug,omitempty"`
	UploadIDs  []string      `json:"upload_ids"`
}

type Article struct {
	ID     ArticleID     `json:"id"`
	Status ArticleStatus `json:"status"`

	Title    string `json:"title"`
	Body     string `json:"body"`
	Summary  string `json:"summary,omitempty"`
	Slug     string `json:"slug"`
	CoverURL string `json:"cover_url,omitempty"`

	Tags       []string `json:"tags"`
	CategoryID *string  `json:"category_id,omitempty"`
	UploadIDs  []string `json:"upload_ids"`

	// Hash of the stored (compressed) body.
	MDContentHash string `json:"-"`

	CreatedDate   time.Time  `json:"created_date"`
	ModifiedDate  time.Time  `json:"modified_date"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

func (a *Article) IsPublished() bool {
	return a.Status == StatusPublished
}
