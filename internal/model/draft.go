package model

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/debemdeboas/inkwell/internal/asset"
)

// DraftSchemaVersion tags cached records. Bump it when DraftRecord changes
// shape so older cache entries are dropped instead of misread.
const DraftSchemaVersion = 1

type DraftKey string

const (
	newDraftPrefix     = "new:"
	articleDraftPrefix = "article:"
)

func NewDraftKey() DraftKey {
	return DraftKey(newDraftPrefix + uuid.NewString())
}

func ArticleDraftKey(id ArticleID) DraftKey {
	return DraftKey(articleDraftPrefix + string(id))
}

func (k DraftKey) IsNew() bool {
	return strings.HasPrefix(string(k), newDraftPrefix)
}

// ArticleID returns the article a key edits, if any.
func (k DraftKey) ArticleID() (ArticleID, bool) {
	id, ok := strings.CutPrefix(string(k), articleDraftPrefix)
	return ArticleID(id), ok && id != ""
}

func (k DraftKey) Valid() bool {
	s := string(k)
	return (strings.HasPrefix(s, newDraftPrefix) && len(s) > len(newDraftPrefix)) ||
		(strings.HasPrefix(s, articleDraftPrefix) && len(s) > len(articleDraftPrefix))
}

type CoverKind string

const (
	CoverNone   CoverKind = ""
	CoverRemote CoverKind = "remote"
	CoverLocal  CoverKind = "local"
)

// CoverState is the single cover slot. A local cover keeps its file name so
// it can be recovered by folder selection when the handle is gone.
type CoverState struct {
	Kind     CoverKind     `json:"kind,omitempty"`
	URL      string        `json:"url,omitempty"`
	UploadID string        `json:"upload_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Handle   *asset.Handle `json:"handle,omitempty"`
}

func RemoteCover(url, uploadID string) CoverState {
	return CoverState{Kind: CoverRemote, URL: url, UploadID: uploadID}
}

func LocalCover(h *asset.Handle) CoverState {
	return CoverState{Kind: CoverLocal, Name: h.Name, Handle: h}
}

func (c CoverState) Pending() bool {
	return c.Kind == CoverLocal
}

func (c CoverState) Missing() bool {
	return c.Kind == CoverLocal && c.Handle == nil
}

// DraftRecord is everything needed to restore an editor.
type DraftRecord struct {
	Key           DraftKey   `json:"key"`
	SchemaVersion int        `json:"schema_version"`
	ModifiedAt    time.Time  `json:"modified_at"`
	EntityID      *ArticleID `json:"entity_id,omitempty"`

	Title      string     `json:"title"`
	Summary    string     `json:"summary,omitempty"`
	Slug       string     `json:"slug,omitempty"`
	Tags       []string   `json:"tags"`
	CategoryID *string    `json:"category_id,omitempty"`
	Cover      CoverState `json:"cover"`
	Body       string     `json:"body"`

	// Uploaded maps durable references produced by earlier pipeline passes to
	// their upload ids.
	Uploaded map[string]string `json:"uploaded"`
	// Local holds the blobs that are not durable yet.
	Local map[string]*asset.Handle `json:"local"`
}

func NewDraftRecord(key DraftKey) *DraftRecord {
	return &DraftRecord{
		Key:           key,
		SchemaVersion: DraftSchemaVersion,
		Tags:          []string{},
		Uploaded:      make(map[string]string),
		Local:         make(map[string]*asset.Handle),
	}
}

// DraftFromArticle seeds a record for editing an existing article.
func DraftFromArticle(a *Article) *DraftRecord {
	r := NewDraftRecord(ArticleDraftKey(a.ID))
	id := a.ID
	r.EntityID = &id
	r.Title = a.Title
	r.Summary = a.Summary
	r.Slug = a.Slug
	r.Tags = NormalizeTags(a.Tags)
	r.CategoryID = a.CategoryID
	r.Body = a.Body
	if a.CoverURL != "" {
		r.Cover = RemoteCover(a.CoverURL, "")
	}
	return r
}

// Clone copies the record. Handles are shared, they are never mutated.
func (r *DraftRecord) Clone() *DraftRecord {
	if r == nil {
		return nil
	}

	out := *r
	out.Tags = slices.Clone(r.Tags)
	out.Uploaded = maps.Clone(r.Uploaded)
	out.Local = maps.Clone(r.Local)
	if r.EntityID != nil {
		id := *r.EntityID
		out.EntityID = &id
	}
	if r.CategoryID != nil {
		c := *r.CategoryID
		out.CategoryID = &c
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Uploaded == nil {
		out.Uploaded = make(map[string]string)
	}
	if out.Local == nil {
		out.Local = make(map[string]*asset.Handle)
	}
	return &out
}

// NormalizeTags trims tags and drops empty and repeated ones, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
