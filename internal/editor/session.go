// Package editor hosts editor sessions: it caches drafts with their local
// images, recovers missing files and sequences uploads before an article is
// saved.
package editor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/pipeline"
	"github.com/debemdeboas/inkwell/internal/upload"
	"github.com/debemdeboas/inkwell/internal/util"
)

var editorLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

// DraftStore persists draft records between restarts.
type DraftStore interface {
	Save(ctx context.Context, r *model.DraftRecord) (time.Time, error)
	Load(ctx context.Context, key model.DraftKey) (*model.DraftRecord, error)
	Clear(ctx context.Context, key model.DraftKey) error
}

// SaveService writes a fully resolved article.
type SaveService interface {
	SaveArticle(ctx context.Context, p model.ArticlePayload) (*model.Article, error)
}

// Renderer turns markdown into preview HTML.
type Renderer interface {
	Render(md []byte) []byte
}

type Deps struct {
	Store    DraftStore
	Uploader upload.Uploader
	Saver    SaveService
	Renderer Renderer
	Previews *Previews
	Pipeline pipeline.Options

	// DismissAfter is the delay before a successful Complete returns to Idle.
	DismissAfter time.Duration
	// Notify receives every state transition.
	Notify func(model.DraftKey, Status)
}

// Edit changes the text fields of a draft. Nil fields are left alone.
type Edit struct {
	Title         *string   `json:"title,omitempty"`
	Summary       *string   `json:"summary,omitempty"`
	Slug          *string   `json:"slug,omitempty"`
	Body          *string   `json:"body,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	CategoryID    *string   `json:"category_id,omitempty"`
	ClearCategory bool      `json:"clear_category,omitempty"`
}

type PreviewResult struct {
	HTML string `json:"html"`
	// Body is the previewed text with local references replaced by preview URLs.
	Body string            `json:"body"`
	URLs map[string]string `json:"urls"`
}

// Result is what a finished operation produced.
type Result struct {
	Operation Operation      `json:"operation"`
	SavedAt   time.Time      `json:"saved_at,omitempty"`
	Article   *model.Article `json:"article,omitempty"`
	Preview   *PreviewResult `json:"preview,omitempty"`
}

// RestoreOffer describes a cached record found when the session was opened.
type RestoreOffer struct {
	Key         model.DraftKey `json:"key"`
	SavedAt     time.Time      `json:"saved_at"`
	Title       string         `json:"title"`
	LocalAssets int            `json:"local_assets"`
}

// Session is one open editor. All operations are serialized by its mutex; the
// record and working set are never shared with another session.
type Session struct {
	mu      sync.Mutex
	key     atomic.Value
	deps    Deps
	machine *Machine

	record  *model.DraftRecord
	ws      asset.WorkingSet
	dirty   bool
	pending Operation
	offer   *model.DraftRecord
	closed  bool

	previewURLs []string
	onRekey     func(old, new model.DraftKey)
}

func newSession(record *model.DraftRecord, deps Deps) *Session {
	if deps.Previews == nil {
		deps.Previews = NewPreviews("/preview/")
	}
	if deps.Pipeline.Purpose == "" {
		deps.Pipeline.Purpose = upload.PurposeArticleImage
	}

	s := &Session{
		deps:    deps,
		machine: NewMachine(deps.DismissAfter),
		record:  record.Clone(),
		ws:      make(asset.WorkingSet),
	}
	s.key.Store(record.Key)

	if deps.Notify != nil {
		s.machine.Subscribe(func(st Status) { deps.Notify(s.Key(), st) })
	}
	s.machine.Subscribe(func(st Status) {
		editorLogger.Debug().
			Str("draft_key", string(s.Key())).
			Stringer("state", st.State).
			Str("operation", string(st.Operation)).
			Msg("Editor state changed")
	})
	return s
}

func (s *Session) Key() model.DraftKey {
	return s.key.Load().(model.DraftKey)
}

func (s *Session) Status() Status {
	return s.machine.Status()
}

func (s *Session) Subscribe(fn func(Status)) {
	s.machine.Subscribe(fn)
}

// Record returns a copy of the current draft.
func (s *Session) Record() *model.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// WorkingSet returns a copy of the local handles held by the session.
func (s *Session) WorkingSet() asset.WorkingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.Clone()
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) RestoreOffer() *RestoreOffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offer == nil {
		return nil
	}
	return &RestoreOffer{
		Key:         s.offer.Key,
		SavedAt:     s.offer.ModifiedAt,
		Title:       s.offer.Title,
		LocalAssets: len(s.offer.Local),
	}
}

// AcceptRestore replaces the session state with the cached record. Its cached
// blobs become the working set.
func (s *Session) AcceptRestore() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.offer == nil {
		return ErrNoRestoreOffer
	}

	s.record = s.offer.Clone()
	s.record.Key = s.Key()
	s.ws = make(asset.WorkingSet, len(s.record.Local))
	for ref, h := range s.record.Local {
		if h != nil {
			s.ws[ref] = h
		}
	}
	s.offer = nil
	s.dirty = false

	editorLogger.Info().Str("draft_key", string(s.Key())).Int("local_assets", len(s.ws)).Msg("Cached draft restored")
	return nil
}

// DiscardRestore drops the cached record.
func (s *Session) DiscardRestore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offer == nil {
		return ErrNoRestoreOffer
	}
	if err := s.deps.Store.Clear(ctx, s.Key()); err != nil {
		return err
	}
	s.offer = nil
	editorLogger.Info().Str("draft_key", string(s.Key())).Msg("Cached draft discarded")
	return nil
}

func (s *Session) Apply(e Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	r := s.record
	if e.Title != nil {
		r.Title = *e.Title
	}
	if e.Summary != nil {
		r.Summary = *e.Summary
	}
	if e.Slug != nil {
		r.Slug = strings.TrimSpace(*e.Slug)
	}
	if e.Body != nil {
		r.Body = *e.Body
	}
	if e.Tags != nil {
		r.Tags = model.NormalizeTags(*e.Tags)
	}
	if e.ClearCategory {
		r.CategoryID = nil
	} else if e.CategoryID != nil {
		c := *e.CategoryID
		r.CategoryID = &c
	}
	s.dirty = true
	return nil
}

func (s *Session) SetTitle(title string) error {
	return s.Apply(Edit{Title: &title})
}

func (s *Session) SetBody(body string) error {
	return s.Apply(Edit{Body: &body})
}

// AttachAsset adds a dropped or selected file under ref, or under its own
// name when ref is empty, and returns the reference to put in the body.
func (s *Session) AttachAsset(ref string, h *asset.Handle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = h.Name
	}
	s.ws[ref] = h
	s.dirty = true
	return ref, nil
}

func (s *Session) SetCover(h *asset.Handle) error {
	return s.setCover(model.LocalCover(h))
}

func (s *Session) SetCoverURL(url string) error {
	return s.setCover(model.RemoteCover(strings.TrimSpace(url), ""))
}

func (s *Session) ClearCover() error {
	return s.setCover(model.CoverState{})
}

func (s *Session) setCover(c model.CoverState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.record.Cover = c
	s.dirty = true
	return nil
}

// ImportMarkdown replaces the body with doc. A leading mmark front matter
// block fills in the title, summary, slug and tags it names.
func (s *Session) ImportMarkdown(doc []byte) error {
	fm, fmErr := util.GetFrontMatter(doc)
	body := util.StripFrontMatter(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if fmErr == nil {
		if fm.Title != "" {
			s.record.Title = fm.Title
		}
		if fm.Summary != "" {
			s.record.Summary = fm.Summary
		}
		if fm.Slug != "" {
			s.record.Slug = fm.Slug
		}
		if len(fm.Tags) > 0 {
			s.record.Tags = model.NormalizeTags(fm.Tags)
		}
	}
	s.record.Body = string(body)
	s.dirty = true
	return nil
}

// CacheSave persists the draft with the local handles it references. When
// some of them are missing the text is still cached and the session waits for
// the author to supply the files.
func (s *Session) CacheSave(ctx context.Context) (time.Time, error) {
	res, err := s.start(ctx, OpCacheSave)
	if res == nil {
		return time.Time{}, err
	}
	return res.SavedAt, err
}

// Preview renders the body with local images served from preview URLs.
func (s *Session) Preview(ctx context.Context) (*PreviewResult, error) {
	res, err := s.start(ctx, OpPreview)
	if res == nil {
		return nil, err
	}
	return res.Preview, err
}

// SaveDraft uploads every pending asset and saves the article as a draft.
func (s *Session) SaveDraft(ctx context.Context) (*model.Article, error) {
	res, err := s.start(ctx, OpSaveDraft)
	if res == nil {
		return nil, err
	}
	return res.Article, err
}

// Publish is SaveDraft with a published status.
func (s *Session) Publish(ctx context.Context) (*model.Article, error) {
	res, err := s.start(ctx, OpPublish)
	if res == nil {
		return nil, err
	}
	return res.Article, err
}

// SupplyFiles reconciles a file or folder selection against the references
// the session is waiting for and resumes the suspended operation.
func (s *Session) SupplyFiles(ctx context.Context, files []asset.SelectedFile) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	st := s.machine.Status()
	if st.State != WaitingForAssets || s.pending == OpNone {
		return nil, ErrNothingPending
	}

	rec := asset.Reconcile(st.Missing, files)
	for ref, h := range rec.Resolved {
		s.ws[ref] = h
		if s.record.Cover.Missing() && ref == s.record.Cover.Name {
			s.record.Cover.Handle = h
		}
	}
	if len(rec.Resolved) > 0 {
		s.dirty = true
	}

	editorLogger.Info().
		Str("draft_key", string(s.Key())).
		Int("resolved", len(rec.Resolved)).
		Strs("still_missing", rec.StillMissing).
		Msg("Files supplied")

	op := s.pending
	s.pending = OpNone
	if err := s.machine.process(); err != nil {
		return nil, err
	}
	return s.run(ctx, op)
}

// Cancel abandons an operation waiting for assets without side effects.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.cancel(); err != nil {
		return err
	}
	s.pending = OpNone
	return nil
}

func (s *Session) Dismiss() error {
	return s.machine.Dismiss()
}

// Close releases preview URLs and flushes unsaved edits to the cache.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.machine.Stop()
	s.deps.Previews.Revoke(s.previewURLs...)
	s.previewURLs = nil

	if s.dirty && s.offer == nil {
		if _, err := s.writeCache(ctx); err != nil {
			return err
		}
	}
	return nil
}

// autosave writes a dirty idle session to the cache without entering the
// state machine. It skips sessions that are in use.
func (s *Session) autosave(ctx context.Context) (bool, error) {
	if !s.mu.TryLock() {
		return false, nil
	}
	defer s.mu.Unlock()

	if s.closed || !s.dirty || s.offer != nil || s.machine.State() != Idle {
		return false, nil
	}
	if _, err := s.writeCache(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Session) start(ctx context.Context, op Operation) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.offer != nil {
		return nil, ErrRestorePending
	}
	if err := s.machine.Begin(op); err != nil {
		return nil, err
	}
	defer s.machine.release()

	return s.run(ctx, op)
}

func (s *Session) run(ctx context.Context, op Operation) (*Result, error) {
	switch op {
	case OpCacheSave:
		return s.cacheSave(ctx)
	case OpPreview:
		return s.preview()
	case OpSaveDraft:
		return s.persist(ctx, false)
	case OpPublish:
		return s.persist(ctx, true)
	default:
		return nil, ErrNothingPending
	}
}

func (s *Session) cacheSave(ctx context.Context) (*Result, error) {
	locals := asset.LocalReferences(s.record.Body)
	if len(locals) > 0 || s.record.Cover.Pending() {
		if err := s.enterProcessing(); err != nil {
			return nil, err
		}
	}

	missing := s.missing()
	at, err := s.writeCache(ctx)
	if err != nil {
		s.machine.fail(err, nil)
		return nil, err
	}
	if len(missing) > 0 {
		return &Result{Operation: OpCacheSave, SavedAt: at}, s.suspend(OpCacheSave, missing)
	}

	if err := s.machine.complete(); err != nil {
		return nil, err
	}
	return &Result{Operation: OpCacheSave, SavedAt: at}, nil
}

func (s *Session) preview() (*Result, error) {
	locals := asset.LocalReferences(s.record.Body)
	if len(locals) > 0 {
		if err := s.enterProcessing(); err != nil {
			return nil, err
		}
		if missing := s.ws.Missing(locals); len(missing) > 0 {
			return nil, s.suspend(OpPreview, missing)
		}
	}

	urls := make(map[string]string, len(locals))
	subst := make(map[string]upload.Result, len(locals))
	for _, ref := range locals {
		h, _ := s.ws.Lookup(ref)
		u := s.deps.Previews.Register(h)
		urls[ref] = u
		subst[ref] = upload.Result{URL: u}
	}

	s.deps.Previews.Revoke(s.previewURLs...)
	s.previewURLs = s.previewURLs[:0]
	for _, u := range urls {
		s.previewURLs = append(s.previewURLs, u)
	}

	body := pipeline.Rewrite(s.record.Body, subst)
	pr := &PreviewResult{Body: body, URLs: urls}
	if s.deps.Renderer != nil {
		pr.HTML = string(s.deps.Renderer.Render([]byte(body)))
	}

	if err := s.machine.complete(); err != nil {
		return nil, err
	}
	return &Result{Operation: OpPreview, Preview: pr}, nil
}

func (s *Session) enterProcessing() error {
	if s.machine.State() == ProcessingAssets {
		return nil
	}
	return s.machine.process()
}

func (s *Session) suspend(op Operation, missing []string) error {
	s.pending = op
	if err := s.machine.wait(missing); err != nil {
		return err
	}
	editorLogger.Info().
		Str("draft_key", string(s.Key())).
		Strs("missing", missing).
		Msg("Waiting for local assets")
	return missingError(missing)
}

// missing lists the local references of the body and the cover that have no
// handle. A cover found in the working set is bound to it.
func (s *Session) missing() []string {
	missing := s.ws.Missing(asset.LocalReferences(s.record.Body))
	if c := &s.record.Cover; c.Missing() {
		if h, ok := s.ws.Lookup(c.Name); ok {
			c.Handle = h
		} else if !slices.Contains(missing, c.Name) {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// writeCache stores the record with the handles its body still references.
func (s *Session) writeCache(ctx context.Context) (time.Time, error) {
	snap := s.record.Clone()
	snap.Local = make(map[string]*asset.Handle)
	for _, ref := range asset.LocalReferences(snap.Body) {
		if h, ok := s.ws.Lookup(ref); ok {
			snap.Local[ref] = h
		}
	}

	at, err := s.deps.Store.Save(ctx, snap)
	if err != nil {
		editorLogger.Error().Err(err).Str("draft_key", string(snap.Key)).Msg("Error caching draft")
		return time.Time{}, err
	}
	s.record.ModifiedAt = at
	s.record.Local = snap.Local
	s.dirty = false
	return at, nil
}
