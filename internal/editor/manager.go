package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/debemdeboas/inkwell/internal/model"
)

// ArticleSource loads existing articles for editing.
type ArticleSource interface {
	GetArticle(ctx context.Context, id model.ArticleID) (*model.Article, error)
}

// Manager owns the open sessions, one per draft key.
type Manager struct {
	mu       sync.Mutex
	sessions map[model.DraftKey]*Session
	deps     Deps
	articles ArticleSource
}

func NewManager(deps Deps, articles ArticleSource) *Manager {
	if deps.Previews == nil {
		deps.Previews = NewPreviews("/preview/")
	}
	return &Manager{
		sessions: make(map[model.DraftKey]*Session),
		deps:     deps,
		articles: articles,
	}
}

func (m *Manager) Previews() *Previews {
	return m.deps.Previews
}

// NewDraft opens a session for a new, unsaved document.
func (m *Manager) NewDraft() *Session {
	s := m.newSession(model.NewDraftRecord(model.NewDraftKey()))
	m.mu.Lock()
	m.sessions[s.Key()] = s
	m.mu.Unlock()
	return s
}

// Open returns the session for key, opening it when needed. A cached record
// for the key is never applied silently: it is attached to the session as a
// restore offer.
func (m *Manager) Open(ctx context.Context, key model.DraftKey) (*Session, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDraftKey, key)
	}
	if s, ok := m.Get(key); ok {
		return s, nil
	}

	seed := model.NewDraftRecord(key)
	if id, ok := key.ArticleID(); ok && m.articles != nil {
		a, err := m.articles.GetArticle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("error loading article %s: %w", id, err)
		}
		seed = model.DraftFromArticle(a)
	}

	cached, err := m.deps.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	s := m.newSession(seed)
	s.offer = cached
	if cached != nil {
		editorLogger.Info().
			Str("draft_key", string(key)).
			Time("saved_at", cached.ModifiedAt).
			Msg("Cached draft found, offering restore")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		return existing, nil
	}
	m.sessions[key] = s
	return s, nil
}

// OpenArticle opens the editor for an existing article.
func (m *Manager) OpenArticle(ctx context.Context, id model.ArticleID) (*Session, error) {
	return m.Open(ctx, model.ArticleDraftKey(id))
}

func (m *Manager) Get(key model.DraftKey) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Close tears down one session.
func (m *Manager) Close(ctx context.Context, key model.DraftKey) error {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.Close(ctx)
}

// CloseAll tears down every session, flushing unsaved edits.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[model.DraftKey]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close(ctx))
	}
	return errors.Join(errs...)
}

func (m *Manager) newSession(seed *model.DraftRecord) *Session {
	s := newSession(seed, m.deps)
	s.onRekey = m.rekey
	return s
}

func (m *Manager) rekey(old, new model.DraftKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[old]; ok {
		delete(m.sessions, old)
		m.sessions[new] = s
	}
}
