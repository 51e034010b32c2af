// Package draftcache persists editor drafts, including their local image
// blobs, so unsaved work survives restarts. It is a cache: entries are
// removed once the article is durably saved.
package draftcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

var (
	ErrNotFound       = errors.New("draft cache entry not found")
	ErrSchemaMismatch = errors.New("draft cache schema mismatch")
)

var cacheLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	cacheLogger = l
}

// KV is the persistent key-value store behind the cache.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

const keyPrefix = "draft:"

type envelope struct {
	Schema      int       `json:"schema"`
	Key         string    `json:"key"`
	SavedAt     time.Time `json:"saved_at"`
	Compression string    `json:"compression"`
	Payload     []byte    `json:"payload"`
}

// Summary describes a cached entry without decoding its payload.
type Summary struct {
	Key     model.DraftKey
	Schema  int
	SavedAt time.Time
	Size    int
}

type Store struct {
	kv         KV
	compressor compression.Compressor
	now        func() time.Time
}

func NewStore(kv KV, compressor compression.Compressor) *Store {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &Store{
		kv:         kv,
		compressor: compressor,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func storageKey(key model.DraftKey) string {
	return keyPrefix + string(key)
}

// Save overwrites the cached record for r.Key and returns the save time. The
// encoding is deterministic, so saving the same state twice only changes the
// timestamp.
func (s *Store) Save(ctx context.Context, r *model.DraftRecord) (time.Time, error) {
	if r == nil || !r.Key.Valid() {
		return time.Time{}, fmt.Errorf("invalid draft key")
	}

	rec := r.Clone()
	rec.SchemaVersion = model.DraftSchemaVersion
	rec.ModifiedAt = s.now()

	payload, err := json.Marshal(rec)
	if err != nil {
		return time.Time{}, fmt.Errorf("error encoding draft: %w", err)
	}

	packed, err := s.compressor.Compress(payload)
	if err != nil {
		return time.Time{}, fmt.Errorf("error compressing draft: %w", err)
	}

	value, err := json.Marshal(envelope{
		Schema:      model.DraftSchemaVersion,
		Key:         string(rec.Key),
		SavedAt:     rec.ModifiedAt,
		Compression: s.compressor.Name(),
		Payload:     packed,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("error encoding envelope: %w", err)
	}

	if err := s.kv.Put(ctx, storageKey(rec.Key), value); err != nil {
		return time.Time{}, fmt.Errorf("error writing draft %s: %w", rec.Key, err)
	}

	cacheLogger.Debug().
		Str("draft_key", string(rec.Key)).
		Int("size", len(value)).
		Int("local_assets", len(rec.Local)).
		Msg("Draft cached")

	return rec.ModifiedAt, nil
}

// Load returns the cached record or nil when there is none. Entries written
// with another schema version are deleted and reported as absent.
func (s *Store) Load(ctx context.Context, key model.DraftKey) (*model.DraftRecord, error) {
	value, err := s.kv.Get(ctx, storageKey(key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading draft %s: %w", key, err)
	}

	rec, err := s.decode(value)
	if errors.Is(err, ErrSchemaMismatch) {
		cacheLogger.Warn().Err(err).Str("draft_key", string(key)).Msg("Discarding cached draft")
		if delErr := s.Clear(ctx, key); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding draft %s: %w", key, err)
	}

	if rec.Key != key {
		return nil, fmt.Errorf("cached draft key mismatch: want %s, got %s", key, rec.Key)
	}

	return rec, nil
}

func (s *Store) decode(value []byte) (*model.DraftRecord, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, err
	}
	if env.Schema != model.DraftSchemaVersion {
		return nil, fmt.Errorf("%w: stored %d, current %d", ErrSchemaMismatch, env.Schema, model.DraftSchemaVersion)
	}

	c, err := compression.New(env.Compression)
	if err != nil {
		return nil, err
	}
	payload, err := c.Decompress(env.Payload)
	if err != nil {
		return nil, err
	}

	rec := model.NewDraftRecord("")
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Clear removes the cached record. Clearing a missing entry is not an error.
func (s *Store) Clear(ctx context.Context, key model.DraftKey) error {
	err := s.kv.Delete(ctx, storageKey(key))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error clearing draft %s: %w", key, err)
	}

	cacheLogger.Debug().Str("draft_key", string(key)).Msg("Draft cache cleared")
	return nil
}

// List summarizes every cached entry, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(keys))
	for _, k := range keys {
		value, err := s.kv.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			cacheLogger.Warn().Err(err).Str("key", k).Msg("Unreadable cache entry")
			continue
		}
		out = append(out, Summary{
			Key:     model.DraftKey(strings.TrimPrefix(k, keyPrefix)),
			Schema:  env.Schema,
			SavedAt: env.SavedAt,
			Size:    len(value),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

func (s *Store) Close() error {
	return s.kv.Close()
}
