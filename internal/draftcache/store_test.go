package draftcache

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()

	b, err := OpenBadger("")
	if err != nil {
		t.Fatalf("Failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"badger": b,
	}
}

func sampleRecord() *model.DraftRecord {
	r := model.NewDraftRecord(model.NewDraftKey())
	r.Title = "Cats"
	r.Body = "![x](./img/cat.png) ![y](https://cdn.example.com/y.png)"
	r.Tags = []string{"pets", "cats"}
	r.Uploaded["https://cdn.example.com/y.png"] = "upload-1"
	r.Local["./img/cat.png"] = asset.NewHandle("cat.png", "image/png", []byte{0x89, 'P', 'N', 'G'}, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	return r
}

func TestStoreSaveLoadClear(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv, compression.ZstdCompressor{})
			rec := sampleRecord()

			savedAt, err := store.Save(ctx, rec)
			if err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Load(ctx, rec.Key)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got == nil {
				t.Fatal("Expected cached record")
			}
			if !got.ModifiedAt.Equal(savedAt) {
				t.Errorf("Expected ModifiedAt %v, got %v", savedAt, got.ModifiedAt)
			}
			if got.Title != rec.Title || got.Body != rec.Body {
				t.Errorf("Expected title/body to survive, got %q/%q", got.Title, got.Body)
			}
			if got.Uploaded["https://cdn.example.com/y.png"] != "upload-1" {
				t.Error("Expected uploaded map to survive")
			}
			h := got.Local["./img/cat.png"]
			if h == nil || !bytes.Equal(h.Data, rec.Local["./img/cat.png"].Data) || h.MIMEType != "image/png" {
				t.Errorf("Expected local blob to survive, got %+v", h)
			}

			if err := store.Clear(ctx, rec.Key); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			got, err = store.Load(ctx, rec.Key)
			if err != nil || got != nil {
				t.Errorf("Expected nil record after clear, got %+v (%v)", got, err)
			}

			if err := store.Clear(ctx, rec.Key); err != nil {
				t.Errorf("Expected clearing twice to succeed, got %v", err)
			}
		})
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(NewMemoryKV(), nil)
	got, err := store.Load(context.Background(), model.NewDraftKey())
	if err != nil || got != nil {
		t.Errorf("Expected nil, nil for missing draft, got %+v, %v", got, err)
	}
}

func TestStoreSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := NewStore(kv, compression.ZstdCompressor{})
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	rec := sampleRecord()
	if _, err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	first, _ := kv.Get(ctx, storageKey(rec.Key))

	if _, err := store.Save(ctx, rec.Clone()); err != nil {
		t.Fatal(err)
	}
	second, _ := kv.Get(ctx, storageKey(rec.Key))

	if !bytes.Equal(first, second) {
		t.Error("Expected identical stored values for identical state and time")
	}
}

func TestStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryKV(), compression.GzipCompressor{})

	rec := sampleRecord()
	store.Save(ctx, rec)

	next := rec.Clone()
	next.Body = "plain"
	next.Local = nil
	if _, err := store.Save(ctx, next); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Load(ctx, rec.Key)
	if got.Body != "plain" || len(got.Local) != 0 {
		t.Errorf("Expected full overwrite, got body %q with %d local assets", got.Body, len(got.Local))
	}
}

func TestStoreDiscardsOtherSchema(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := NewStore(kv, nil)
	key := model.NewDraftKey()

	old, _ := json.Marshal(envelope{Schema: model.DraftSchemaVersion + 1, Key: string(key), Compression: "none", Payload: []byte(`{"title":42}`)})
	kv.Put(ctx, storageKey(key), old)

	got, err := store.Load(ctx, key)
	if err != nil || got != nil {
		t.Fatalf("Expected incompatible record to be discarded, got %+v (%v)", got, err)
	}
	if _, err := kv.Get(ctx, storageKey(key)); err != ErrNotFound {
		t.Error("Expected incompatible record to be deleted")
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryKV(), nil)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var keys []model.DraftKey
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		store.now = func() time.Time { return at }
		r := sampleRecord()
		keys = append(keys, r.Key)
		store.Save(ctx, r)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(list))
	}
	if list[0].Key != keys[2] {
		t.Errorf("Expected newest first, got %s", list[0].Key)
	}
}

func TestStoreRejectsInvalidKey(t *testing.T) {
	store := NewStore(NewMemoryKV(), nil)
	if _, err := store.Save(context.Background(), model.NewDraftRecord("")); err == nil {
		t.Error("Expected error for empty key")
	}
}
