package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/draftcache"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/util/compression"
)

type cliEnv struct {
	store *draftcache.Store
	key   model.DraftKey
}

func setupCLITestEnv(t *testing.T) *cliEnv {
	t.Helper()
	store := draftcache.NewStore(draftcache.NewMemoryKV(), compression.GzipCompressor{})

	rec := model.NewDraftRecord(model.NewDraftKey())
	rec.Title = "Cats"
	rec.Tags = []string{"pets"}
	rec.Body = "Intro\n\n![cat](./img/cat.png)\n"
	rec.Local["./img/cat.png"] = asset.NewHandle("cat.png", "image/png", []byte("png-bytes"), time.Now())
	// A local cover whose file did not survive.
	rec.Cover = model.CoverState{Kind: model.CoverLocal, Name: "cover.jpg"}
	if _, err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Failed to seed draft: %v", err)
	}
	return &cliEnv{store: store, key: rec.Key}
}

func runCLI(t *testing.T, env *cliEnv, stdin string, args ...string) (string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.store = env.store

	var out bytes.Buffer
	cmd := newRootCommand(ctx)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Errorf("Expected output to contain %q, got:\n%s", want, out)
	}
}

func TestList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "KEY")
	requireContains(t, out, string(env.key))
}

func TestListEmpty(t *testing.T) {
	env := &cliEnv{store: draftcache.NewStore(draftcache.NewMemoryKV(), compression.NoopCompressor{})}

	out, err := runCLI(t, env, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No cached drafts.")
}

func TestShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "", "show", string(env.key), "--body")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Cats")
	requireContains(t, out, "pets")
	requireContains(t, out, "1 referenced, 0 uploaded, 1 local")
	requireContains(t, out, "./img/cat.png")
	requireContains(t, out, "cover.jpg (file missing)")
	requireContains(t, out, "![cat](./img/cat.png)")
}

func TestShowErrors(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"Invalid key", "bogus", "invalid draft key"},
		{"Unknown key", string(model.NewDraftKey()), "no cached draft"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, env, "", "show", tt.key)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	t.Run("Cancelled", func(t *testing.T) {
		env := setupCLITestEnv(t)

		out, err := runCLI(t, env, "n\n", "discard", string(env.key))
		if err != nil {
			t.Fatalf("discard: %v", err)
		}
		requireContains(t, out, "Cancelled.")

		rec, _ := env.store.Load(context.Background(), env.key)
		if rec == nil {
			t.Error("Expected draft to survive a cancelled discard")
		}
	})

	t.Run("Confirmed", func(t *testing.T) {
		env := setupCLITestEnv(t)

		out, err := runCLI(t, env, "y\n", "discard", string(env.key))
		if err != nil {
			t.Fatalf("discard: %v", err)
		}
		requireContains(t, out, "Discarded")

		rec, err := env.store.Load(context.Background(), env.key)
		if err != nil || rec != nil {
			t.Errorf("Expected draft to be gone, got %v, %v", rec, err)
		}
	})

	t.Run("Forced", func(t *testing.T) {
		env := setupCLITestEnv(t)

		if _, err := runCLI(t, env, "", "discard", "-f", string(env.key)); err != nil {
			t.Fatalf("discard: %v", err)
		}
		if rec, _ := env.store.Load(context.Background(), env.key); rec != nil {
			t.Error("Expected draft to be gone")
		}
	})
}
