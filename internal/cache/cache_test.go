package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache(t *testing.T) {
	c := NewCache[string, int]()

	t.Run("Set and Get", func(t *testing.T) {
		c.Set("a", 1)
		got, ok := c.Get("a")
		if !ok || got != 1 {
			t.Errorf("Expected 1, got %d (%v)", got, ok)
		}
	})

	t.Run("Missing key", func(t *testing.T) {
		if _, ok := c.Get("nope"); ok {
			t.Error("Expected key to not exist")
		}
	})

	t.Run("Delete and Len", func(t *testing.T) {
		c.Set("b", 2)
		if c.Len() != 2 {
			t.Errorf("Expected 2 items, got %d", c.Len())
		}
		c.Delete("a")
		c.Delete("never-set")
		if c.Len() != 1 {
			t.Errorf("Expected 1 item, got %d", c.Len())
		}
	})

	t.Run("Clear", func(t *testing.T) {
		c.Clear()
		if c.Len() != 0 {
			t.Errorf("Expected empty cache, got %d", c.Len())
		}
	})
}

func TestCacheConcurrency(t *testing.T) {
	c := NewCache[int, string]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i, fmt.Sprint(i))
			c.Get(i)
			if i%2 == 0 {
				c.Delete(i)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() != 25 {
		t.Errorf("Expected 25 items, got %d", c.Len())
	}
}

func TestRenderedPreviews(t *testing.T) {
	ClearRenderedPreviews()
	SetRenderedPreview("h1", "github", []byte("<p>x</p>"))
	SetRenderedPreview("h1", "monokai", []byte("<p>y</p>"))

	got, ok := GetRenderedPreview("h1", "github")
	if !ok || string(got.HTML) != "<p>x</p>" {
		t.Errorf("Expected cached html, got %v", got)
	}
	if keys := RenderedPreviewKeys(); len(keys) != 2 || keys[0] != "h1:github" {
		t.Errorf("Expected two sorted keys, got %v", keys)
	}

	ClearRenderedPreviews()
	if _, ok := GetRenderedPreview("h1", "github"); ok {
		t.Error("Expected previews to be cleared")
	}
}
