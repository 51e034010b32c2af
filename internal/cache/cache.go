// Package cache provides a thread-safe generic map and the rendered preview
// cache.
package cache

import (
	"sort"
	"sync"
)

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// RenderedPreview is cached preview HTML for one body and syntax theme.
type RenderedPreview struct {
	HTML []byte
}

var renderedPreviews = NewCache[string, *RenderedPreview]()

func previewKey(contentHash, syntaxTheme string) string {
	return contentHash + ":" + syntaxTheme
}

func GetRenderedPreview(contentHash, syntaxTheme string) (*RenderedPreview, bool) {
	return renderedPreviews.Get(previewKey(contentHash, syntaxTheme))
}

func SetRenderedPreview(contentHash, syntaxTheme string, html []byte) {
	renderedPreviews.Set(previewKey(contentHash, syntaxTheme), &RenderedPreview{HTML: html})
}

// RenderedPreviewKeys lists cached entries in sorted order.
func RenderedPreviewKeys() []string {
	renderedPreviews.mu.RLock()
	defer renderedPreviews.mu.RUnlock()
	keys := make([]string, 0, len(renderedPreviews.items))
	for k := range renderedPreviews.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ClearRenderedPreviews() {
	renderedPreviews.Clear()
}
