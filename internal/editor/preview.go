package editor

import (
	"strings"

	"github.com/google/uuid"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/cache"
)

// Previews serves local handles under short-lived URLs so a preview can show
// images that are not uploaded yet. Every URL must be revoked by its owner.
type Previews struct {
	prefix  string
	handles *cache.Cache[string, *asset.Handle]
}

func NewPreviews(prefix string) *Previews {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Previews{
		prefix:  prefix,
		handles: cache.NewCache[string, *asset.Handle](),
	}
}

// Register returns a new URL serving h.
func (p *Previews) Register(h *asset.Handle) string {
	token := uuid.NewString()
	p.handles.Set(token, h)
	return p.prefix + token
}

// Revoke releases URLs created by Register. Unknown URLs are ignored.
func (p *Previews) Revoke(urls ...string) {
	for _, u := range urls {
		if token, ok := strings.CutPrefix(u, p.prefix); ok {
			p.handles.Delete(token)
		}
	}
}

// Resolve returns the handle behind a token.
func (p *Previews) Resolve(token string) (*asset.Handle, bool) {
	return p.handles.Get(token)
}

// Len is the number of live preview URLs.
func (p *Previews) Len() int {
	return p.handles.Len()
}
