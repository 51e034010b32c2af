package asset

import (
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"
)

// Handle is a local binary the author selected or dropped into the editor. It
// has no server identity until it is uploaded.
type Handle struct {
	Name     string    `json:"name"`
	MIMEType string    `json:"mime_type"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Data     []byte    `json:"data"`
}

func NewHandle(name, mimeType string, data []byte, modTime time.Time) *Handle {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMIMEType(name, data)
	}

	return &Handle{
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		ModTime:  modTime.UTC(),
		Data:     data,
	}
}

// DetectMIMEType prefers the extension and falls back to sniffing the bytes.
func DetectMIMEType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return http.DetectContentType(data)
}

// WorkingSet holds the local handles currently available to one editor,
// keyed by the reference string they were attached under.
type WorkingSet map[string]*Handle

// Lookup finds the handle for ref by exact key, then by normalized key or
// basename. Candidates are visited in sorted key order so ties are stable.
func (ws WorkingSet) Lookup(ref string) (*Handle, bool) {
	_, h, ok := ws.LookupKey(ref)
	return h, ok
}

// LookupKey is Lookup that also reports the key the handle is stored under.
func (ws WorkingSet) LookupKey(ref string) (string, *Handle, bool) {
	if h, ok := ws[ref]; ok && h != nil {
		return ref, h, true
	}

	for _, key := range ws.Keys() {
		if h := ws[key]; h != nil && KeysMatch(ref, key) {
			return key, h, true
		}
	}
	return "", nil, false
}

func (ws WorkingSet) HasLocalHandle(ref string) bool {
	_, ok := ws.Lookup(ref)
	return ok
}

// Missing returns the local-pending refs that have no handle, in input order.
func (ws WorkingSet) Missing(refs []string) []string {
	var missing []string
	for _, ref := range refs {
		if Classify(ref) == LocalPending && !ws.HasLocalHandle(ref) {
			missing = append(missing, ref)
		}
	}
	return missing
}

func (ws WorkingSet) Keys() []string {
	keys := make([]string, 0, len(ws))
	for k := range ws {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (ws WorkingSet) Clone() WorkingSet {
	out := make(WorkingSet, len(ws))
	for k, v := range ws {
		out[k] = v
	}
	return out
}
