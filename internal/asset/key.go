// Package asset classifies image references found in draft bodies and
// resolves the local ones against the files an author has handed to the editor.
package asset

import (
	"net/url"
	"path"
	"strings"
)

// NormalizeKey maps a reference to the key used for comparisons. The query and
// fragment are dropped, the path is percent-decoded, separators are unified,
// a leading "./" or "/" is removed and the basename is lowercased.
func NormalizeKey(ref string) string {
	key := strings.TrimSpace(ref)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}

	if decoded, err := url.PathUnescape(key); err == nil {
		key = decoded
	}

	key = strings.ReplaceAll(key, `\`, "/")
	for strings.HasPrefix(key, "./") {
		key = key[2:]
	}
	key = strings.TrimLeft(key, "/")

	dir, base := path.Split(key)
	return dir + strings.ToLower(base)
}

// BaseKey is the lowercased basename of the normalized reference.
func BaseKey(ref string) string {
	return path.Base("/" + NormalizeKey(ref))
}

// KeysMatch reports whether a reference and a candidate file path name the
// same asset: exact text first, then the normalized key, then the basename.
func KeysMatch(ref, candidate string) bool {
	if ref == candidate {
		return true
	}

	refKey, candKey := NormalizeKey(ref), NormalizeKey(candidate)
	if refKey == "" || candKey == "" {
		return false
	}
	if refKey == candKey {
		return true
	}

	return BaseKey(ref) == BaseKey(candidate)
}
