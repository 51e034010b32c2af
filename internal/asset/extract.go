package asset

import (
	"regexp"
	"slices"
	"strings"
)

var (
	// ![alt](ref "title") with optional <...> around the destination. The alt
	// text may hold one level of balanced brackets.
	markdownImage = regexp.MustCompile(`!\[(?:[^\[\]]|\[[^\[\]]*\])*\]\(\s*(<[^>]*>|[^)\s]+)(?:\s+(?:"[^"]*"|'[^']*'))?\s*\)`)

	htmlImage = regexp.MustCompile(`(?i)<img\b(?:[^>]*?\s)?src\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>"']+))`)
)

// ImageSpan is one image reference occurrence. Start and End delimit Ref
// inside the body it was found in.
type ImageSpan struct {
	Start int
	End   int
	Ref   string
}

// FindImageSpans returns every image reference occurrence of body in
// document order, duplicates included.
func FindImageSpans(body string) []ImageSpan {
	var found []ImageSpan

	for _, m := range markdownImage.FindAllStringSubmatchIndex(body, -1) {
		if sp, ok := newSpan(body, m[2], m[3]); ok {
			found = append(found, sp)
		}
	}

	for _, m := range htmlImage.FindAllStringSubmatchIndex(body, -1) {
		for g := 2; g+1 < len(m); g += 2 {
			if m[g] < 0 {
				continue
			}
			if sp, ok := newSpan(body, m[g], m[g+1]); ok {
				found = append(found, sp)
			}
			break
		}
	}

	slices.SortStableFunc(found, func(a, b ImageSpan) int {
		return a.Start - b.Start
	})

	// A destination matched by both patterns is kept once.
	spans := found[:0]
	end := -1
	for _, sp := range found {
		if sp.Start < end {
			continue
		}
		spans = append(spans, sp)
		end = sp.End
	}
	return spans
}

// ExtractImageURLs returns the unique image references of body in document
// order. Both markdown image syntax and HTML img tags are recognized.
func ExtractImageURLs(body string) []string {
	spans := FindImageSpans(body)
	refs := make([]string, 0, len(spans))
	seen := make(map[string]struct{}, len(spans))
	for _, sp := range spans {
		if _, ok := seen[sp.Ref]; ok {
			continue
		}
		seen[sp.Ref] = struct{}{}
		refs = append(refs, sp.Ref)
	}
	return refs
}

// ReplaceImageRefs rewrites body in one pass, substituting each reference
// for which replace reports true. Text outside the matched references is
// never touched.
func ReplaceImageRefs(body string, replace func(ref string) (string, bool)) string {
	var b strings.Builder
	last := 0
	for _, sp := range FindImageSpans(body) {
		repl, ok := replace(sp.Ref)
		if !ok {
			continue
		}
		b.WriteString(body[last:sp.Start])
		b.WriteString(repl)
		last = sp.End
	}
	if last == 0 {
		return body
	}
	b.WriteString(body[last:])
	return b.String()
}

// newSpan narrows the raw destination at body[start:end] to the cleaned
// reference.
func newSpan(body string, start, end int) (ImageSpan, bool) {
	raw := body[start:end]
	ref := cleanReference(raw)
	if ref == "" {
		return ImageSpan{}, false
	}
	off := strings.Index(raw, ref)
	return ImageSpan{Start: start + off, End: start + off + len(ref), Ref: ref}, true
}

func cleanReference(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "<")
	ref = strings.TrimSuffix(ref, ">")
	return strings.TrimSpace(ref)
}
