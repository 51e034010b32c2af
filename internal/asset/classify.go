package asset

import (
	"regexp"
	"strings"
)

type Kind int

const (
	// Remote references are already durable and are never touched.
	Remote Kind = iota
	// DataEmbedded references carry their own payload in a data: URL.
	DataEmbedded
	// LocalPending references need a local file handle before upload.
	LocalPending
)

func (k Kind) String() string {
	switch k {
	case Remote:
		return "remote"
	case DataEmbedded:
		return "data"
	case LocalPending:
		return "local"
	default:
		return "unknown"
	}
}

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

func Classify(ref string) Kind {
	ref = strings.TrimSpace(ref)

	switch {
	case len(ref) >= 5 && strings.EqualFold(ref[:5], "data:"):
		return DataEmbedded
	case schemePrefix.MatchString(ref), strings.HasPrefix(ref, "/"):
		return Remote
	default:
		return LocalPending
	}
}

// Partition splits refs by kind, keeping their relative order.
func Partition(refs []string) (remote, embedded, local []string) {
	for _, ref := range refs {
		switch Classify(ref) {
		case Remote:
			remote = append(remote, ref)
		case DataEmbedded:
			embedded = append(embedded, ref)
		default:
			local = append(local, ref)
		}
	}
	return remote, embedded, local
}

// LocalReferences is the local-pending subset of the images in body.
func LocalReferences(body string) []string {
	_, _, local := Partition(ExtractImageURLs(body))
	return local
}
