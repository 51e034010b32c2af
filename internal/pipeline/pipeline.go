// Package pipeline uploads the non-durable images of a draft body and
// rewrites the body to point at the uploaded copies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/imaging"
	"github.com/debemdeboas/inkwell/internal/upload"
)

var pipelineLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	pipelineLogger = l
}

type Options struct {
	// Compress enables recompression of eligible raster images.
	Compress bool
	Image    imaging.Options
	Purpose  upload.Purpose
}

func DefaultOptions() Options {
	return Options{
		Compress: true,
		Image:    imaging.Options{Quality: 0.8, MaxDimension: 1920},
		Purpose:  upload.PurposeArticleImage,
	}
}

// AssetError is a failure tied to one reference.
type AssetError struct {
	Reference    string `json:"reference"`
	Reason       string `json:"reason"`
	LocalMissing bool   `json:"local_missing,omitempty"`
	Err          error  `json:"-"`
}

func (e AssetError) Error() string {
	return e.Reference + ": " + e.Reason
}

func (e AssetError) Unwrap() error {
	return e.Err
}

type Outcome struct {
	Body          string
	Errors        []AssetError
	Uploaded      map[string]upload.Result
	UploadedCount int
	StillMissing  []string
}

// OK reports whether the pass left nothing unresolved.
func (o Outcome) OK() bool {
	return len(o.Errors) == 0 && len(o.StillMissing) == 0
}

// Process uploads every unique data: and local reference of body, serially and
// in extraction order, and replaces each occurrence with its durable URL.
//
// If any local reference has no handle in ws nothing is uploaded and the
// missing references are returned. A failing upload is recorded and the
// remaining references are still processed.
func Process(ctx context.Context, body string, ws asset.WorkingSet, up upload.Uploader, opts Options) Outcome {
	out := Outcome{
		Body:     body,
		Uploaded: make(map[string]upload.Result),
	}

	refs := asset.ExtractImageURLs(body)
	if len(refs) == 0 {
		return out
	}

	_, embedded, local := asset.Partition(refs)

	if missing := ws.Missing(local); len(missing) > 0 {
		out.StillMissing = missing
		for _, ref := range missing {
			out.Errors = append(out.Errors, AssetError{
				Reference:    ref,
				Reason:       "local file is not available",
				LocalMissing: true,
			})
		}
		pipelineLogger.Info().Strs("missing", missing).Msg("Local assets missing, nothing uploaded")
		return out
	}

	if len(embedded)+len(local) == 0 {
		return out
	}

	for _, ref := range refs {
		kind := asset.Classify(ref)
		if kind == asset.Remote {
			continue
		}

		name, mimeType, data, err := payload(ref, kind, ws)
		if err != nil {
			out.Errors = append(out.Errors, AssetError{Reference: ref, Reason: err.Error(), Err: err})
			continue
		}

		res, err := UploadBlob(ctx, up, upload.Blob{Name: name, MIMEType: mimeType, Data: data, Purpose: opts.Purpose}, opts)
		if err != nil {
			pipelineLogger.Error().Err(err).Str("reference", logRef(ref)).Msg("Upload failed")
			out.Errors = append(out.Errors, AssetError{Reference: ref, Reason: "upload failed: " + err.Error(), Err: err})
			continue
		}

		out.Uploaded[ref] = res
		out.UploadedCount++
	}

	out.Body = Rewrite(body, out.Uploaded)

	pipelineLogger.Debug().
		Int("references", len(refs)).
		Int("uploaded", out.UploadedCount).
		Int("errors", len(out.Errors)).
		Msg("Asset pass finished")

	return out
}

func payload(ref string, kind asset.Kind, ws asset.WorkingSet) (string, string, []byte, error) {
	switch kind {
	case asset.DataEmbedded:
		data, mimeType, err := asset.DecodeDataURL(ref)
		if err != nil {
			return "", "", nil, err
		}
		return "embedded" + asset.ExtensionFor(mimeType), mimeType, data, nil
	default:
		h, ok := ws.Lookup(ref)
		if !ok {
			return "", "", nil, fmt.Errorf("local file is not available")
		}
		name := h.Name
		if name == "" {
			name = path.Base(asset.NormalizeKey(ref))
		}
		return name, h.MIMEType, h.Data, nil
	}
}

// UploadBlob recompresses blob when allowed and uploads it. Compression
// failures fall back to the original bytes.
func UploadBlob(ctx context.Context, up upload.Uploader, blob upload.Blob, opts Options) (upload.Result, error) {
	if opts.Compress && !opts.Image.PassThrough() && imaging.Eligible(blob.MIMEType) {
		data, mimeType, err := imaging.Compress(blob.Data, blob.MIMEType, opts.Image)
		switch {
		case errors.Is(err, imaging.ErrCompressionFailed):
			pipelineLogger.Warn().Err(err).Str("name", blob.Name).Msg("Compression failed, uploading original")
		case err != nil:
			return upload.Result{}, err
		default:
			if mimeType != blob.MIMEType {
				blob.Name = strings.TrimSuffix(blob.Name, path.Ext(blob.Name)) + asset.ExtensionFor(mimeType)
			}
			blob.Data, blob.MIMEType = data, mimeType
		}
	}

	return up.Upload(ctx, blob)
}

// Rewrite substitutes each uploaded reference with its URL. Only image
// destinations are rewritten, in a single pass, so remote references and
// substituted URLs are left alone.
func Rewrite(body string, uploaded map[string]upload.Result) string {
	if len(uploaded) == 0 {
		return body
	}
	return asset.ReplaceImageRefs(body, func(ref string) (string, bool) {
		res, ok := uploaded[ref]
		return res.URL, ok
	})
}

func logRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
