// Package upload turns local image blobs into durable, addressable assets.
package upload

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

type Purpose string

const (
	PurposeArticleImage Purpose = "article-image"
	PurposeArticleCover Purpose = "article-cover"
)

var ErrEmptyBlob = errors.New("refusing to upload empty blob")

var uploadLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	uploadLogger = l
}

type Blob struct {
	Name     string
	MIMEType string
	Data     []byte
	Purpose  Purpose
}

// Result is the durable identity of an uploaded blob.
type Result struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Uploader interface {
	Upload(ctx context.Context, blob Blob) (Result, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, blob Blob) (Result, error)

func (f UploaderFunc) Upload(ctx context.Context, blob Blob) (Result, error) {
	return f(ctx, blob)
}
