package upload

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/debemdeboas/inkwell/internal/asset"
)

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is prepended to object keys to form the returned URL.
	PublicBaseURL string
	Prefix        string
}

// S3Uploader writes blobs to an S3-compatible bucket (R2, MinIO, AWS).
type S3Uploader struct {
	client  ObjectPutter
	bucket  string
	baseURL string
	prefix  string
	now     func() time.Time
}

func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing s3 client: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3UploaderWithClient(client, opts), nil
}

func NewS3UploaderWithClient(client ObjectPutter, opts S3Options) *S3Uploader {
	return &S3Uploader{
		client:  client,
		bucket:  opts.Bucket,
		baseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		prefix:  strings.Trim(opts.Prefix, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (u *S3Uploader) objectKey(id string, blob Blob) string {
	ext := strings.ToLower(path.Ext(blob.Name))
	if e := asset.ExtensionFor(blob.MIMEType); e != "" {
		ext = e
	}
	purpose := string(blob.Purpose)
	if purpose == "" {
		purpose = string(PurposeArticleImage)
	}

	now := u.now()
	return path.Join(u.prefix, purpose, now.Format("2006"), now.Format("01"), id+ext)
}

func (u *S3Uploader) Upload(ctx context.Context, blob Blob) (Result, error) {
	if len(blob.Data) == 0 {
		return Result{}, ErrEmptyBlob
	}

	id := uuid.NewString()
	key := u.objectKey(id, blob)

	contentType := blob.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(blob.Data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(blob.Data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
		Metadata: map[string]string{
			"original-name": blob.Name,
			"purpose":       string(blob.Purpose),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("error putting object %s: %w", key, err)
	}

	res := Result{ID: id, URL: u.baseURL + "/" + key}
	uploadLogger.Info().
		Str("upload_id", id).
		Str("key", key).
		Int("size", len(blob.Data)).
		Msg("Blob uploaded")

	return res, nil
}
