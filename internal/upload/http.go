package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// HTTPUploader posts blobs as multipart forms to a REST upload endpoint that
// answers with {"id": ..., "url": ...}, optionally wrapped in "data".
type HTTPUploader struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPUploader(endpoint, token string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Result
	Data    *Result `json:"data"`
	Message string  `json:"message"`
}

func (u *HTTPUploader) Upload(ctx context.Context, blob Blob) (Result, error) {
	if len(blob.Data) == 0 {
		return Result{}, ErrEmptyBlob
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("purpose", string(blob.Purpose)); err != nil {
		return Result{}, err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, blob.Name))
	header.Set("Content-Type", blob.MIMEType)
	part, err := form.CreatePart(header)
	if err != nil {
		return Result{}, err
	}
	if _, err := part.Write(blob.Data); err != nil {
		return Result{}, err
	}
	if err := form.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("error uploading %s: %w", blob.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("error reading upload response: %w", err)
	}

	var parsed uploadResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if jsonErr != nil || msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return Result{}, fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, msg)
	}
	if jsonErr != nil {
		return Result{}, fmt.Errorf("error decoding upload response: %w", jsonErr)
	}

	res := parsed.Result
	if parsed.Data != nil {
		res = *parsed.Data
	}
	if res.ID == "" || res.URL == "" {
		return Result{}, fmt.Errorf("upload response is missing id or url")
	}

	uploadLogger.Info().Str("upload_id", res.ID).Str("url", res.URL).Msg("Blob uploaded")
	return res, nil
}
