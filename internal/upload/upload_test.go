package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader(t *testing.T) {
	putter := &fakePutter{}
	u := NewS3UploaderWithClient(putter, S3Options{
		Bucket:        "assets",
		PublicBaseURL: "https://cdn.example.com/",
		Prefix:        "/uploads/",
	})
	u.now = func() time.Time { return time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC) }

	res, err := u.Upload(context.Background(), Blob{
		Name:     "Cat.PNG",
		MIMEType: "image/jpeg",
		Data:     []byte("jpeg bytes"),
		Purpose:  PurposeArticleImage,
	})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if res.ID == "" {
		t.Error("Expected upload id")
	}
	wantURL := "https://cdn.example.com/uploads/article-image/2025/03/" + res.ID + ".jpg"
	if res.URL != wantURL {
		t.Errorf("Expected %s, got %s", wantURL, res.URL)
	}

	in := putter.inputs[0]
	if *in.Bucket != "assets" {
		t.Errorf("Expected bucket assets, got %s", *in.Bucket)
	}
	if *in.ContentType != "image/jpeg" {
		t.Errorf("Expected content type image/jpeg, got %s", *in.ContentType)
	}
	if string(putter.bodies[0]) != "jpeg bytes" {
		t.Error("Expected blob bytes to be sent")
	}
}

func TestS3UploaderErrors(t *testing.T) {
	u := NewS3UploaderWithClient(&fakePutter{err: errors.New("denied")}, S3Options{Bucket: "b"})

	if _, err := u.Upload(context.Background(), Blob{Name: "a.png"}); !errors.Is(err, ErrEmptyBlob) {
		t.Errorf("Expected ErrEmptyBlob, got %v", err)
	}
	if _, err := u.Upload(context.Background(), Blob{Name: "a.png", Data: []byte("x")}); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Errorf("Expected put error, got %v", err)
	}
}

func TestHTTPUploader(t *testing.T) {
	t.Run("Plain response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("Expected multipart form: %v", err)
				return
			}
			if r.FormValue("purpose") != string(PurposeArticleCover) {
				t.Errorf("Expected purpose field, got %q", r.FormValue("purpose"))
			}
			f, fh, err := r.FormFile("file")
			if err != nil {
				t.Errorf("Expected file part: %v", err)
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			if fh.Filename != "cover.png" || string(data) != "png" {
				t.Errorf("Unexpected file %q %q", fh.Filename, data)
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "42", "url": "https://cdn/42.png"})
		}))
		defer srv.Close()

		u := NewHTTPUploader(srv.URL, "secret", time.Second)
		res, err := u.Upload(context.Background(), Blob{Name: "cover.png", MIMEType: "image/png", Data: []byte("png"), Purpose: PurposeArticleCover})
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if res.ID != "42" || res.URL != "https://cdn/42.png" {
			t.Errorf("Unexpected result %+v", res)
		}
	})

	t.Run("Wrapped response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":0,"data":{"id":"7","url":"https://cdn/7.png"}}`))
		}))
		defer srv.Close()

		res, err := NewHTTPUploader(srv.URL, "", time.Second).Upload(context.Background(), Blob{Name: "a.png", Data: []byte("x")})
		if err != nil || res.ID != "7" {
			t.Errorf("Expected wrapped result, got %+v (%v)", res, err)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			w.Write([]byte(`{"message":"file too large"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPUploader(srv.URL, "", time.Second).Upload(context.Background(), Blob{Name: "a.png", Data: []byte("x")})
		if err == nil || !strings.Contains(err.Error(), "file too large") {
			t.Errorf("Expected rejection message, got %v", err)
		}
	})

	t.Run("Missing fields", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"1"}`))
		}))
		defer srv.Close()

		if _, err := NewHTTPUploader(srv.URL, "", time.Second).Upload(context.Background(), Blob{Name: "a.png", Data: []byte("x")}); err == nil {
			t.Error("Expected error for missing url")
		}
	})
}
