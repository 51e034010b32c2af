package editor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/debemdeboas/inkwell/internal/model"
)

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	mux := http.NewServeMux()
	NewHandler(f.manager, 0).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func do(t *testing.T, method, url, contentType string, body io.Reader) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHandlerSaveFlow(t *testing.T) {
	f, srv := newTestServer(t)

	resp, view := do(t, http.MethodPost, srv.URL+"/api/drafts", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	key := view["key"].(string)
	base := srv.URL + "/api/drafts/" + key

	resp, body := do(t, http.MethodPost, base+"/save", "", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for empty draft, got %d (%v)", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodPatch, base, "application/json", strings.NewReader(`{"title":"Hi","body":"![c](img/cat.png)"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for edit, got %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, base+"/save", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 while waiting for assets, got %d", resp.StatusCode)
	}
	if missing, _ := body["missing"].([]any); len(missing) != 1 || missing[0] != "img/cat.png" {
		t.Errorf("Expected img/cat.png to be missing, got %v", body["missing"])
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "cat.png")
	fw.Write([]byte("cat bytes"))
	mw.WriteField("paths", "holiday/img/cat.png")
	mw.Close()

	resp, body = do(t, http.MethodPost, base+"/files", mw.FormDataContentType(), &buf)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 after supplying files, got %d (%v)", resp.StatusCode, body)
	}
	if f.uploader.calls() != 1 || len(f.saver.payloads) != 1 {
		t.Errorf("Expected one upload and one save, got %d and %d", f.uploader.calls(), len(f.saver.payloads))
	}
	if string(f.uploader.blobs[0].Data) != "cat bytes" {
		t.Error("Expected supplied bytes to be uploaded")
	}
}

func TestHandlerAttachAndPreview(t *testing.T) {
	_, srv := newTestServer(t)

	_, view := do(t, http.MethodPost, srv.URL+"/api/drafts", "", nil)
	base := srv.URL + "/api/drafts/" + view["key"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "pic.png")
	fw.Write([]byte("png bytes"))
	mw.Close()

	resp, body := do(t, http.MethodPost, base+"/assets", mw.FormDataContentType(), &buf)
	if resp.StatusCode != http.StatusCreated || body["reference"] != "pic.png" {
		t.Fatalf("Expected attached pic.png, got %d %v", resp.StatusCode, body)
	}

	do(t, http.MethodPatch, base, "application/json", strings.NewReader(fmt.Sprintf(`{"body":%q}`, body["markdown"])))

	resp, body = do(t, http.MethodPost, base+"/preview", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for preview, got %d", resp.StatusCode)
	}
	urls := body["urls"].(map[string]any)
	u := urls["pic.png"].(string)

	assetResp, err := http.Get(srv.URL + u)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(assetResp.Body)
	assetResp.Body.Close()
	if assetResp.StatusCode != http.StatusOK || string(data) != "png bytes" {
		t.Errorf("Expected preview asset bytes, got %d %q", assetResp.StatusCode, data)
	}
	if ct := assetResp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/preview/unknown", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown preview, got %d", resp.StatusCode)
	}
}

func TestHandlerRejectsInvalidKey(t *testing.T) {
	_, srv := newTestServer(t)
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/drafts/bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrPreconditionFailed, http.StatusUnprocessableEntity},
		{missingError([]string{"a.png"}), http.StatusConflict},
		{&ProcessingError{Kind: ErrUploadFailed}, http.StatusBadGateway},
		{fmt.Errorf("%w: %w", ErrSaveRejected, model.ErrSlugConflict), http.StatusConflict},
		{fmt.Errorf("%w: %w", ErrSaveRejected, model.ErrInvalidArticle), http.StatusBadRequest},
		{fmt.Errorf("load: %w", model.ErrArticleNotFound), http.StatusNotFound},
		{ErrBusy, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
