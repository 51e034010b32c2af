package editor

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/config"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/routes"
)

type Handler struct {
	manager  *Manager
	maxBytes int64
}

func NewHandler(manager *Manager, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &Handler{manager: manager, maxBytes: maxUploadBytes}
}

// Register mounts the editor API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+routes.APIDrafts, h.ServeNewDraft)
	mux.HandleFunc("GET "+routes.APIDraft, h.ServeDraft)
	mux.HandleFunc("PATCH "+routes.APIDraft, h.ServeEdit)
	mux.HandleFunc("DELETE "+routes.APIDraft, h.ServeClose)
	mux.HandleFunc("POST "+routes.APIDraftImport, h.ServeImport)
	mux.HandleFunc("POST "+routes.APIDraftAssets, h.ServeAttach)
	mux.HandleFunc("PUT "+routes.APIDraftCover, h.ServeSetCover)
	mux.HandleFunc("DELETE "+routes.APIDraftCover, h.ServeClearCover)
	mux.HandleFunc("POST "+routes.APIDraftCache, h.ServeCacheSave)
	mux.HandleFunc("POST "+routes.APIDraftPreview, h.ServePreview)
	mux.HandleFunc("POST "+routes.APIDraftSave, h.ServeSave)
	mux.HandleFunc("POST "+routes.APIDraftPublish, h.ServePublish)
	mux.HandleFunc("POST "+routes.APIDraftFiles, h.ServeSupplyFiles)
	mux.HandleFunc("POST "+routes.APIDraftCancel, h.ServeCancel)
	mux.HandleFunc("POST "+routes.APIDraftDismiss, h.ServeDismiss)
	mux.HandleFunc("POST "+routes.APIDraftRestore, h.ServeAcceptRestore)
	mux.HandleFunc("DELETE "+routes.APIDraftRestore, h.ServeDiscardRestore)
	mux.HandleFunc("GET "+routes.APIArticleEdit, h.ServeEditArticle)
	mux.HandleFunc("GET "+routes.PreviewAsset, h.ServePreviewAsset)
}

type CoverView struct {
	Kind    model.CoverKind `json:"kind"`
	URL     string          `json:"url,omitempty"`
	Name    string          `json:"name,omitempty"`
	Missing bool            `json:"missing,omitempty"`
}

// DraftView is the JSON shape of a session. Blob bytes are left out.
type DraftView struct {
	Key         model.DraftKey   `json:"key"`
	EntityID    *model.ArticleID `json:"entity_id,omitempty"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary"`
	Slug        string           `json:"slug"`
	Tags        []string         `json:"tags"`
	CategoryID  *string          `json:"category_id,omitempty"`
	Body        string           `json:"body"`
	Cover       CoverView        `json:"cover"`
	ModifiedAt  time.Time        `json:"modified_at"`
	LocalAssets []string         `json:"local_assets"`
	Dirty       bool             `json:"dirty"`
	Status      Status           `json:"status"`
	Restore     *RestoreOffer    `json:"restore,omitempty"`
}

func viewOf(s *Session) DraftView {
	r := s.Record()
	return DraftView{
		Key:        r.Key,
		EntityID:   r.EntityID,
		Title:      r.Title,
		Summary:    r.Summary,
		Slug:       r.Slug,
		Tags:       r.Tags,
		CategoryID: r.CategoryID,
		Body:       r.Body,
		Cover: CoverView{
			Kind:    r.Cover.Kind,
			URL:     r.Cover.URL,
			Name:    r.Cover.Name,
			Missing: r.Cover.Missing(),
		},
		ModifiedAt:  r.ModifiedAt,
		LocalAssets: s.WorkingSet().Keys(),
		Dirty:       s.Dirty(),
		Status:      s.Status(),
		Restore:     s.RestoreOffer(),
	}
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, err := h.manager.Open(r.Context(), model.DraftKey(r.PathValue("key")))
	if err != nil {
		writeError(w, err, nil)
		return nil, false
	}
	return s, true
}

func (h *Handler) ServeNewDraft(w http.ResponseWriter, r *http.Request) {
	s := h.manager.NewDraft()
	writeJSON(w, http.StatusCreated, viewOf(s))
}

func (h *Handler) ServeDraft(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.session(w, r); ok {
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

func (h *Handler) ServeEditArticle(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.OpenArticle(r.Context(), model.ArticleID(r.PathValue("id")))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeEdit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var e Edit
	if err := json.NewDecoder(io.LimitReader(r.Body, h.maxBytes)).Decode(&e); err != nil {
		http.Error(w, "invalid edit: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Apply(e); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeClose(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Close(r.Context(), model.DraftKey(r.PathValue("key"))); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ServeImport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	doc, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ImportMarkdown(doc); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeAttach(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	handle, err := h.formFile(r, "file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ref, err := s.AttachAsset(r.FormValue("ref"), handle)
	if err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"reference": ref,
		"markdown":  "![" + handle.Name + "](" + ref + ")",
	})
}

func (h *Handler) ServeSetCover(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var err error
	if u := r.FormValue("url"); u != "" {
		err = s.SetCoverURL(u)
	} else {
		var handle *asset.Handle
		if handle, err = h.formFile(r, "file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = s.SetCover(handle)
	}
	if err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeClearCover(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.ClearCover(); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeCacheSave(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	at, err := s.CacheSave(r.Context())
	if err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_at": at, "status": s.Status()})
}

func (h *Handler) ServePreview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	p, err := s.Preview(r.Context())
	if err != nil {
		writeError(w, err, s)
		return
	}

	if r.Header.Get(config.HHxRequest) != "" {
		w.Header().Set(config.HCType, config.CTypeHTML)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(p.HTML))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ServeSave(w http.ResponseWriter, r *http.Request) {
	h.serveSave(w, r, false)
}

func (h *Handler) ServePublish(w http.ResponseWriter, r *http.Request) {
	h.serveSave(w, r, true)
}

func (h *Handler) serveSave(w http.ResponseWriter, r *http.Request, publish bool) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var (
		a   *model.Article
		err error
	)
	if publish {
		a, err = s.Publish(r.Context())
	} else {
		a, err = s.SaveDraft(r.Context())
	}
	if err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"article": a, "key": s.Key(), "status": s.Status()})
}

// ServeSupplyFiles takes a multipart selection in "files". Browsers drop the
// directory part of file names, so relative paths come in "paths" in the
// same order.
func (h *Handler) ServeSupplyFiles(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	paths := r.MultipartForm.Value["paths"]
	files := make([]asset.SelectedFile, 0, len(headers))
	for i, fh := range headers {
		handle, err := readHandle(fh, time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f := asset.SelectedFile{Handle: handle}
		if i < len(paths) {
			f.RelativePath = paths[i]
		}
		files = append(files, f)
	}

	res, err := s.SupplyFiles(r.Context(), files)
	if err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "status": s.Status()})
}

func (h *Handler) ServeCancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Handler) ServeDismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Dismiss(); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (h *Handler) ServeAcceptRestore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.AcceptRestore(); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServeDiscardRestore(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.DiscardRestore(r.Context()); err != nil {
		writeError(w, err, s)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(s))
}

func (h *Handler) ServePreviewAsset(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.manager.Previews().Resolve(r.PathValue("token"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set(config.HCType, handle.MIMEType)
	w.Header().Set(config.HCacheControl, "private, no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(handle.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(handle.Data)
}

func (h *Handler) formFile(r *http.Request, field string) (*asset.Handle, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return nil, err
		}
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, http.ErrMissingFile
	}

	modTime := time.Now()
	if ms, err := strconv.ParseInt(r.FormValue("modified"), 10, 64); err == nil {
		modTime = time.UnixMilli(ms)
	}
	return readHandle(headers[0], modTime)
}

func readHandle(fh *multipart.FileHeader, modTime time.Time) (*asset.Handle, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return asset.NewHandle(fh.Filename, fh.Header.Get(config.HCType), data, modTime), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		editorLogger.Error().Err(err).Msg("Error writing response")
	}
}

// StatusCode maps editor errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidDraftKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrNoRestoreOffer),
		errors.Is(err, model.ErrArticleNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, ErrPreconditionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrLocalAssetMissing),
		errors.Is(err, ErrBusy),
		errors.Is(err, ErrNothingPending),
		errors.Is(err, ErrRestorePending),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrSaveRejected) && errors.Is(err, model.ErrSlugConflict):
		return http.StatusConflict
	case errors.Is(err, ErrSaveRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, s *Session) {
	body := map[string]any{"error": err.Error()}

	var perr *ProcessingError
	if errors.As(err, &perr) {
		if len(perr.Missing) > 0 {
			body["missing"] = perr.Missing
		}
		if len(perr.Errors) > 0 {
			body["errors"] = perr.Errors
		}
	}
	if s != nil {
		body["status"] = s.Status()
	}

	code := StatusCode(err)
	if code == http.StatusInternalServerError {
		editorLogger.Error().Err(err).Msg("Editor request failed")
	}
	writeJSON(w, code, body)
}
