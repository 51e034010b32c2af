package editor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/debemdeboas/inkwell/internal/asset"
	"github.com/debemdeboas/inkwell/internal/model"
	"github.com/debemdeboas/inkwell/internal/pipeline"
	"github.com/debemdeboas/inkwell/internal/upload"
)

// persist runs the save sequence: cover, body assets, save service, then the
// cache entry is cleared. Any failure keeps the cache.
func (s *Session) persist(ctx context.Context, publish bool) (*Result, error) {
	op := OpSaveDraft
	if publish {
		op = OpPublish
	}
	rec := s.record

	if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.Body) == "" {
		s.machine.fail(ErrPreconditionFailed, nil)
		return nil, ErrPreconditionFailed
	}

	missing := s.missing()
	if len(missing) > 0 || rec.Cover.Pending() || needsUpload(rec.Body) {
		if err := s.enterProcessing(); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, s.suspend(op, missing)
	}

	var pass uploadPass
	if rec.Cover.Pending() {
		pass.coverName = rec.Cover.Name
		if err := s.uploadCover(ctx); err != nil {
			return nil, err
		}
		cover := rec.Cover
		pass.cover = &cover
	}

	out := pipeline.Process(ctx, rec.Body, s.ws, s.deps.Uploader, s.deps.Pipeline)
	s.absorb(out)
	pass.body = out.Uploaded
	if len(out.StillMissing) > 0 {
		s.checkpoint(ctx, pass)
		return nil, s.suspend(op, out.StillMissing)
	}
	if len(out.Errors) > 0 {
		perr := &ProcessingError{Kind: ErrUploadFailed, Errors: out.Errors}
		s.checkpoint(ctx, pass)
		s.machine.fail(perr, out.Errors)
		return nil, perr
	}

	if err := s.machine.saving(publish); err != nil {
		return nil, err
	}

	payload := s.payload(publish)
	article, err := s.deps.Saver.SaveArticle(ctx, payload)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSaveRejected, err)
		s.checkpoint(ctx, pass)
		s.machine.fail(err, nil)
		editorLogger.Warn().Err(err).Str("draft_key", string(s.Key())).Msg("Save rejected, draft kept in cache")
		return nil, err
	}

	oldKey := s.Key()
	if err := s.deps.Store.Clear(ctx, oldKey); err != nil {
		editorLogger.Error().Err(err).Str("draft_key", string(oldKey)).Msg("Article saved but cached draft was not cleared")
	}

	id := article.ID
	rec.EntityID = &id
	s.dirty = false
	if newKey := model.ArticleDraftKey(id); newKey != oldKey {
		rec.Key = newKey
		s.key.Store(newKey)
		if s.onRekey != nil {
			s.onRekey(oldKey, newKey)
		}
	}

	editorLogger.Info().
		Str("draft_key", string(s.Key())).
		Str("article_id", string(id)).
		Str("status", string(payload.Status)).
		Int("uploads", len(payload.UploadIDs)).
		Msg("Article saved")

	if err := s.machine.complete(); err != nil {
		return nil, err
	}
	return &Result{Operation: op, Article: article}, nil
}

// uploadCover uploads a local cover once and makes it remote.
func (s *Session) uploadCover(ctx context.Context) error {
	c := s.record.Cover
	h := c.Handle
	if h == nil {
		h, _ = s.ws.Lookup(c.Name)
	}

	opts := s.deps.Pipeline
	opts.Purpose = upload.PurposeArticleCover
	res, err := pipeline.UploadBlob(ctx, s.deps.Uploader, upload.Blob{
		Name:     h.Name,
		MIMEType: h.MIMEType,
		Data:     h.Data,
		Purpose:  upload.PurposeArticleCover,
	}, opts)
	if err != nil {
		errs := []pipeline.AssetError{{Reference: c.Name, Reason: "upload failed: " + err.Error(), Err: err}}
		perr := &ProcessingError{Kind: ErrUploadFailed, Errors: errs}
		s.machine.fail(perr, errs)
		return perr
	}

	s.record.Cover = model.RemoteCover(res.URL, res.ID)
	s.dirty = true
	return nil
}

// absorb applies a pipeline pass to the record, even a partial one, so
// uploaded assets are not uploaded again. Their local handles are released.
func (s *Session) absorb(out pipeline.Outcome) {
	if out.UploadedCount == 0 {
		return
	}
	s.record.Body = out.Body
	for ref, res := range out.Uploaded {
		s.record.Uploaded[res.URL] = res.ID
		if key, _, ok := s.ws.LookupKey(ref); ok {
			delete(s.ws, key)
		}
		delete(s.record.Local, ref)
	}
	s.dirty = true
}

// uploadPass is what one save attempt uploaded.
type uploadPass struct {
	coverName string
	cover     *model.CoverState
	body      map[string]upload.Result
}

func (p uploadPass) empty() bool {
	return p.cover == nil && len(p.body) == 0
}

// checkpoint records the uploads of a failed save in the cached draft so a
// restored draft does not upload them again. The rest of the cached draft
// stays as it was last cache-saved. Nothing is written if the draft was
// never cached.
func (s *Session) checkpoint(ctx context.Context, pass uploadPass) {
	if pass.empty() {
		return
	}
	key := s.Key()
	cached, err := s.deps.Store.Load(ctx, key)
	if err != nil {
		editorLogger.Error().Err(err).Str("draft_key", string(key)).Msg("Checkpoint failed")
		return
	}
	if cached == nil {
		return
	}

	if len(pass.body) > 0 {
		cached.Body = pipeline.Rewrite(cached.Body, pass.body)
		if cached.Uploaded == nil {
			cached.Uploaded = make(map[string]string)
		}
		for ref, res := range pass.body {
			cached.Uploaded[res.URL] = res.ID
			delete(cached.Local, ref)
		}
	}
	if pass.cover != nil && cached.Cover.Kind == model.CoverLocal && cached.Cover.Name == pass.coverName {
		cached.Cover = *pass.cover
	}

	if _, err := s.deps.Store.Save(ctx, cached); err != nil {
		editorLogger.Error().Err(err).Str("draft_key", string(key)).Msg("Checkpoint failed")
	}
}

func (s *Session) payload(publish bool) model.ArticlePayload {
	rec := s.record
	status := model.StatusDraft
	if publish {
		status = model.StatusPublished
	}

	p := model.ArticlePayload{
		ID:         rec.EntityID,
		Status:     status,
		Title:      strings.TrimSpace(rec.Title),
		Body:       rec.Body,
		Summary:    rec.Summary,
		Tags:       slices.Clone(rec.Tags),
		CategoryID: rec.CategoryID,
		Slug:       rec.Slug,
		UploadIDs:  finalUploadIDs(rec),
	}
	if rec.Cover.Kind == model.CoverRemote {
		p.CoverURL = rec.Cover.URL
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

// finalUploadIDs returns the ids of uploads that survive in the body, in
// document order, followed by the cover.
func finalUploadIDs(rec *model.DraftRecord) []string {
	ids := []string{}
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for _, ref := range asset.ExtractImageURLs(rec.Body) {
		add(rec.Uploaded[ref])
	}
	if rec.Cover.Kind == model.CoverRemote {
		add(rec.Cover.UploadID)
	}
	return ids
}

func needsUpload(body string) bool {
	_, embedded, local := asset.Partition(asset.ExtractImageURLs(body))
	return len(embedded)+len(local) > 0
}
