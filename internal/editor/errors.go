package editor

import (
	"errors"
	"strings"

	"github.com/debemdeboas/inkwell/internal/pipeline"
)

var (
	ErrBusy               = errors.New("another operation is in progress")
	ErrNothingPending     = errors.New("no operation is waiting for assets")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrSessionClosed      = errors.New("editor session is closed")
	ErrSessionNotFound    = errors.New("editor session not found")
	ErrInvalidDraftKey    = errors.New("invalid draft key")
	ErrNoRestoreOffer     = errors.New("no cached draft to restore")
	ErrRestorePending     = errors.New("a cached draft is waiting to be restored or discarded")
	ErrLocalAssetMissing  = errors.New("local asset missing")
	ErrUploadFailed       = errors.New("upload failed")
	ErrSaveRejected       = errors.New("save rejected")
	ErrPreconditionFailed = errors.New("title and body are required")
)

// ProcessingError carries the per-reference failures of one operation. It
// unwraps to ErrLocalAssetMissing or ErrUploadFailed.
type ProcessingError struct {
	Kind    error
	Missing []string
	Errors  []pipeline.AssetError
}

func (e *ProcessingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.Missing) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Missing, ", "))
		return b.String()
	}
	for i, ae := range e.Errors {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(ae.Error())
	}
	return b.String()
}

func (e *ProcessingError) Unwrap() error {
	return e.Kind
}

func missingError(missing []string) *ProcessingError {
	errs := make([]pipeline.AssetError, 0, len(missing))
	for _, ref := range missing {
		errs = append(errs, pipeline.AssetError{Reference: ref, Reason: "local file is not available", LocalMissing: true})
	}
	return &ProcessingError{Kind: ErrLocalAssetMissing, Missing: missing, Errors: errs}
}
