package listing

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMissingSubmitter = errors.New("submitter identity required")

// ImageFailure ties an upload error back to the staged image position.
type ImageFailure struct {
	Index int
	Name  string
	Err   error
}

// UploadError means at least one staged image could not be uploaded.
// No record was written. Aborted counts uploads cancelled after another
// image failed; they are not listed in Failures.
type UploadError struct {
	Total    int
	Failures []ImageFailure
	Aborted  int
}

func (e *UploadError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("#%d %s: %v", f.Index, f.Name, f.Err))
	}
	return fmt.Sprintf("upload %d of %d images failed: %s", len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *UploadError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// WriteError means every image was uploaded but the record write failed.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write listing: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
