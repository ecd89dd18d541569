package upload

import (
	"context"
	"errors"
	"fmt"

	"fixmyarea-be/objectstore"
)

var ErrNoImagesUploaded = errors.New("no images were uploaded")

// FailureKind classifies why a single image failed.
type FailureKind string

const (
	KindNetwork           FailureKind = "network"
	KindQuota             FailureKind = "quota"
	KindMalformedResponse FailureKind = "malformed_response"
	KindCanceled          FailureKind = "canceled"
	KindRejected          FailureKind = "rejected"
)

// Failure is the outcome of one image that did not upload.
type Failure struct {
	Index  int         `json:"index"`
	Name   string      `json:"name"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// UploadError means the submission as a whole failed: either nothing uploaded, or the
// context ended before fan-in completed.
type UploadError struct {
	Requested int
	Failures  []Failure
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%d of %d images failed): %v", len(e.Failures), e.Requested, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, objectstore.ErrQuota):
		return KindQuota
	case errors.Is(err, objectstore.ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, objectstore.ErrRejected):
		return KindRejected
	default:
		return KindNetwork
	}
}
