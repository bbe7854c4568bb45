package llm

import (
	"context"
	"fmt"
)

// FailureKind classifies why a model invocation failed.
type FailureKind string

const (
	FailureQuotaExceeded    FailureKind = "quota_exceeded"
	FailureInvalidInput     FailureKind = "invalid_input"
	FailureTransientNetwork FailureKind = "transient_network"
	FailureUnknown          FailureKind = "unknown"
)

// Failure is the error returned by an adapter when the external call did not
// produce a usable result. The kind is advisory; the job manager records it
// in the failure message but the job state is simply "failed".
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Message == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure builds a Failure with a normalized kind.
func NewFailure(kind FailureKind, message string) *Failure {
	switch kind {
	case FailureQuotaExceeded, FailureInvalidInput, FailureTransientNetwork:
	default:
		kind = FailureUnknown
	}
	return &Failure{Kind: kind, Message: message}
}

// ImageInput is one reference image sent to the model.
type ImageInput struct {
	Data     []byte
	MimeType string
}

// Request is the composed input for one invocation: resolved prompt, ordered
// reference images, and the aspect ratio.
type Request struct {
	Prompt      string
	Images      []ImageInput
	AspectRatio string
}

// Result is a successful model response. ImageData takes precedence over
// Text when both are present.
type Result struct {
	ImageData []byte
	ImageMime string
	Text      string
}

// HasImage reports whether the model returned image bytes.
func (r *Result) HasImage() bool {
	return r != nil && len(r.ImageData) > 0
}

// Adapter performs exactly one external generation call per invocation.
// It never retries internally; a failed call surfaces as a *Failure error.
type Adapter interface {
	Invoke(ctx context.Context, request Request) (*Result, error)
}
