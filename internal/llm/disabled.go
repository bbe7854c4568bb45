package llm

import "context"

type disabledAdapter struct{}

// NewDisabledAdapter returns an adapter that fails every invocation. Used
// when no API key is configured so the server can still serve uploads and
// history.
func NewDisabledAdapter() Adapter {
	return disabledAdapter{}
}

func (disabledAdapter) Invoke(ctx context.Context, request Request) (*Result, error) {
	return nil, NewFailure(FailureUnknown, "image generation is not configured: missing api key")
}
