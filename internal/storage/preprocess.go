package storage

import "context"

// ImagePreprocessor transforms image bytes before upload (resize,
// re-encode, strip metadata). The upload path must work without one.
type ImagePreprocessor interface {
	Process(ctx context.Context, data []byte, contentType string) ([]byte, error)
}

// NopPreprocessor returns the input unchanged.
type NopPreprocessor struct{}

func (NopPreprocessor) Process(_ context.Context, data []byte, _ string) ([]byte, error) {
	return data, nil
}
