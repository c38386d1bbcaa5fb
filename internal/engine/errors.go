package engine

import (
	"errors"
	"fmt"
)

// ErrUpstream matches any failure of an external capability. Such failures
// are recoverable: the work is retried on the next run.
var ErrUpstream = errors.New("upstream capability failed")

// Capabilities named in UpstreamError.
const (
	CapabilityLLM           = "llm"
	CapabilityEmbedding     = "embedding"
	CapabilityTranscription = "transcription"
)

// UpstreamError wraps a failed call to an external capability.
type UpstreamError struct {
	Capability string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Capability, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

func upstream(capability string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Capability: capability, Err: err}
}
