package classifiers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ModelLoadError is returned when a model artifact cannot be turned into a
// usable classifier. It is only produced at startup.
type ModelLoadError struct {
	Task  Task
	Path  string
	Cause error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load %s model %q: %v", e.Task, e.Path, e.Cause)
}

func (e *ModelLoadError) Unwrap() error { return e.Cause }

// DecodeError is returned when uploaded bytes are not a decodable image.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// InferenceError is returned when preparing input for, or running, one
// classifier fails.
type InferenceError struct {
	Task  Task
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s inference: %v", e.Task, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// Error kinds reported to logs and metrics.
const (
	KindModelLoad = "model_load"
	KindDecode    = "decode"
	KindInference = "inference"
	KindTimeout   = "timeout"
	KindRequest   = "request"
)

var ErrPoolClosed = errors.New("session pool is closed")

// ErrorKind classifies err for logging. Inference errors caused by an
// expired deadline are reported as timeouts.
func ErrorKind(err error) string {
	var loadErr *ModelLoadError
	var decodeErr *DecodeError
	var inferErr *InferenceError
	switch {
	case errors.As(err, &loadErr):
		return KindModelLoad
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &inferErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout
		}
		return KindInference
	default:
		return KindRequest
	}
}
