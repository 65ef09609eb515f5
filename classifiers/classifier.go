package classifiers

import (
	"context"
	"image"
	"math"

	"github.com/pkg/errors"
)

// Classifier produces a single probability for one task from one image.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Task() Task
	Predict(ctx context.Context, img image.Image) (float64, error)
	Close() error
}

// Infer runs c on img. Any failure, including an expired ctx, is returned
// as an *InferenceError for c's task.
func Infer(ctx context.Context, c Classifier, img image.Image) (float64, error) {
	task := c.Task()
	if err := ctx.Err(); err != nil {
		return 0, &InferenceError{Task: task, Cause: err}
	}

	p, err := c.Predict(ctx, img)
	if err != nil {
		var inferErr *InferenceError
		if errors.As(err, &inferErr) {
			return 0, err
		}
		return 0, &InferenceError{Task: task, Cause: err}
	}
	// NaN or Inf cannot be labelled nor encoded as JSON.
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &InferenceError{Task: task, Cause: errors.Errorf("classifier produced non-finite output %v", p)}
	}
	return p, nil
}
