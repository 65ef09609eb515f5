package classifiers

import (
	"context"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dental-ai/realtime-api/models"
)

func newFakeRegistry(t *testing.T, lesion, cavity, cancer *fakeClassifier) *Registry {
	t.Helper()
	lesion.task, cavity.task, cancer.task = TaskLesion, TaskCavity, TaskCancer
	r, err := NewRegistry(lesion, cavity, cancer)
	require.NoError(t, err)
	return r
}

func TestPipelineClassifyScenario(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			reg := newFakeRegistry(t,
				&fakeClassifier{prob: float64(float32(0.73))},
				&fakeClassifier{prob: float64(float32(0.12))},
				&fakeClassifier{prob: float64(float32(0.91))},
			)
			p := NewPipeline(reg, WithParallel(parallel))

			results, err := p.Classify(context.Background(), solidImage(4, 4, gray(1)), nil)
			require.NoError(t, err)
			assert.Equal(t, models.Results{
				"lesion": {Label: "Lesion Detected", Confidence: 73.0},
				"cavity": {Label: "No Cavity", Confidence: 12.0},
				"cancer": {Label: "Cancerous", Confidence: 91.0},
			}, results)
		})
	}
}

func TestPipelineRunsInFixedOrder(t *testing.T) {
	obs := &fakeObserver{}
	reg := newFakeRegistry(t, &fakeClassifier{prob: 0.5}, &fakeClassifier{prob: 0.5}, &fakeClassifier{prob: 0.5})
	p := NewPipeline(reg, WithObserver(obs))

	timings := &models.ProcessingTimings{}
	results, err := p.Classify(context.Background(), solidImage(2, 2, gray(0)), timings)
	require.NoError(t, err)

	assert.Len(t, results, 3)
	assert.Equal(t, []string{"lesion", "cavity", "cancer"}, obs.tasks())
	assert.Len(t, timings.Inference(), 3)
	for _, r := range results {
		assert.Equal(t, 50.0, r.Confidence)
	}
}

func TestPipelineSequentialFailureIsAllOrNothing(t *testing.T) {
	lesion := &fakeClassifier{prob: 0.9}
	cavity := &fakeClassifier{err: errors.New("tensor shape mismatch")}
	cancer := &fakeClassifier{prob: 0.1}
	p := NewPipeline(newFakeRegistry(t, lesion, cavity, cancer))

	results, err := p.Classify(context.Background(), solidImage(2, 2, gray(0)), nil)
	require.Error(t, err)
	assert.Nil(t, results, "no partial results on failure")

	var inferErr *InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, TaskCavity, inferErr.Task)
	assert.Equal(t, "cavity inference: tensor shape mismatch", err.Error())

	assert.Equal(t, int32(1), lesion.calls.Load())
	assert.Equal(t, int32(0), cancer.calls.Load(), "classifiers after a failure are not run")
}

func TestPipelineParallelFailureIsAllOrNothing(t *testing.T) {
	blockUntilDone := func(ctx context.Context, _ image.Image) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	lesion := &fakeClassifier{predict: blockUntilDone}
	cavity := &fakeClassifier{err: errors.New("session run failed")}
	cancer := &fakeClassifier{predict: blockUntilDone}
	p := NewPipeline(newFakeRegistry(t, lesion, cavity, cancer), WithParallel(true))

	results, err := p.Classify(context.Background(), solidImage(2, 2, gray(0)), nil)
	require.Error(t, err)
	assert.Nil(t, results)

	var inferErr *InferenceError
	require.True(t, errors.As(err, &inferErr))
	assert.Equal(t, TaskCavity, inferErr.Task, "the originating failure is reported, not sibling cancellations")
}

func TestPipelineTimeout(t *testing.T) {
	slow := &fakeClassifier{predict: func(ctx context.Context, _ image.Image) (float64, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 0.9, nil
		}
	}}
	p := NewPipeline(newFakeRegistry(t, slow, &fakeClassifier{prob: 0.1}, &fakeClassifier{prob: 0.1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Classify(ctx, solidImage(2, 2, gray(0)), nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, ErrorKind(err))
}

func TestInferRejectsNonFiniteOutput(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1)} {
		_, err := Infer(context.Background(), &fakeClassifier{task: TaskCancer, prob: v}, solidImage(1, 1, gray(0)))
		require.Error(t, err)
		assert.Equal(t, KindInference, ErrorKind(err))
	}
}

func TestInferPassesOutOfRangeThrough(t *testing.T) {
	p, err := Infer(context.Background(), &fakeClassifier{task: TaskLesion, prob: 1.3}, solidImage(1, 1, gray(0)))
	require.NoError(t, err)
	assert.Equal(t, 1.3, p)
}

func TestInferCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &fakeClassifier{task: TaskLesion, prob: 0.7}
	_, err := Infer(ctx, c, solidImage(1, 1, gray(0)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestONNXClassifierPredict(t *testing.T) {
	c, err := newTestClassifier(TaskLesion, 4, 4, 1, 0)
	require.NoError(t, err)
	defer c.Close()

	p, err := Infer(context.Background(), c, solidImage(17, 9, gray(51)))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p, 1e-6)

	stats := c.PoolStats()
	assert.Equal(t, int64(1), stats.TotalAcquired)
	assert.Equal(t, int64(1), stats.TotalReleased)
}

func TestONNXClassifierInputMismatch(t *testing.T) {
	c, err := newTestClassifier(TaskCavity, 4, 4, 1, 0)
	require.NoError(t, err)
	defer c.Close()
	// The graph claims 8x8 but the sessions were allocated for 4x4.
	c.input.Width, c.input.Height = 8, 8

	_, err = Infer(context.Background(), c, solidImage(10, 10, gray(0)))
	require.Error(t, err)
	assert.Equal(t, KindInference, ErrorKind(err))
	assert.Contains(t, err.Error(), "cavity inference: prepare input tensor")
}

// Concurrent callers share one classifier and a small session pool; each
// must get the prediction for its own image.
func TestONNXClassifierConcurrentPredictions(t *testing.T) {
	c, err := newTestClassifier(TaskCancer, 6, 6, 2, time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	const n = 40
	got := make([]float64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = c.Predict(context.Background(), solidImage(13, 7, gray(uint8(i*6))))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.InDelta(t, float64(i*6)/255, got[i], 1e-5, "request %d got another request's result", i)
	}
	assert.Equal(t, 0, c.PoolStats().InUse)
}
