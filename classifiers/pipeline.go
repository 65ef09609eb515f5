package classifiers

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dental-ai/realtime-api/models"
)

// Observer receives the outcome of every classifier invocation.
type Observer interface {
	ObserveInference(task string, d time.Duration, err error)
}

// Pipeline runs every registered classifier on one image and combines the
// outcomes. It holds no per-request state.
type Pipeline struct {
	registry *Registry
	parallel bool
	observer Observer
}

type PipelineOption func(*Pipeline)

// WithParallel runs the three classifiers concurrently instead of in
// sequence. Failure semantics stay all-or-nothing.
func WithParallel(parallel bool) PipelineOption {
	return func(p *Pipeline) { p.parallel = parallel }
}

func WithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

func NewPipeline(registry *Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify returns a result for every task or an error; partial results are
// never returned. timings may be nil.
func (p *Pipeline) Classify(ctx context.Context, img image.Image, timings *models.ProcessingTimings) (models.Results, error) {
	if p.parallel {
		return p.classifyParallel(ctx, img, timings)
	}

	results := make(models.Results, len(Tasks))
	for _, task := range p.registry.Tasks() {
		prob, err := p.infer(ctx, task, img, timings)
		if err != nil {
			return nil, err
		}
		results[task.String()] = Interpret(task, prob)
	}
	return results, nil
}

func (p *Pipeline) classifyParallel(ctx context.Context, img image.Image, timings *models.ProcessingTimings) (models.Results, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := p.registry.Tasks()
	probs := make([]float64, len(tasks))
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		go func(i int, task Task) {
			defer wg.Done()
			probs[i], errs[i] = p.infer(ctx, task, img, timings)
			if errs[i] != nil {
				cancel()
			}
		}(i, task)
	}
	wg.Wait()

	// Report the earliest failure in pipeline order, skipping cancellations
	// caused by a sibling failing first.
	var firstErr error
	for i := range tasks {
		if errs[i] == nil {
			continue
		}
		if firstErr == nil {
			firstErr = errs[i]
		}
		if !errors.Is(errs[i], context.Canceled) {
			firstErr = errs[i]
			break
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	results := make(models.Results, len(tasks))
	for i, task := range tasks {
		results[task.String()] = Interpret(task, probs[i])
	}
	return results, nil
}

func (p *Pipeline) infer(ctx context.Context, task Task, img image.Image, timings *models.ProcessingTimings) (float64, error) {
	c, ok := p.registry.Get(task)
	if !ok {
		return 0, &InferenceError{Task: task, Cause: errors.New("no classifier registered")}
	}

	start := time.Now()
	prob, err := Infer(ctx, c, img)
	elapsed := time.Since(start)

	if timings != nil {
		timings.SetInference(task.String(), elapsed)
	}
	if p.observer != nil {
		p.observer.ObserveInference(task.String(), elapsed, err)
	}
	return prob, err
}
