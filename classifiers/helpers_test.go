package classifiers

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

type fakeRunner struct {
	run       func() error
	destroyed atomic.Bool
}

func (f *fakeRunner) Run() error {
	if f.run != nil {
		return f.run()
	}
	return nil
}

func (f *fakeRunner) Destroy() error {
	f.destroyed.Store(true)
	return nil
}

// newFakeSession builds a session whose Run calls fn with its own buffers.
func newFakeSession(inputLen, outputLen int, fn func(in, out []float32) error) *Session {
	s := &Session{
		input:  make([]float32, inputLen),
		output: make([]float32, outputLen),
	}
	s.runner = &fakeRunner{run: func() error {
		if fn == nil {
			return nil
		}
		return fn(s.input, s.output)
	}}
	return s
}

// meanOutput writes the mean of the input tensor as the single output.
func meanOutput(delay time.Duration) func(in, out []float32) error {
	return func(in, out []float32) error {
		if delay > 0 {
			time.Sleep(delay)
		}
		var sum float64
		for _, v := range in {
			sum += float64(v)
		}
		out[0] = float32(sum / float64(len(in)))
		return nil
	}
}

// newTestClassifier wires a real preprocessor and session pool to fake
// sessions computing the mean pixel value.
func newTestClassifier(task Task, width, height, poolSize int, delay time.Duration) (*ONNXClassifier, error) {
	pool, err := NewSessionPool(poolSize, 2*time.Second, func() (*Session, error) {
		return newFakeSession(width*height*3, 1, meanOutput(delay)), nil
	})
	if err != nil {
		return nil, err
	}
	return &ONNXClassifier{
		task: task,
		path: "test.onnx",
		input: InputSpec{
			Name:   "input",
			Layout: LayoutNHWC,
			Height: height,
			Width:  width,
			Shape:  ort.Shape{1, int64(height), int64(width), 3},
		},
		output: OutputSpec{Name: "output", Shape: ort.Shape{1, 1}},
		prep:   NewPreprocessor(nil, ChannelOrderBGR),
		pool:   pool,
	}, nil
}

func solidImage(width, height int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gray(v uint8) color.Color {
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

type fakeClassifier struct {
	task     Task
	prob     float64
	err      error
	predict  func(ctx context.Context, img image.Image) (float64, error)
	calls    atomic.Int32
	closed   atomic.Bool
	closeErr error
}

func (f *fakeClassifier) Task() Task { return f.task }

func (f *fakeClassifier) Predict(ctx context.Context, img image.Image) (float64, error) {
	f.calls.Add(1)
	if f.predict != nil {
		return f.predict(ctx, img)
	}
	return f.prob, f.err
}

func (f *fakeClassifier) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

type observation struct {
	task string
	err  error
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *fakeObserver) ObserveInference(task string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{task: task, err: err})
}

func (o *fakeObserver) tasks() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.seen))
	for _, s := range o.seen {
		out = append(out, s.task)
	}
	return out
}
