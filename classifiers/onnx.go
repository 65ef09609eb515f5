package classifiers

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Options configures how a model artifact is loaded.
type Options struct {
	PoolSize       int
	AcquireTimeout time.Duration
	Warmup         int
	IntraOpThreads int
	InterOpThreads int
	Preprocessor   *Preprocessor
}

func (o Options) withDefaults() Options {
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.Warmup < 0 {
		o.Warmup = 0
	}
	if o.IntraOpThreads <= 0 {
		o.IntraOpThreads = max(1, runtime.NumCPU()/o.PoolSize)
	}
	if o.InterOpThreads <= 0 {
		o.InterOpThreads = 1
	}
	if o.Preprocessor == nil {
		o.Preprocessor = NewPreprocessor(nil, ChannelOrderBGR)
	}
	return o
}

// ONNXClassifier runs one binary classification graph through ONNX Runtime.
// The graph is shared read-only; each pooled session owns its tensors, so
// concurrent Predict calls never touch the same buffers.
type ONNXClassifier struct {
	task   Task
	path   string
	input  InputSpec
	output OutputSpec
	prep   *Preprocessor
	pool   *SessionPool
}

// Load reads a model's input and output metadata, allocates PoolSize
// sessions and runs the configured warmup. The ONNX Runtime environment must
// already be initialized. Every failure is a *ModelLoadError.
func Load(task Task, path string, opts Options) (*ONNXClassifier, error) {
	opts = opts.withDefaults()
	fail := func(err error) (*ONNXClassifier, error) {
		return nil, &ModelLoadError{Task: task, Path: path, Cause: err}
	}

	if !task.Valid() {
		return fail(errors.Errorf("unknown task %q", task))
	}
	if _, err := os.Stat(path); err != nil {
		return fail(errors.Wrap(err, "model file not found"))
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return fail(errors.Wrap(err, "read graph metadata"))
	}
	in, out, err := resolveShapes(inputs, outputs)
	if err != nil {
		return fail(err)
	}

	pool, err := NewSessionPool(opts.PoolSize, opts.AcquireTimeout, func() (*Session, error) {
		return initSession(path, in, out, opts)
	})
	if err != nil {
		return fail(err)
	}

	c := &ONNXClassifier{
		task:   task,
		path:   path,
		input:  in,
		output: out,
		prep:   opts.Preprocessor,
		pool:   pool,
	}

	if err := c.warmup(opts.Warmup); err != nil {
		pool.Destroy()
		return fail(errors.Wrap(err, "warmup"))
	}
	return c, nil
}

func initSession(modelPath string, in InputSpec, out OutputSpec, opts Options) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](in.Shape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](out.Shape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{in.Name},
		[]string{out.Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Session{
		runner:  session,
		input:   inputTensor.GetData(),
		output:  outputTensor.GetData(),
		cleanup: []func() error{inputTensor.Destroy, outputTensor.Destroy},
	}, nil
}

func (c *ONNXClassifier) warmup(iterations int) error {
	for i := 0; i < iterations; i++ {
		session, err := c.pool.Acquire(context.Background())
		if err != nil {
			return err
		}
		clear(session.Input())
		err = session.Run()
		c.pool.Release(session)
		if err != nil {
			return errors.Wrapf(err, "iteration %d", i)
		}
	}
	return nil
}

func (c *ONNXClassifier) Task() Task { return c.task }

// Path is the model file the classifier was loaded from.
func (c *ONNXClassifier) Path() string { return c.path }

func (c *ONNXClassifier) Input() InputSpec { return c.input }

func (c *ONNXClassifier) Output() OutputSpec { return c.output }

func (c *ONNXClassifier) PoolStats() PoolStats { return c.pool.Stats() }

// Predict resizes img to the graph's input size, runs it and returns the
// first element of the flattened first output.
func (c *ONNXClassifier) Predict(ctx context.Context, img image.Image) (float64, error) {
	resized, err := c.prep.Resize(img, c.input.Width, c.input.Height)
	if err != nil {
		return 0, err
	}

	session, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "acquire session")
	}
	defer c.pool.Release(session)

	if err := c.prep.Fill(resized, session.Input(), c.input.Layout); err != nil {
		return 0, errors.Wrap(err, "prepare input tensor")
	}
	if err := session.Run(); err != nil {
		return 0, errors.Wrap(err, "run session")
	}

	output := session.Output()
	if len(output) == 0 {
		return 0, errors.New("output tensor is empty")
	}
	return float64(output[0]), nil
}

func (c *ONNXClassifier) Close() error {
	c.pool.Destroy()
	return nil
}
