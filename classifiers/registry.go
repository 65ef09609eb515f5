package classifiers

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Registry holds exactly one classifier per task. It is built once at
// startup and only read afterwards.
type Registry struct {
	classifiers map[Task]Classifier
}

// NewRegistry wraps already constructed classifiers. Each of the three tasks
// must be covered exactly once.
func NewRegistry(cs ...Classifier) (*Registry, error) {
	r := &Registry{classifiers: make(map[Task]Classifier, len(Tasks))}
	for _, c := range cs {
		task := c.Task()
		if !task.Valid() {
			return nil, errors.Errorf("classifier for unknown task %q", task)
		}
		if _, dup := r.classifiers[task]; dup {
			return nil, errors.Errorf("duplicate classifier for task %q", task)
		}
		r.classifiers[task] = c
	}
	for _, task := range Tasks {
		if _, ok := r.classifiers[task]; !ok {
			return nil, errors.Errorf("no classifier for task %q", task)
		}
	}
	return r, nil
}

// LoadRegistry loads the model for each task from paths, in pipeline order.
// If any model fails, the ones already loaded are closed and the
// *ModelLoadError is returned.
func LoadRegistry(paths map[Task]string, opts Options, log logrus.FieldLogger) (*Registry, error) {
	return loadRegistry(paths, log, func(task Task, path string) (Classifier, error) {
		c, err := Load(task, path, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

type loadFunc func(task Task, path string) (Classifier, error)

func loadRegistry(paths map[Task]string, log logrus.FieldLogger, load loadFunc) (*Registry, error) {
	loaded := make([]Classifier, 0, len(Tasks))
	closeLoaded := func() {
		for _, c := range loaded {
			if err := c.Close(); err != nil {
				log.WithError(err).WithField("task", c.Task()).Warn("Failed to close classifier after load failure")
			}
		}
	}

	for _, task := range Tasks {
		path, ok := paths[task]
		if !ok || path == "" {
			closeLoaded()
			return nil, &ModelLoadError{Task: task, Cause: errors.New("no model path configured")}
		}

		c, err := load(task, path)
		if err != nil {
			closeLoaded()
			return nil, err
		}
		log.WithFields(describe(c)).Info("Model loaded")
		loaded = append(loaded, c)
	}

	return NewRegistry(loaded...)
}

func describe(c Classifier) logrus.Fields {
	fields := logrus.Fields{"task": c.Task()}
	if m, ok := c.(*ONNXClassifier); ok {
		fields["path"] = m.Path()
		fields["input"] = m.Input().Name
		fields["input_shape"] = m.Input().Shape.String()
		fields["layout"] = m.Input().Layout.String()
		fields["output"] = m.Output().Name
		fields["output_shape"] = m.Output().Shape.String()
	}
	return fields
}

func (r *Registry) Get(task Task) (Classifier, bool) {
	c, ok := r.classifiers[task]
	return c, ok
}

// Tasks returns the registered tasks in pipeline order.
func (r *Registry) Tasks() []Task {
	out := make([]Task, 0, len(Tasks))
	for _, task := range Tasks {
		if _, ok := r.classifiers[task]; ok {
			out = append(out, task)
		}
	}
	return out
}

// PoolStats reports session pool counters of classifiers that keep a pool.
func (r *Registry) PoolStats() map[Task]PoolStats {
	out := make(map[Task]PoolStats, len(r.classifiers))
	for task, c := range r.classifiers {
		if p, ok := c.(interface{ PoolStats() PoolStats }); ok {
			out[task] = p.PoolStats()
		}
	}
	return out
}

func (r *Registry) Close() error {
	var first error
	for _, task := range Tasks {
		c, ok := r.classifiers[task]
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s classifier", task)
		}
	}
	return first
}
