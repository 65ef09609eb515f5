package metrics

import (
	"sync"
	"time"

	"github.com/dental-ai/realtime-api/classifiers"
)

type TaskLatency struct {
	// EWMA of inference time in milliseconds.
	EWMAms float64 `json:"ewma_ms"`

	OK    uint64 `json:"ok"`
	Error uint64 `json:"error"`

	LastMs float64   `json:"last_ms"`
	LastAt time.Time `json:"last_at"`
}

// Recorder tracks per-task inference latency and request outcomes by error
// kind. It implements classifiers.Observer.
type Recorder struct {
	mu       sync.RWMutex
	alpha    float64
	tasks    map[string]*TaskLatency
	requests uint64
	errors   map[string]uint64
}

// NewRecorder creates a recorder with EWMA smoothing factor alpha.
// Typical alpha: 0.1..0.3 (higher reacts faster).
func NewRecorder(alpha float64) *Recorder {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.2
	}
	return &Recorder{
		alpha:  alpha,
		tasks:  map[string]*TaskLatency{},
		errors: map[string]uint64{},
	}
}

func (r *Recorder) ObserveInference(task string, d time.Duration, err error) {
	now := time.Now()
	ms := float64(d.Microseconds()) / 1000

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tasks[task]
	if t == nil {
		t = &TaskLatency{}
		r.tasks[task] = t
	}

	if t.EWMAms == 0 {
		t.EWMAms = ms
	} else {
		t.EWMAms = (r.alpha * ms) + ((1.0 - r.alpha) * t.EWMAms)
	}
	t.LastMs = ms
	t.LastAt = now
	if err == nil {
		t.OK++
	} else {
		t.Error++
	}
}

// ObserveRequest counts a finished /predict request. A nil err counts as a
// success; otherwise the error's kind is incremented.
func (r *Recorder) ObserveRequest(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests++
	if err != nil {
		r.errors[classifiers.ErrorKind(err)]++
	}
}

type Snapshot struct {
	Requests uint64                 `json:"requests"`
	Errors   map[string]uint64      `json:"errors"`
	Tasks    map[string]TaskLatency `json:"tasks"`
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Snapshot{
		Requests: r.requests,
		Errors:   make(map[string]uint64, len(r.errors)),
		Tasks:    make(map[string]TaskLatency, len(r.tasks)),
	}
	for k, v := range r.errors {
		out.Errors[k] = v
	}
	for k, v := range r.tasks {
		out.Tasks[k] = *v
	}
	return out
}
