package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type ClassificationResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// MarshalJSON always writes the confidence as a JSON float, so 73 goes out
// as 73.0 rather than an integer literal.
func (r ClassificationResult) MarshalJSON() ([]byte, error) {
	if math.IsNaN(r.Confidence) || math.IsInf(r.Confidence, 0) {
		return nil, errors.Errorf("confidence %v is not a finite number", r.Confidence)
	}
	label, err := json.Marshal(r.Label)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, len(label)+40)
	b = append(b, `{"label":`...)
	b = append(b, label...)
	b = append(b, `,"confidence":`...)
	b = appendFloat(b, r.Confidence)
	return append(b, '}'), nil
}

func appendFloat(b []byte, v float64) []byte {
	n := len(b)
	b = strconv.AppendFloat(b, v, 'f', -1, 64)
	if !strings.ContainsRune(string(b[n:]), '.') {
		b = append(b, ".0"...)
	}
	return b
}

// Results maps a task name ("lesion", "cavity", "cancer") to its outcome.
type Results map[string]ClassificationResult

// ProcessingTimings collects per-stage durations of one request. Inference
// may be written from several goroutines when classifiers run concurrently.
type ProcessingTimings struct {
	RequestID   string
	ReadUpload  time.Duration
	ImageDecode time.Duration
	Total       time.Duration

	mu        sync.Mutex
	inference map[string]time.Duration
}

func (t *ProcessingTimings) SetInference(task string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inference == nil {
		t.inference = make(map[string]time.Duration, 3)
	}
	t.inference[task] = d
}

func (t *ProcessingTimings) Inference() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.inference))
	for k, v := range t.inference {
		out[k] = v
	}
	return out
}
