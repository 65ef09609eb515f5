package classifiers

import "time"

// Task names one of the binary detection models.
type Task string

const (
	TaskLesion Task = "lesion"
	TaskCavity Task = "cavity"
	TaskCancer Task = "cancer"
)

// Tasks is the fixed invocation order of the pipeline.
var Tasks = []Task{TaskLesion, TaskCavity, TaskCancer}

const (
	// Threshold is compared strictly: a probability of exactly 0.5 is negative.
	Threshold = 0.5

	DefaultPoolSize       = 2
	DefaultAcquireTimeout = 5 * time.Second
	DefaultWarmup         = 1

	// MaxPixels bounds the decoded size of an upload (about 50 megapixels).
	MaxPixels = 50_000_000
)

type labels struct {
	positive string
	negative string
}

var vocabulary = map[Task]labels{
	TaskLesion: {positive: "Lesion Detected", negative: "No Lesion"},
	TaskCavity: {positive: "Cavity Detected", negative: "No Cavity"},
	TaskCancer: {positive: "Cancerous", negative: "Non-Cancerous"},
}

func (t Task) String() string { return string(t) }

// Valid reports whether t is one of the three known tasks.
func (t Task) Valid() bool {
	_, ok := vocabulary[t]
	return ok
}
