package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dental-ai/realtime-api/classifiers"
)

// Config is read once from the environment at startup.
type Config struct {
	Host string
	Port string

	ModelPaths  map[classifiers.Task]string
	LibraryPath string

	PoolSize       int
	IntraOpThreads int
	AcquireTimeout time.Duration
	RequestTimeout time.Duration
	Warmup         int
	ResizeFilter   string
	ChannelOrder   classifiers.ChannelOrder
	Parallel       bool

	MaxUploadBytes int64
	HistoryDBPath  string
	Debug          bool
}

func loadConfig() (*Config, error) {
	order, err := classifiers.ParseChannelOrder(os.Getenv("CHANNEL_ORDER"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host: envOr("HOST", "0.0.0.0"),
		Port: envOr("PORT", "8000"),
		ModelPaths: map[classifiers.Task]string{
			classifiers.TaskLesion: envOr("LESION_MODEL_PATH", "models/lesion_model.onnx"),
			classifiers.TaskCavity: envOr("CAVITY_MODEL_PATH", "models/cavity_model.onnx"),
			classifiers.TaskCancer: envOr("CANCER_MODEL_PATH", "models/cancer_model.onnx"),
		},
		LibraryPath:    os.Getenv("ONNXRUNTIME_LIB"),
		PoolSize:       envOrInt("POOL_SIZE", classifiers.DefaultPoolSize),
		IntraOpThreads: envOrInt("INTRA_OP_THREADS", 0),
		AcquireTimeout: time.Duration(envOrInt("ACQUIRE_TIMEOUT_SECONDS", 5)) * time.Second,
		RequestTimeout: time.Duration(envOrInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		Warmup:         envOrInt("WARMUP_ITERATIONS", classifiers.DefaultWarmup),
		ResizeFilter:   envOr("RESIZE_FILTER", classifiers.DefaultResizeFilter),
		ChannelOrder:   order,
		Parallel:       envOrBool("PARALLEL_CLASSIFIERS", false),
		MaxUploadBytes: int64(envOrInt("MAX_UPLOAD_MB", 10)) << 20,
		HistoryDBPath:  os.Getenv("HISTORY_DB_PATH"),
		Debug:          envOrBool("DEBUG", false),
	}

	if _, err := classifiers.ResizerByName(cfg.ResizeFilter); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, errors.New("MAX_UPLOAD_MB must be positive")
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func envOr(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func envOrInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
