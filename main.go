package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dental-ai/realtime-api/classifiers"
	"github.com/dental-ai/realtime-api/history"
	"github.com/dental-ai/realtime-api/metrics"
)

type AppState struct {
	Config   *Config
	Log      *logrus.Logger
	Registry *classifiers.Registry
	Pipeline *classifiers.Pipeline
	Metrics  *metrics.Recorder
	History  *history.Store
}

func newAppState(cfg *Config, log *logrus.Logger, registry *classifiers.Registry, store *history.Store) *AppState {
	recorder := metrics.NewRecorder(0.2)
	return &AppState{
		Config:   cfg,
		Log:      log,
		Registry: registry,
		Pipeline: classifiers.NewPipeline(registry,
			classifiers.WithParallel(cfg.Parallel),
			classifiers.WithObserver(recorder),
		),
		Metrics: recorder,
		History: store,
	}
}

func (s *AppState) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	s.addMonitoringRoutes(r)
	return withCORS(r)
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log := initLogger(cfg.Debug)

	if err := run(cfg, log); err != nil {
		log.WithField("kind", classifiers.ErrorKind(err)).Fatalf("%v", err)
	}
}

func run(cfg *Config, log *logrus.Logger) error {
	log.WithFields(logrus.Fields{
		"cpu_features":  classifiers.CPUFeatures(),
		"pool_size":     cfg.PoolSize,
		"resize_filter": cfg.ResizeFilter,
		"channel_order": cfg.ChannelOrder.String(),
		"parallel":      cfg.Parallel,
	}).Info("Loading models")

	destroyRuntime, err := initRuntime(cfg.LibraryPath)
	if err != nil {
		return err
	}
	defer destroyRuntime()

	resizer, err := classifiers.ResizerByName(cfg.ResizeFilter)
	if err != nil {
		return err
	}

	// Every model must load before the port is bound.
	registry, err := classifiers.LoadRegistry(cfg.ModelPaths, classifiers.Options{
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		Warmup:         cfg.Warmup,
		IntraOpThreads: cfg.IntraOpThreads,
		Preprocessor:   classifiers.NewPreprocessor(resizer, cfg.ChannelOrder),
	}, log)
	if err != nil {
		return err
	}
	defer registry.Close()
	log.Info("Models loaded successfully")

	var store *history.Store
	if cfg.HistoryDBPath != "" {
		store, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.WithField("path", cfg.HistoryDBPath).Info("Prediction history enabled")
	}

	state := newAppState(cfg, log, registry, store)

	srv := &http.Server{
		Handler:      state.routes(),
		Addr:         cfg.Addr(),
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		ReadTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
