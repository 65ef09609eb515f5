package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dental-ai/realtime-api/classifiers"
	"github.com/dental-ai/realtime-api/history"
	"github.com/dental-ai/realtime-api/models"
)

type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the single error envelope of the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *AppState) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: MsgRunning})
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: uuid.NewString()}
	log := s.Log.WithField("request_id", timings.RequestID)

	ctx, cancel := context.WithTimeout(r.Context(), s.Config.RequestTimeout)
	defer cancel()

	results, err := s.predict(ctx, w, r, timings)
	timings.Total = time.Since(startTotal)

	s.Metrics.ObserveRequest(err)
	s.record(ctx, timings, results, err, log)

	if err != nil {
		log.WithFields(logrus.Fields{
			"kind":     classifiers.ErrorKind(err),
			"duration": timings.Total.String(),
		}).WithError(err).Warn("Prediction failed")
		sendErrorResponse(w, err.Error())
		return
	}

	if s.Config.Debug {
		logTimings(log, timings)
	}
	log.WithField("duration", timings.Total.String()).Info("Prediction served")
	writeJSON(w, http.StatusOK, results)
}

// predict runs one request through upload, decode and the pipeline. Each
// stage returns its own error kind; the caller flattens them into the
// uniform envelope.
func (s *AppState) predict(ctx context.Context, w http.ResponseWriter, r *http.Request, timings *models.ProcessingTimings) (models.Results, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes*2)

	readStart := time.Now()
	data, err := readUpload(r, s.Config.MaxUploadBytes)
	timings.ReadUpload = time.Since(readStart)
	if err != nil {
		return nil, err
	}

	decodeStart := time.Now()
	img, err := classifiers.DecodeImage(data)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, err
	}

	return s.Pipeline.Classify(ctx, img, timings)
}

func (s *AppState) record(ctx context.Context, t *models.ProcessingTimings, results models.Results, err error, log logrus.FieldLogger) {
	if s.History == nil {
		return
	}

	rec := history.Record{
		RequestID:  t.RequestID,
		CreatedAt:  time.Now(),
		DurationMs: float64(t.Total.Microseconds()) / 1000,
		Status:     history.StatusOK,
		Results:    results,
	}
	if err != nil {
		rec.Status = classifiers.ErrorKind(err)
		rec.Error = err.Error()
	}

	// The request context may already be past its deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.History.Add(writeCtx, rec); err != nil {
		log.WithError(err).Error("Failed to record prediction")
	}
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	pools := make(map[string]classifiers.PoolStats)
	for task, stats := range s.Registry.PoolStats() {
		pools[task.String()] = stats
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools":        pools,
		"inference":    s.Metrics.Snapshot(),
		"cpu_features": classifiers.CPUFeatures(),
		"parallel":     s.Config.Parallel,
	})
}

func (s *AppState) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: MsgHistoryDisabled})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer between 1 and 1000"})
			return
		}
		limit = n
	}

	records, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		s.Log.WithError(err).Error("Failed to list prediction history")
		sendErrorResponse(w, errors.Cause(err).Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func sendErrorResponse(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
