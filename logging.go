package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dental-ai/realtime-api/models"
)

// initLogger returns a JSON logger, or a verbose text logger in debug mode.
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	return logger
}

func logTimings(log logrus.FieldLogger, t *models.ProcessingTimings) {
	fields := logrus.Fields{
		"request_id":   t.RequestID,
		"read_upload":  t.ReadUpload.String(),
		"image_decode": t.ImageDecode.String(),
		"total":        t.Total.String(),
	}
	for task, d := range t.Inference() {
		fields["inference_"+task] = d.String()
	}
	log.WithFields(fields).Debug("Processing times")
}
