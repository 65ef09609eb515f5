package classifiers

import (
	"strconv"

	"github.com/dental-ai/realtime-api/models"
)

// Interpret turns a probability into the task's label and a confidence
// percentage. The probability is not clamped.
func Interpret(task Task, p float64) models.ClassificationResult {
	l := vocabulary[task]
	label := l.negative
	if p > Threshold {
		label = l.positive
	}
	return models.ClassificationResult{
		Label:      label,
		Confidence: Confidence(p),
	}
}

// Confidence returns p*100 rounded to two decimals. FormatFloat rounds the
// exact binary value, half-to-even on true ties.
func Confidence(p float64) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(p*100, 'f', 2, 64), 64)
	if err != nil {
		return p * 100
	}
	return v
}
