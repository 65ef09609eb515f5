package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dental-ai/realtime-api/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAddAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	results := models.Results{
		"lesion": {Label: "Lesion Detected", Confidence: 73.0},
		"cavity": {Label: "No Cavity", Confidence: 12.0},
		"cancer": {Label: "Cancerous", Confidence: 91.0},
	}
	require.NoError(t, s.Add(ctx, Record{
		RequestID:  "a",
		CreatedAt:  base,
		DurationMs: 41.5,
		Status:     StatusOK,
		Results:    results,
	}))
	require.NoError(t, s.Add(ctx, Record{
		RequestID: "b",
		CreatedAt: base.Add(time.Second),
		Status:    "decode",
		Error:     "decode image: empty image payload",
	}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "b", got[0].RequestID)
	assert.Equal(t, "decode", got[0].Status)
	assert.Equal(t, "decode image: empty image payload", got[0].Error)
	assert.Empty(t, got[0].Results)

	assert.Equal(t, "a", got[1].RequestID)
	assert.Equal(t, results, got[1].Results)
	assert.Equal(t, 41.5, got[1].DurationMs)
	assert.True(t, base.Equal(got[1].CreatedAt), "created_at round-trips: %v", got[1].CreatedAt)
}

func TestStoreRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"1", "2", "3", "4"} {
		require.NoError(t, s.Add(ctx, Record{RequestID: id, CreatedAt: now, Status: StatusOK}))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].RequestID, "ties fall back to insertion order")
	assert.Equal(t, "3", got[1].RequestID)
}

func TestStoreDuplicateRequestID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, Record{RequestID: "x", CreatedAt: time.Now(), Status: StatusOK}))
	assert.Error(t, s.Add(ctx, Record{RequestID: "x", CreatedAt: time.Now(), Status: StatusOK}))
}
