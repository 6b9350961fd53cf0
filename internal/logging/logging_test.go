package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	mu      sync.Mutex
	batches [][]models.SystemLog
}

func (w *memoryWriter) WriteLogs(_ context.Context, batch []models.SystemLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, batch)
	return nil
}

func (w *memoryWriter) all() []models.SystemLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.SystemLog
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestDBHandlerFiltersAndMapsAttrs(t *testing.T) {
	w := &memoryWriter{}
	h := NewDBHandler(w, DBHandlerOptions{FlushInterval: time.Hour})
	logger := slog.New(h).With("request_id", "req-1")

	logger.Info("ignored")
	logger.Error("boom",
		"user_id", "u-1",
		"action", "login",
		"error", errors.New("bad"),
		"latency_ms", 12.6,
		"module", "profiles",
		"path", "/api/auth/login",
	)
	h.Stop()

	logs := w.all()
	require.Len(t, logs, 1)
	got := logs[0]
	assert.Equal(t, "ERROR", got.Level)
	assert.Equal(t, "boom", got.Message)
	assert.Equal(t, "req-1", got.RequestID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "u-1", *got.UserID)
	assert.Equal(t, "login", got.Action)
	assert.Equal(t, "bad", got.Error)
	assert.Equal(t, 13, got.LatencyMs)
	assert.Equal(t, "profiles", got.Module)

	var extra map[string]any
	require.NoError(t, json.Unmarshal(got.Extra, &extra))
	assert.Equal(t, "/api/auth/login", extra["path"])
}

func TestDBHandlerFlushesFullBatch(t *testing.T) {
	w := &memoryWriter{}
	h := NewDBHandler(w, DBHandlerOptions{MinLevel: slog.LevelWarn, BatchSize: 2, FlushInterval: time.Hour})
	defer h.Stop()

	logger := slog.New(h)
	logger.Warn("one")
	logger.Warn("two")

	assert.Eventually(t, func() bool { return len(w.all()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestDBHandlerStopIsIdempotent(t *testing.T) {
	h := NewDBHandler(&memoryWriter{}, DBHandlerOptions{})
	h.Stop()
	h.Stop()
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler(t *testing.T) {
	var info, errs bytes.Buffer
	infoH := slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo})
	errH := slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError})

	logger := slog.New(NewMultiHandler(infoH, errH)).With("request_id", "r")
	logger.Info("hello")
	logger.Error("bad")

	assert.Contains(t, info.String(), "hello")
	assert.Contains(t, info.String(), "bad")
	assert.NotContains(t, errs.String(), "hello")
	assert.Contains(t, errs.String(), `"request_id":"r"`)

	m := NewMultiHandler(failingHandler{infoH}, infoH)
	err := m.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	assert.Error(t, err)
}

func TestRunCleanup(t *testing.T) {
	var ran []string
	RunCleanup(context.Background(),
		CleanupTask{Name: "fails", Run: func(context.Context) (int64, error) {
			ran = append(ran, "fails")
			return 0, errors.New("db down")
		}},
		CleanupTask{Name: "ok", Run: func(context.Context) (int64, error) {
			ran = append(ran, "ok")
			return 3, nil
		}},
	)
	assert.Equal(t, []string{"fails", "ok"}, ran)
}
