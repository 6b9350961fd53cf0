package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
)

// LogWriter persists a batch of log records.
type LogWriter interface {
	WriteLogs(ctx context.Context, batch []models.SystemLog) error
}

// GormWriter stores batches in system_logs.
type GormWriter struct{ DB *gorm.DB }

func (w GormWriter) WriteLogs(ctx context.Context, batch []models.SystemLog) error {
	return w.DB.WithContext(ctx).CreateInBatches(batch, defaultBatchSize).Error
}

type DBHandlerOptions struct {
	MinLevel      slog.Leveler
	BatchSize     int
	FlushInterval time.Duration
}

// dbSink is the buffer shared by a DBHandler and its WithAttrs children.
type dbSink struct {
	writer    LogWriter
	batchSize int

	mu     sync.Mutex
	buffer []models.SystemLog

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// DBHandler is an slog.Handler that batches records at or above MinLevel
// into the database.
type DBHandler struct {
	sink     *dbSink
	minLevel slog.Leveler
	attrs    []slog.Attr
}

// NewDBHandler starts the flush loop. Zero options mean ERROR level, batches
// of 50 and a 5s interval.
func NewDBHandler(w LogWriter, opts DBHandlerOptions) *DBHandler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.MinLevel == nil {
		opts.MinLevel = slog.LevelError
	}
	s := &dbSink{
		writer:    w,
		batchSize: opts.BatchSize,
		buffer:    make([]models.SystemLog, 0, opts.BatchSize),
		ticker:    time.NewTicker(opts.FlushInterval),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go s.flushLoop()
	return &DBHandler{sink: s, minLevel: opts.MinLevel}
}

func (s *dbSink) flushLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *dbSink) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buffer
	s.buffer = make([]models.SystemLog, 0, s.batchSize)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteLogs(ctx, batch); err != nil {
		slog.Warn("failed to flush system logs", "error", err, "count", len(batch))
	}
}

// Stop flushes what is buffered and waits for the loop to exit.
func (h *DBHandler) Stop() {
	h.sink.stopOnce.Do(func() {
		h.sink.ticker.Stop()
		close(h.sink.done)
	})
	<-h.sink.stopped
}

func (h *DBHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel.Level()
}

func (h *DBHandler) Handle(_ context.Context, record slog.Record) error {
	entry := models.SystemLog{
		ID:        uuid.New(),
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}

	extra := make(map[string]interface{})
	apply := func(a slog.Attr) bool {
		switch a.Key {
		case "request_id", "requestid":
			entry.RequestID = a.Value.String()
		case "user_id":
			s := a.Value.String()
			entry.UserID = &s
		case "action":
			entry.Action = a.Value.String()
		case "module":
			entry.Module = a.Value.String()
		case "error":
			entry.Error = a.Value.String()
		case "latency_ms":
			switch a.Value.Kind() {
			case slog.KindFloat64:
				entry.LatencyMs = int(math.Round(a.Value.Float64()))
			case slog.KindInt64:
				entry.LatencyMs = int(a.Value.Int64())
			}
		default:
			extra[a.Key] = a.Value.Resolve().Any()
		}
		return true
	}
	for _, a := range h.attrs {
		apply(a)
	}
	record.Attrs(apply)

	if len(extra) > 0 {
		if b, err := json.Marshal(extra); err == nil {
			entry.Extra = datatypes.JSON(b)
		}
	}

	s := h.sink
	s.mu.Lock()
	s.buffer = append(s.buffer, entry)
	needFlush := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if needFlush {
		go s.flush()
	}
	return nil
}

func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &DBHandler{sink: h.sink, minLevel: h.minLevel, attrs: merged}
}

// WithGroup is ignored; system_logs has no nesting.
func (h *DBHandler) WithGroup(string) slog.Handler {
	return h
}
