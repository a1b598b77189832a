package sessions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// Sink receives reports of soft failures: operations whose errors are
// deliberately swallowed at the caller boundary (best-effort presence
// tracking must never fail a request). Modeling the side channel
// explicitly lets tests assert a failure happened without scraping logs.
type Sink interface {
	Report(ctx context.Context, op string, err error)
}

type logSink struct {
	log *slog.Logger
}

// NewLogSink returns a Sink that logs every report at warn level.
func NewLogSink(log *slog.Logger) Sink {
	if log == nil {
		log = slog.Default()
	}
	return &logSink{log: log}
}

func (s *logSink) Report(ctx context.Context, op string, err error) {
	s.log.LogAttrs(ctx, slog.LevelWarn, "soft failure swallowed",
		slog.String("op", op),
		logger.Error(err),
	)
}

// RecorderSink collects reports for inspection. Intended for tests.
type RecorderSink struct {
	mu      sync.Mutex
	reports []SinkReport
}

// SinkReport is one recorded soft failure.
type SinkReport struct {
	Op  string
	Err error
}

// NewRecorderSink returns an empty RecorderSink.
func NewRecorderSink() *RecorderSink {
	return &RecorderSink{}
}

func (r *RecorderSink) Report(ctx context.Context, op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, SinkReport{Op: op, Err: err})
}

// Reports returns a copy of everything reported so far.
func (r *RecorderSink) Reports() []SinkReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SinkReport, len(r.reports))
	copy(out, r.reports)
	return out
}
