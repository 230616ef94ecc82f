package status

import (
	"log/slog"

	"galleria/internal/engine"
	"galleria/internal/logging"
)

// Log writes throttled progress lines to a logger.
type Log struct {
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	titled  bool
}

// NewLog returns a log renderer.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Log{
		logger:  logging.NewComponentLogger(logger, "status"),
		sampler: logging.NewProgressSampler(10),
	}
}

// Render logs tasks that crossed a progress bucket since the last call.
func (l *Log) Render(snap Snapshot) error {
	if !l.titled {
		l.logger.Info("downloading gallery",
			logging.String("title", snap.Title),
			logging.Int("tasks", len(snap.Rows)),
			logging.String("endpoint", snap.Endpoint),
		)
		l.titled = true
	}
	for _, r := range snap.Rows {
		if r.Status != engine.StatusActive {
			continue
		}
		if !l.sampler.ShouldLog(r.JobID, r.Percent()) {
			continue
		}
		attrs := []logging.Attr{
			logging.Int(logging.FieldTaskIndex, r.Index),
			logging.String(logging.FieldJobID, r.JobID),
			logging.String("file", r.FileName),
			logging.Float64("percent", r.Percent()),
			logging.String("speed", formatSpeed(r.Speed)),
			logging.String("eta", formatETA(r)),
		}
		if r.Retries > 0 {
			attrs = append(attrs, logging.Int("stall_retries", r.Retries))
		}
		l.logger.Info("task progress", logging.Args(attrs...)...)
	}
	return nil
}

// Finish logs the final totals and resets the sampler.
func (l *Log) Finish(snap Snapshot) error {
	l.logger.Info("gallery transfer finished",
		logging.String("title", snap.Title),
		logging.Int("tasks", len(snap.Rows)),
	)
	l.sampler.Reset()
	l.titled = false
	return nil
}
