package logging

import (
	"context"
	"log/slog"

	"galleria/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldGalleryID is the standardized key for gallery request identifiers.
	FieldGalleryID = "gallery_id"
	// FieldJobID is the standardized key for download engine job identifiers (gid).
	FieldJobID = "job_id"
	// FieldTaskIndex is the 1-based position of a task within its gallery.
	FieldTaskIndex = "task_index"
	// FieldRunID identifies one process invocation.
	FieldRunID = "run_id"
	// FieldState is the orchestrator state the line was emitted from.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.GalleryIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldGalleryID, id))
	}
	if state, ok := services.StateFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldState, state))
	}
	if rid, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
