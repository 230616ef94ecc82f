package services

import "context"

type contextKey string

const (
	galleryIDKey contextKey = "gallery_id"
	stateKey     contextKey = "state"
	runIDKey     contextKey = "run_id"
)

// WithGalleryID annotates context with the gallery request identifier.
func WithGalleryID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, galleryIDKey, id)
}

// GalleryIDFromContext extracts the gallery request identifier if present.
func GalleryIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(galleryIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithState annotates context with the orchestrator state name.
func WithState(ctx context.Context, state string) context.Context {
	if state == "" {
		return ctx
	}
	return context.WithValue(ctx, stateKey, state)
}

// StateFromContext returns the state name if present.
func StateFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stateKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the process run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
