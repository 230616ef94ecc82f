package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"galleria/internal/config"
)

const (
	runLogPrefix   = "galleria-"
	runLogPattern  = "galleria-*.log"
	runLogPointer  = "galleria.log"
	defaultLogMode = 0o644
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	writer, err := openWriters(
		defaultSlice(opts.OutputPaths, []string{"stdout"}),
		opts.ErrorOutputPaths,
	)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "json":
		handler = newJSONHandler(writer, levelVar, addSource)
	case "console", "":
		handler = newPrettyHandler(writer, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	return slog.New(handler), nil
}

// RunLog identifies the per-run log file opened by NewFromConfig.
type RunLog struct {
	Path    string
	Pointer string
}

// NewFromConfig creates the run logger. Every run writes to its own
// galleria-<runID>.log in the log directory and refreshes the galleria.log
// pointer. When console is false the terminal is left to the status view and
// records go to the run file only.
func NewFromConfig(cfg *config.Config, runID string, console bool) (*slog.Logger, RunLog, error) {
	if cfg == nil {
		logger, err := New(Options{Level: "info", Format: "console"})
		return logger, RunLog{}, err
	}

	var outputs []string
	if console {
		outputs = append(outputs, "stdout")
	}

	var run RunLog
	if cfg.Paths.LogDir != "" && runID != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, RunLog{}, fmt.Errorf("ensure log directory: %w", err)
		}
		run.Path = filepath.Join(cfg.Paths.LogDir, runLogPrefix+runID+".log")
		run.Pointer = filepath.Join(cfg.Paths.LogDir, runLogPointer)
		outputs = append(outputs, run.Path)
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	logger, err := New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
	if err != nil {
		return nil, RunLog{}, err
	}

	if run.Pointer != "" {
		if err := updatePointer(run.Pointer, run.Path); err != nil {
			WarnWithContext(logger, "log pointer not updated", "log_pointer_failed",
				String("pointer", run.Pointer),
				Error(err),
				String(FieldImpact, "galleria.log may point at an older run"),
			)
		}
	}
	return logger, run, nil
}

// RetentionTargets returns the run-log cleanup target for cfg, excluding the
// active run file.
func RetentionTargets(cfg *config.Config, run RunLog) []RetentionTarget {
	if cfg == nil || cfg.Paths.LogDir == "" {
		return nil
	}
	target := RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: runLogPattern}
	if run.Path != "" {
		target.Exclude = []string{run.Path}
	}
	return []RetentionTarget{
		target,
		{Dir: cfg.EngineLogDir(), Pattern: "*-aria2c.log"},
	}
}

func updatePointer(pointer, target string) error {
	if err := os.Remove(pointer); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Symlink(filepath.Base(target), pointer)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), value...)
}

func openWriters(outputPaths []string, errorPaths []string) (io.Writer, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer
	combined := append(append([]string{}, outputPaths...), errorPaths...)

	for _, path := range combined {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create log directory %s: %w", dir, err)
				}
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultLogMode)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
