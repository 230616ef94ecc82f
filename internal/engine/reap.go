package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"galleria/internal/logging"
)

// Reaper terminates engine processes left running by a previous orchestrator
// for the same session file and reports how many it stopped.
type Reaper func(ctx context.Context, binary, sessionPath string) (int, error)

const reapPollInterval = 100 * time.Millisecond

// ProcessReaper scans the process table for engines whose command line saves
// to sessionPath.
func ProcessReaper(timeout time.Duration, logger *slog.Logger) Reaper {
	return func(ctx context.Context, binary, sessionPath string) (int, error) {
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("list processes: %w", err)
		}
		marker := "--save-session=" + sessionPath
		self := int32(os.Getpid())
		reaped := 0
		for _, p := range procs {
			if p.Pid == self {
				continue
			}
			args, err := p.CmdlineSliceWithContext(ctx)
			if err != nil || len(args) == 0 {
				continue
			}
			if filepath.Base(args[0]) != filepath.Base(binary) || !slices.Contains(args, marker) {
				continue
			}
			logging.WarnWithContext(logger, "orphaned engine found; terminating", "engine_orphan_reaped",
				logging.Int("pid", int(p.Pid)),
				logging.String("session", sessionPath),
				logging.String(logging.FieldImpact, "a previous run did not shut its engine down"),
				logging.String(logging.FieldErrorHint, "no action needed; the session will be resumed"),
			)
			if err := terminateAndWait(ctx, p, timeout); err != nil {
				return reaped, fmt.Errorf("terminate orphan %d: %w", p.Pid, err)
			}
			reaped++
		}
		return reaped, nil
	}
}

func terminateAndWait(ctx context.Context, p *process.Process, timeout time.Duration) error {
	if err := p.TerminateWithContext(ctx); err != nil {
		if running, _ := p.IsRunningWithContext(ctx); !running {
			return nil
		}
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reapPollInterval):
		}
	}
	return p.KillWithContext(ctx)
}
