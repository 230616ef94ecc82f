package runloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"galleria/internal/engine"
	"galleria/internal/logging"
	"galleria/internal/services"
	"galleria/internal/stall"
	"galleria/internal/status"
	"galleria/internal/tasks"
)

// Engine is the engine surface polled by the loop.
type Engine interface {
	ListActiveJobs(ctx context.Context) ([]engine.JobStatus, error)
	GlobalStats(ctx context.Context) (engine.GlobalStat, error)
	PauseJob(ctx context.Context, gid string) error
	ResumeJob(ctx context.Context, gid string) error
	Done() <-chan struct{}
	ExitErr() error
}

// TaskSource resolves engine jobs to tasks.
type TaskSource interface {
	Lookup(jobID string) (*tasks.Task, error)
	Tasks() []*tasks.Task
}

// Options configures a Loop.
type Options struct {
	StatusInterval time.Duration
	SampleInterval time.Duration
	// StallThreshold is the average speed in bytes per second below which a
	// full window counts as stalled.
	StallThreshold float64
	Title          string
	Endpoint       string
	// Clock stamps samples; defaults to time.Now.
	Clock func() time.Time
}

// Loop runs one gallery to completion.
type Loop struct {
	engine   Engine
	tasks    TaskSource
	renderer status.Renderer
	opts     Options
	logger   *slog.Logger

	lastSeen   map[string]engine.JobStatus
	stalls     atomic.Int64
	failures   int
	reconnects sync.WaitGroup
}

// New builds a loop. A nil renderer discards status output.
func New(eng Engine, source TaskSource, renderer status.Renderer, opts Options, logger *slog.Logger) *Loop {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = stall.DefaultOptions().Interval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if renderer == nil {
		renderer = status.NewLog(logging.NewNop())
	}
	return &Loop{
		engine:   eng,
		tasks:    source,
		renderer: renderer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "runloop"),
		lastSeen: make(map[string]engine.JobStatus),
	}
}

// Stalls is the number of stall reconnects issued so far.
func (l *Loop) Stalls() int { return int(l.stalls.Load()) }

// Run blocks until the engine reports no pending jobs, the engine exits, or
// ctx is cancelled. Both tickers are stopped when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var completed atomic.Bool
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		ticker := time.NewTicker(l.opts.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-l.engine.Done():
				return l.exited()
			case <-ticker.C:
				done, err := l.statusTick(gctx)
				if err != nil {
					return err
				}
				if done {
					completed.Store(true)
					cancel()
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(l.opts.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-l.engine.Done():
				return l.exited()
			case <-ticker.C:
				if err := l.sampleTick(gctx); err != nil {
					return err
				}
			}
		}
	})

	err := g.Wait()
	l.reconnects.Wait()
	if err != nil {
		return err
	}
	if completed.Load() {
		return nil
	}
	return ctx.Err()
}

func (l *Loop) exited() error {
	return services.Wrap(services.ErrExternalTool, "running", "engine",
		"Download engine exited while transfers were pending", errors.Join(engine.ErrExited, l.engine.ExitErr()))
}

// statusTick polls the engine, renders, and reports whether every job has
// finished.
func (l *Loop) statusTick(ctx context.Context) (bool, error) {
	stat, err := l.engine.GlobalStats(ctx)
	if err != nil {
		return false, l.transient(ctx, "global stats", err)
	}
	active, err := l.engine.ListActiveJobs(ctx)
	if err != nil {
		return false, l.transient(ctx, "list active jobs", err)
	}
	l.failures = 0

	for _, job := range active {
		l.lastSeen[job.GID] = job
	}
	snap := l.snapshot(stat, active)
	if stat.Pending() == 0 {
		if err := l.renderer.Finish(snap); err != nil {
			l.logger.Debug("status render failed", logging.Error(err))
		}
		return true, nil
	}
	if err := l.renderer.Render(snap); err != nil {
		l.logger.Debug("status render failed", logging.Error(err))
	}
	return false, nil
}

func (l *Loop) snapshot(stat engine.GlobalStat, active []engine.JobStatus) status.Snapshot {
	activeByID := make(map[string]engine.JobStatus, len(active))
	for _, job := range active {
		activeByID[job.GID] = job
	}
	all := l.tasks.Tasks()
	rows := make([]status.Row, 0, len(all))
	for _, task := range all {
		row := status.Row{
			Index:    task.Index,
			Total:    len(all),
			JobID:    task.JobID,
			FileName: task.FileName,
			Proxy:    task.ProxyEnabled,
			Retries:  task.Retries(),
			Length:   -1,
		}
		job, ok := activeByID[task.JobID]
		if !ok {
			job, ok = l.lastSeen[task.JobID]
			job.DownloadSpeed = 0
			job.Status = engine.StatusWaiting
			if ok && job.TotalLength > 0 && job.CompletedLength >= job.TotalLength {
				job.Status = engine.StatusComplete
			}
		}
		row.Status = job.Status
		row.Speed = job.DownloadSpeed
		if ok {
			row.Completed = job.CompletedLength
			row.Length = job.TotalLength
		}
		rows = append(rows, row)
	}
	return status.Snapshot{
		Title:    l.opts.Title,
		Endpoint: l.opts.Endpoint,
		Global:   stat,
		Rows:     rows,
	}
}

// sampleTick feeds detectors and starts a reconnect for each stalled task.
// Run waits for reconnects before returning.
func (l *Loop) sampleTick(ctx context.Context) error {
	active, err := l.engine.ListActiveJobs(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrExited) {
			return l.exited()
		}
		l.logger.Debug("sample poll failed", logging.Error(err))
		return nil
	}
	now := l.opts.Clock()
	for _, job := range active {
		task, err := l.tasks.Lookup(job.GID)
		if err != nil {
			if errors.Is(err, tasks.ErrUnknownJob) {
				continue
			}
			return err
		}
		detector := task.Detector()
		detector.Add(stall.Sample{Time: now, Speed: job.DownloadSpeed, Completed: job.CompletedLength})
		avg, stalled := detector.Trip(l.opts.StallThreshold)
		if !stalled {
			continue
		}
		l.reconnects.Add(1)
		go func() {
			defer l.reconnects.Done()
			defer detector.Settle()
			if err := l.reconnect(ctx, task, avg); err != nil {
				logging.WarnWithContext(l.logger, "stall reconnect failed", "stall_reconnect_failed",
					logging.String(logging.FieldJobID, task.JobID),
					logging.Int(logging.FieldTaskIndex, task.Index),
					logging.Error(err),
					logging.String(logging.FieldImpact, "the transfer stays slow until the next window"),
					logging.String(logging.FieldErrorHint, "check network connectivity or the proxy"),
				)
			}
		}()
	}
	return nil
}

// resumeTimeout bounds the unpause sent after a pause, which runs even when
// the loop is shutting down.
const resumeTimeout = 5 * time.Second

// reconnect pauses and resumes one job off the sampling goroutine. Resume is
// sent even when the pause fails: a paused job is not listed as active and
// would stay pending.
func (l *Loop) reconnect(ctx context.Context, task *tasks.Task, avg float64) error {
	pauseErr := l.engine.PauseJob(ctx, task.JobID)

	resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resumeTimeout)
	defer cancel()
	resumeErr := l.engine.ResumeJob(resumeCtx, task.JobID)

	if pauseErr != nil || resumeErr != nil {
		var errs []error
		if pauseErr != nil {
			errs = append(errs, fmt.Errorf("pause: %w", pauseErr))
		}
		if resumeErr != nil {
			errs = append(errs, fmt.Errorf("resume: %w", resumeErr))
		}
		return errors.Join(errs...)
	}
	retries := task.AddRetry()
	l.stalls.Add(1)
	l.logger.Info("stalled transfer reconnected",
		logging.String(logging.FieldJobID, task.JobID),
		logging.Int(logging.FieldTaskIndex, task.Index),
		logging.String("file", task.FileName),
		logging.Float64("average_bps", avg),
		logging.Int("retries", retries),
	)
	return nil
}

const maxConsecutiveFailures = 10

// transient logs a failed status poll. The run aborts once the engine is gone
// or polls keep failing.
func (l *Loop) transient(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, engine.ErrExited) {
		return l.exited()
	}
	l.failures++
	if l.failures >= maxConsecutiveFailures {
		return services.Wrap(services.ErrExternalTool, "running", op,
			fmt.Sprintf("Engine failed %d consecutive status polls", l.failures), errors.Join(engine.ErrUnreachable, err))
	}
	logging.WarnWithContext(l.logger, "engine poll failed", "engine_poll_failed",
		logging.String("operation", op),
		logging.Int("consecutive_failures", l.failures),
		logging.Error(err),
		logging.String(logging.FieldImpact, "progress display is stale"),
		logging.String(logging.FieldErrorHint, "retrying on the next tick"),
	)
	return nil
}
