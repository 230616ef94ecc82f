package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"galleria/internal/engine"
	"galleria/internal/fileutil"
	"galleria/internal/history"
	"galleria/internal/logging"
	"galleria/internal/notifications"
	"galleria/internal/queue"
	"galleria/internal/runloop"
	"galleria/internal/services"
	"galleria/internal/stall"
	"galleria/internal/tasks"
	"galleria/internal/textutil"
)

// SessionFileName is the engine session kept inside a gallery workspace.
const SessionFileName = "aria2.session"

// galleryRun is the state of the gallery being processed.
type galleryRun struct {
	request     queue.GalleryRequest
	workspace   string
	sessionPath string
	resumed     bool
	startedAt   time.Time

	engine   Engine
	registry *tasks.Registry
	loop     *runloop.Loop
}

// Workspace returns the directory a gallery is downloaded into.
func Workspace(outputDir string, req queue.GalleryRequest) string {
	return filepath.Join(outputDir, textutil.SanitizeFileName(req.Title))
}

func (o *Orchestrator) processGallery(ctx context.Context, req queue.GalleryRequest) (err error) {
	ctx = services.WithGalleryID(ctx, req.ID)
	run := &galleryRun{request: req, startedAt: o.now()}

	o.setState(ctx, StateLoadingGallery)
	if err := o.queue.Load(ctx); err != nil {
		return err
	}
	unsubscribe := o.queue.Subscribe(o.onQueueChange)
	watching := true
	stopWatch := func() {
		if !watching {
			return
		}
		watching = false
		unsubscribe()
		if err := o.queue.Close(); err != nil {
			o.logger.Debug("waiting list watch close failed", logging.Error(err))
		}
	}
	defer stopWatch()

	if err := o.prepare(ctx, run); err != nil {
		return err
	}
	defer func() {
		if stopErr := run.engine.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	if err := o.populate(ctx, run); err != nil {
		return err
	}

	o.setState(ctx, StateRunning)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("gallery started",
		logging.String("title", req.Title),
		logging.Int("tasks", run.registry.Len()),
		logging.Bool("resumed", run.resumed),
		logging.String("workspace", run.workspace),
		logging.String(logging.FieldEventType, "gallery_started"),
	)
	o.notify(ctx, notifications.EventGalleryStarted, notifications.Payload{"title": req.Title})

	run.loop = runloop.New(run.engine, run.registry, o.renderer, runloop.Options{
		StatusInterval: o.cfg.Monitor.StatusInterval(),
		SampleInterval: o.cfg.Monitor.SampleInterval(),
		StallThreshold: o.cfg.Monitor.StallThreshold(),
		Title:          req.Title,
		Endpoint:       run.engine.Endpoint(),
		Clock:          o.now,
	}, logger)
	if err := run.loop.Run(ctx); err != nil {
		return wrapFatal(StateRunning, "transfer", "Gallery did not finish", err)
	}

	stopWatch()
	return o.finalize(ctx, run)
}

// prepare creates the workspace, settles leftover resume state, and starts
// the engine.
func (o *Orchestrator) prepare(ctx context.Context, run *galleryRun) error {
	o.setState(ctx, StatePreparing)
	run.workspace = Workspace(o.cfg.Paths.OutputDir, run.request)
	run.sessionPath = filepath.Join(run.workspace, SessionFileName)
	if err := os.MkdirAll(run.workspace, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, string(StatePreparing), "workspace", "Failed to create gallery directory", err)
	}

	hasSession, err := fileutil.Exists(run.sessionPath)
	if err != nil {
		return err
	}
	hasSnapshot, err := fileutil.Exists(tasks.SnapshotPath(run.workspace))
	if err != nil {
		return err
	}
	switch {
	case hasSession && !hasSnapshot:
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "session without task snapshot; starting over", "session_discarded",
			logging.String("session", run.sessionPath),
			logging.String(logging.FieldImpact, "partially downloaded files are fetched again"),
			logging.String(logging.FieldErrorHint, "no action needed"),
		)
		if err := fileutil.RemoveIfExists(run.sessionPath); err != nil {
			return err
		}
	case hasSnapshot && !hasSession:
		if err := fileutil.RemoveIfExists(tasks.SnapshotPath(run.workspace)); err != nil {
			return err
		}
	case hasSession && hasSnapshot:
		run.resumed = true
	}

	run.engine = o.newEngine()
	if err := run.engine.Start(ctx, run.sessionPath); err != nil {
		return wrapFatal(StatePreparing, "engine", "Failed to start download engine", err)
	}
	return nil
}

// populate builds the task registry, resuming when possible.
func (o *Orchestrator) populate(ctx context.Context, run *galleryRun) error {
	o.setState(ctx, StatePopulatingTasks)
	run.registry = tasks.NewRegistry(run.engine, o.proxyPolicy,
		tasks.WithLogger(logging.WithContext(ctx, o.logger)),
		tasks.WithStallOptions(stall.Options{
			Window:   o.cfg.Monitor.Window(),
			MaxGap:   o.cfg.Monitor.MaxGap(),
			Interval: o.cfg.Monitor.SampleInterval(),
		}),
	)
	if run.resumed {
		err := run.registry.Restore(ctx, run.workspace)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tasks.ErrSnapshotMissing) {
			return wrapFatal(StatePopulatingTasks, "restore", "Failed to restore tasks", err)
		}
		run.resumed = false
	}
	if err := run.registry.CreateFresh(ctx, run.request.Items, run.workspace, run.request.Referer()); err != nil {
		return wrapFatal(StatePopulatingTasks, "submit", "Failed to submit transfers", err)
	}
	return nil
}

// finalize stops the engine, removes resume state, records the gallery, and
// drops it from the waiting list.
func (o *Orchestrator) finalize(ctx context.Context, run *galleryRun) error {
	o.setState(ctx, StateFinalizing)
	logger := logging.WithContext(ctx, o.logger)

	failed := 0
	if stopped, err := run.engine.StoppedJobs(ctx); err != nil {
		logger.Debug("stopped jobs unavailable", logging.Error(err))
	} else {
		for _, job := range stopped {
			if job.Status != engine.StatusError {
				continue
			}
			failed++
			attrs := []logging.Attr{
				logging.String(logging.FieldJobID, job.GID),
				logging.String("error_code", job.ErrorCode),
				logging.String("error_message", job.ErrorMessage),
				logging.String(logging.FieldImpact, "file missing from the gallery"),
				logging.String(logging.FieldErrorHint, "re-add the gallery URL to retry"),
			}
			if task, err := run.registry.Lookup(job.GID); err == nil {
				attrs = append(attrs, logging.Int(logging.FieldTaskIndex, task.Index), logging.String("file", task.FileName))
			}
			logging.WarnWithContext(logger, "transfer failed", "transfer_failed", attrs...)
		}
	}

	if err := run.engine.Stop(ctx); err != nil {
		return err
	}
	if err := run.registry.RemoveSnapshot(); err != nil {
		return fmt.Errorf("remove task snapshot: %w", err)
	}
	if err := fileutil.RemoveIfExists(run.sessionPath); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}

	finished := o.now()
	stalls := 0
	if run.loop != nil {
		stalls = run.loop.Stalls()
	}
	if o.history != nil {
		_, err := o.history.Record(ctx, history.Entry{
			RequestID:    run.request.ID,
			Adapter:      run.request.Adapter,
			Title:        run.request.Title,
			SourceURL:    run.request.SourceURL,
			Workspace:    run.workspace,
			Items:        run.registry.Len(),
			Failed:       failed,
			StallRetries: stalls,
			Resumed:      run.resumed,
			StartedAt:    run.startedAt,
			FinishedAt:   finished,
		})
		if err != nil {
			logging.WarnWithContext(logger, "history record failed", "history_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "gallery missing from galleria history"),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			)
		}
	}

	if err := o.queue.Remove(run.request.ID); err != nil {
		return wrapFatal(StateFinalizing, "dequeue", "Finished gallery vanished from the waiting list", err)
	}

	logger.Info("gallery completed",
		logging.String("title", run.request.Title),
		logging.Int("tasks", run.registry.Len()),
		logging.Int("failed", failed),
		logging.Int("stall_retries", stalls),
		logging.Duration("elapsed", finished.Sub(run.startedAt)),
		logging.String(logging.FieldEventType, "gallery_completed"),
	)
	o.notify(ctx, notifications.EventGalleryCompleted, notifications.Payload{
		"title":    run.request.Title,
		"items":    run.registry.Len(),
		"failed":   failed,
		"duration": finished.Sub(run.startedAt),
	})
	return nil
}

func (o *Orchestrator) onQueueChange(err error) {
	if err != nil {
		logging.WarnWithContext(o.logger, "waiting list reload failed", "queue_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "external edits are ignored until the file is valid"),
			logging.String(logging.FieldErrorHint, "fix or delete the waiting list file"),
		)
		return
	}
	o.logger.Debug("waiting list changed on disk", logging.Int("entries", o.queue.Len()))
}
