package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"galleria/internal/engine"
	"galleria/internal/fileutil"
	"galleria/internal/logging"
	"galleria/internal/queue"
	"galleria/internal/stall"
	"galleria/internal/textutil"
)

// SnapshotFileName is the task snapshot written inside a gallery workspace.
const SnapshotFileName = "tasks.json"

// SnapshotPath returns the snapshot location for a workspace.
func SnapshotPath(workspace string) string {
	return filepath.Join(workspace, SnapshotFileName)
}

// Engine is the subset of the engine supervisor the registry drives.
type Engine interface {
	Submit(ctx context.Context, job engine.Job) (string, error)
	ChangeJobOption(ctx context.Context, gid, proxy string) error
}

// ProxyPolicy returns the proxy to use for rawURL, or "" for a direct
// connection.
type ProxyPolicy func(rawURL string) string

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStallOptions configures the detector attached to each task.
func WithStallOptions(opts stall.Options) Option {
	return func(r *Registry) { r.stallOpts = opts }
}

// Registry tracks the tasks of the current gallery.
type Registry struct {
	engine    Engine
	policy    ProxyPolicy
	stallOpts stall.Options
	logger    *slog.Logger

	mu       sync.RWMutex
	byJob    map[string]*Task
	ordered  []*Task
	snapshot string
}

// NewRegistry returns an empty registry. A nil policy sends everything direct.
func NewRegistry(eng Engine, policy ProxyPolicy, opts ...Option) *Registry {
	if policy == nil {
		policy = func(string) string { return "" }
	}
	r := &Registry{
		engine:    eng,
		policy:    policy,
		stallOpts: stall.DefaultOptions(),
		logger:    logging.NewNop(),
		byJob:     make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "tasks")
	return r
}

// CreateFresh submits every item in gallery order and writes the snapshot.
func (r *Registry) CreateFresh(ctx context.Context, items []queue.Item, workspace, referer string) error {
	created := make([]*Task, 0, len(items))
	for i, item := range items {
		name := textutil.SanitizeFileName(item.Name)
		proxy := r.policy(item.URL)
		gid, err := r.engine.Submit(ctx, engine.Job{
			URL:      item.URL,
			Dir:      workspace,
			FileName: name,
			Referer:  referer,
			Proxy:    proxy,
		})
		if err != nil {
			return fmt.Errorf("submit %s: %w", item.Name, err)
		}
		task := r.newTask(record{
			JobID:        gid,
			Index:        i + 1,
			FileName:     name,
			URL:          item.URL,
			ProxyEnabled: proxy != "",
		})
		created = append(created, task)
		r.logger.Debug("task submitted",
			logging.String(logging.FieldJobID, gid),
			logging.Int(logging.FieldTaskIndex, task.Index),
			logging.String("file", name),
			logging.Bool("proxy", task.ProxyEnabled),
		)
	}

	r.replace(created, SnapshotPath(workspace))
	return r.Save()
}

// Restore loads the snapshot of workspace and re-applies the current proxy
// policy to tasks recorded under a different one.
func (r *Registry) Restore(ctx context.Context, workspace string) error {
	path := SnapshotPath(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrSnapshotMissing
		}
		return fmt.Errorf("read task snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode task snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("task snapshot %s: unsupported version %d", path, snap.Version)
	}

	restored := make([]*Task, 0, len(snap.Tasks))
	changed := false
	for _, rec := range snap.Tasks {
		task := r.newTask(rec)
		proxy := r.policy(rec.URL)
		if want := proxy != ""; want != rec.ProxyEnabled {
			if err := r.engine.ChangeJobOption(ctx, rec.JobID, proxy); err != nil {
				var rpcErr *engine.RPCError
				if !errors.As(err, &rpcErr) {
					return fmt.Errorf("apply proxy policy to job %s: %w", rec.JobID, err)
				}
				// Finished jobs are not in the session and are unknown to the engine.
				r.logger.Debug("job not resumed by engine; proxy policy not applied",
					logging.String(logging.FieldJobID, rec.JobID),
					logging.Error(err),
				)
				restored = append(restored, task)
				continue
			}
			task.ProxyEnabled = want
			changed = true
			r.logger.Info("proxy policy changed for resumed task",
				logging.String(logging.FieldJobID, rec.JobID),
				logging.Int(logging.FieldTaskIndex, rec.Index),
				logging.Bool("proxy", want),
			)
		}
		restored = append(restored, task)
	}
	slices.SortFunc(restored, func(a, b *Task) int { return a.Index - b.Index })

	r.replace(restored, path)
	if changed {
		return r.Save()
	}
	return nil
}

// Save rewrites the snapshot.
func (r *Registry) Save() error {
	r.mu.RLock()
	path := r.snapshot
	snap := snapshot{Version: snapshotVersion, Tasks: make([]record, 0, len(r.ordered))}
	for _, task := range r.ordered {
		snap.Tasks = append(snap.Tasks, record{
			JobID:        task.JobID,
			Index:        task.Index,
			FileName:     task.FileName,
			URL:          task.URL,
			ProxyEnabled: task.ProxyEnabled,
			Retries:      task.Retries(),
		})
	}
	r.mu.RUnlock()

	if path == "" {
		return errors.New("task snapshot path not set")
	}
	if err := fileutil.WriteJSONAtomic(path, snap); err != nil {
		return fmt.Errorf("write task snapshot: %w", err)
	}
	return nil
}

// Lookup returns the task for a job id.
func (r *Registry) Lookup(jobID string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.byJob[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return task, nil
}

// Tasks returns the tasks ordered by index.
func (r *Registry) Tasks() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ordered)
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// RemoveSnapshot deletes the snapshot file once the gallery is finished.
func (r *Registry) RemoveSnapshot() error {
	r.mu.RLock()
	path := r.snapshot
	r.mu.RUnlock()
	if path == "" {
		return nil
	}
	return fileutil.RemoveIfExists(path)
}

func (r *Registry) newTask(rec record) *Task {
	task := &Task{
		JobID:        rec.JobID,
		Index:        rec.Index,
		FileName:     rec.FileName,
		URL:          rec.URL,
		ProxyEnabled: rec.ProxyEnabled,
		detector:     stall.New(r.stallOpts),
	}
	task.retries.Store(int32(rec.Retries))
	return task
}

func (r *Registry) replace(tasks []*Task, snapshotPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ordered = tasks
	r.byJob = make(map[string]*Task, len(tasks))
	for _, task := range tasks {
		r.byJob[task.JobID] = task
	}
	r.snapshot = snapshotPath
}
