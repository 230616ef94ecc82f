package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"galleria/internal/logging"
	"galleria/internal/services"
)

const (
	dialInterval  = 50 * time.Millisecond
	pauseInterval = 100 * time.Millisecond
	stoppedLimit  = 1000
)

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the process launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithReaper replaces the orphan reaper. A nil reaper disables reaping.
func WithReaper(r Reaper) Option {
	return func(s *Supervisor) {
		s.reaper = r
		s.reaperSet = true
	}
}

// WithHTTPClient sets the client used for control calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Supervisor) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Supervisor owns one engine process: it starts it on a private control
// port, relays control calls, and stops it.
type Supervisor struct {
	opts       Options
	launcher   Launcher
	reaper     Reaper
	reaperSet  bool
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.Mutex
	proc     Process
	rpc      *rpcClient
	port     int
	done     chan struct{}
	exitErr  error
	stopping bool
	stopped  bool
}

// New constructs a Supervisor. Nothing is spawned until Start.
func New(opts Options, options ...Option) *Supervisor {
	s := &Supervisor{
		opts:       opts.withDefaults(),
		launcher:   execLauncher{},
		httpClient: &http.Client{Timeout: defaultRPCTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "engine")
	if !s.reaperSet {
		s.reaper = ProcessReaper(s.opts.StopTimeout, s.logger)
	}
	return s
}

// Start spawns the engine bound to sessionPath. When the session file exists
// its unfinished jobs are resumed. Start returns once the control port
// answers.
func (s *Supervisor) Start(ctx context.Context, sessionPath string) error {
	s.mu.Lock()
	if s.proc != nil {
		s.mu.Unlock()
		return services.Wrap(services.ErrValidation, "engine", "start", "Engine already started", nil)
	}
	s.mu.Unlock()

	if s.reaper != nil {
		if n, err := s.reaper(ctx, s.opts.Binary, sessionPath); err != nil {
			logging.WarnWithContext(s.logger, "orphan reaping failed", "engine_reap_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "a stale engine may still hold the session file"),
				logging.String(logging.FieldErrorHint, "stop leftover aria2c processes manually"),
			)
		} else if n > 0 {
			s.logger.Info("orphaned engines stopped", logging.Int("count", n))
		}
	}

	port := s.opts.Port
	if port == 0 {
		free, err := freePort()
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "engine", "allocate port", "Failed to find a free control port", errors.Join(ErrSpawnFailed, err))
		}
		port = free
	}

	resume := false
	if _, err := os.Stat(sessionPath); err == nil {
		resume = true
	}
	secret := uuid.NewString()
	args := s.opts.args(port, secret, sessionPath, resume)

	logPath := ""
	if s.opts.LogDir != "" {
		logPath = filepath.Join(s.opts.LogDir, time.Now().Format("20060102T150405")+"-aria2c.log")
	}

	proc, err := s.launcher.Launch(s.opts.Binary, args, logPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "engine", "launch",
			fmt.Sprintf("Failed to launch %s", s.opts.Binary), errors.Join(ErrSpawnFailed, err))
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.proc = proc
	s.port = port
	s.done = done
	s.rpc = newRPCClient(endpointFor(port), secret, s.httpClient)
	s.stopping = false
	s.stopped = false
	s.exitErr = nil
	s.mu.Unlock()

	go func() {
		err := proc.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(done)
		if !s.Stopping() {
			logging.WarnWithContext(s.logger, "engine exited unexpectedly", "engine_exit",
				logging.Int("pid", proc.Pid()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the current gallery stops; progress is kept in the session"),
			)
		}
	}()

	s.logger.Info("engine launched",
		logging.Int("pid", proc.Pid()),
		logging.Int("port", port),
		logging.Bool("resume", resume),
		logging.String("session", sessionPath),
	)

	if err := s.waitReachable(ctx, port, done); err != nil {
		_ = s.Stop(context.WithoutCancel(ctx))
		return err
	}
	return nil
}

func (s *Supervisor) waitReachable(ctx context.Context, port int, done <-chan struct{}) error {
	deadline := time.NewTimer(s.opts.StartupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(dialInterval)
	defer ticker.Stop()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	for {
		conn, err := net.DialTimeout("tcp", addr, dialInterval)
		if err == nil {
			_ = conn.Close()
			var version struct {
				Version string `json:"version"`
			}
			if err := s.client().call(ctx, "aria2.getVersion", &version); err != nil {
				return services.Wrap(services.ErrExternalTool, "engine", "handshake", "Engine rejected control handshake", errors.Join(ErrUnreachable, err))
			}
			s.logger.Debug("engine reachable", logging.String("version", version.Version))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return services.Wrap(services.ErrExternalTool, "engine", "startup",
				"Engine exited before its control port opened", errors.Join(ErrSpawnFailed, s.ExitErr()))
		case <-deadline.C:
			return services.Wrap(services.ErrTimeout, "engine", "startup",
				fmt.Sprintf("Control port %d not reachable after %s", port, s.opts.StartupTimeout), ErrUnreachable)
		case <-ticker.C:
		}
	}
}

// Stop saves the session, asks the engine to exit, and kills it after
// StopTimeout. Stop is idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.proc == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	proc, done, rpc := s.proc, s.done, s.rpc
	s.mu.Unlock()

	select {
	case <-done:
	default:
		saveCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		if err := rpc.call(saveCtx, "aria2.saveSession", nil); err != nil {
			s.logger.Debug("session save before stop failed", logging.Error(err))
		}
		cancel()
		if err := proc.Terminate(); err != nil {
			s.logger.Debug("terminate signal failed", logging.Error(err))
		}
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(s.logger, "engine ignored terminate; killing", "engine_kill",
			logging.Int("pid", proc.Pid()),
			logging.String(logging.FieldImpact, "in-flight chunks may be re-downloaded"),
			logging.String(logging.FieldErrorHint, "no action needed"),
		)
		if err := proc.Kill(); err != nil {
			s.logger.Debug("kill failed", logging.Error(err))
		}
		<-done
	}

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.logger.Info("engine stopped", logging.Int("pid", proc.Pid()))
	return nil
}

// Done is closed when the engine process exits. It is nil before Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ExitErr returns the process exit error once Done is closed.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Stopping reports whether Stop has been called.
func (s *Supervisor) Stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Endpoint is the JSON-RPC URL of the running engine.
func (s *Supervisor) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == 0 {
		return ""
	}
	return endpointFor(s.port)
}

// Submit enqueues a transfer and returns its job id.
func (s *Supervisor) Submit(ctx context.Context, job Job) (string, error) {
	rpc, err := s.live()
	if err != nil {
		return "", err
	}
	options := map[string]string{"dir": job.Dir}
	if job.FileName != "" {
		options["out"] = job.FileName
	}
	if job.Referer != "" {
		options["referer"] = job.Referer
	}
	if job.Proxy != "" {
		options["all-proxy"] = job.Proxy
	}
	var gid string
	if err := rpc.call(ctx, "aria2.addUri", &gid, []string{job.URL}, options); err != nil {
		return "", err
	}
	return gid, nil
}

// JobStatus reports one job.
func (s *Supervisor) JobStatus(ctx context.Context, gid string) (JobStatus, error) {
	rpc, err := s.live()
	if err != nil {
		return JobStatus{}, err
	}
	var status JobStatus
	err = rpc.call(ctx, "aria2.tellStatus", &status, gid, statusKeys)
	return status, err
}

// ListActiveJobs reports jobs currently transferring.
func (s *Supervisor) ListActiveJobs(ctx context.Context) ([]JobStatus, error) {
	rpc, err := s.live()
	if err != nil {
		return nil, err
	}
	var jobs []JobStatus
	err = rpc.call(ctx, "aria2.tellActive", &jobs, statusKeys)
	return jobs, err
}

// StoppedJobs reports finished jobs, successful or not.
func (s *Supervisor) StoppedJobs(ctx context.Context) ([]JobStatus, error) {
	rpc, err := s.live()
	if err != nil {
		return nil, err
	}
	var jobs []JobStatus
	err = rpc.call(ctx, "aria2.tellStopped", &jobs, 0, stoppedLimit, statusKeys)
	return jobs, err
}

// GlobalStats reports aggregate counters.
func (s *Supervisor) GlobalStats(ctx context.Context) (GlobalStat, error) {
	rpc, err := s.live()
	if err != nil {
		return GlobalStat{}, err
	}
	var stat GlobalStat
	err = rpc.call(ctx, "aria2.getGlobalStat", &stat)
	return stat, err
}

// PauseJob pauses a job and waits until the engine reports it paused.
func (s *Supervisor) PauseJob(ctx context.Context, gid string) error {
	rpc, err := s.live()
	if err != nil {
		return err
	}
	if err := rpc.call(ctx, "aria2.pause", nil, gid); err != nil {
		return err
	}
	deadline := time.Now().Add(s.opts.PauseTimeout)
	for {
		status, err := s.JobStatus(ctx, gid)
		if err != nil {
			return err
		}
		switch status.Status {
		case StatusPaused:
			return nil
		case StatusComplete, StatusError, StatusRemoved:
			return fmt.Errorf("pause %s: job already %s", gid, status.Status)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pause %s: %w", gid, ErrPauseTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseInterval):
		}
	}
}

// ResumeJob resumes a paused job.
func (s *Supervisor) ResumeJob(ctx context.Context, gid string) error {
	rpc, err := s.live()
	if err != nil {
		return err
	}
	return rpc.call(ctx, "aria2.unpause", nil, gid)
}

// ChangeJobOption points an existing job at proxy, or at a direct connection
// when proxy is empty.
func (s *Supervisor) ChangeJobOption(ctx context.Context, gid, proxy string) error {
	rpc, err := s.live()
	if err != nil {
		return err
	}
	return rpc.call(ctx, "aria2.changeOption", nil, gid, map[string]string{"all-proxy": proxy})
}

func (s *Supervisor) live() (*rpcClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.stopped {
		return nil, ErrNotRunning
	}
	select {
	case <-s.done:
		return nil, ErrExited
	default:
	}
	return s.rpc, nil
}

func (s *Supervisor) client() *rpcClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpc
}

func endpointFor(port int) string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/jsonrpc"
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
