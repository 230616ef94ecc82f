package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"galleria/internal/adapters"
	"galleria/internal/config"
	"galleria/internal/engine"
	"galleria/internal/history"
	"galleria/internal/lock"
	"galleria/internal/logging"
	"galleria/internal/notifications"
	"galleria/internal/preflight"
	"galleria/internal/queue"
	"galleria/internal/runloop"
	"galleria/internal/services"
	"galleria/internal/status"
	"galleria/internal/tasks"
)

// Resolver turns gallery URLs into queue requests.
type Resolver interface {
	Identify(rawURL string) (adapters.Match, error)
	Resolve(ctx context.Context, m adapters.Match) (queue.GalleryRequest, error)
}

// Engine is one gallery's download engine.
type Engine interface {
	runloop.Engine
	tasks.Engine
	Start(ctx context.Context, sessionPath string) error
	Stop(ctx context.Context) error
	StoppedJobs(ctx context.Context) ([]engine.JobStatus, error)
	Endpoint() string
}

// EngineFactory builds a fresh engine for each gallery.
type EngineFactory func() Engine

// HistoryRecorder journals finished galleries.
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithResolver replaces the adapter registry.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithEngineFactory replaces how engines are built.
func WithEngineFactory(f EngineFactory) Option {
	return func(o *Orchestrator) { o.newEngine = f }
}

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithHistory journals finished galleries to h.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithRenderer sets the status renderer.
func WithRenderer(r status.Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithPreflight replaces the readiness check run before taking the lock.
func WithPreflight(check func(context.Context, *config.Config) error) Option {
	return func(o *Orchestrator) { o.preflight = check }
}

// WithStateHook observes every state transition.
func WithStateHook(fn func(State)) Option {
	return func(o *Orchestrator) { o.stateHook = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator coordinates the lock, the waiting list, and gallery runs.
type Orchestrator struct {
	cfg       *config.Config
	lock      *lock.Lock
	queue     *queue.Queue
	resolver  Resolver
	newEngine EngineFactory
	notifier  notifications.Service
	history   HistoryRecorder
	renderer  status.Renderer
	preflight func(context.Context, *config.Config) error
	stateHook func(State)
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// New builds an Orchestrator for cfg.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		now:    time.Now,
		logger: logging.NewNop(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	o.lock = lock.New(cfg.LockPath())
	o.queue = queue.New(cfg.QueuePath(), o.logger)
	if o.resolver == nil {
		o.resolver = adapters.ForConfig(cfg, o.logger)
	}
	if o.newEngine == nil {
		engineOpts := engine.OptionsFromConfig(cfg)
		logger := o.logger
		o.newEngine = func() Engine {
			return engine.New(engineOpts, engine.WithLogger(logger))
		}
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}
	if o.renderer == nil {
		o.renderer = status.ForOutput(os.Stdout, o.logger)
	}
	if o.preflight == nil {
		o.preflight = func(ctx context.Context, cfg *config.Config) error {
			return preflight.Err(preflight.RunAll(ctx, cfg))
		}
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	logging.WithContext(ctx, o.logger).Debug("state transition",
		logging.String("from", string(prev)),
		logging.String(logging.FieldState, string(s)),
	)
	if o.stateHook != nil {
		o.stateHook(s)
	}
}

// Run handles one invocation. rawURL may be empty.
func (o *Orchestrator) Run(ctx context.Context, rawURL string) (Outcome, error) {
	o.setState(ctx, StateIdle)

	var match *adapters.Match
	if rawURL != "" {
		m, err := o.resolver.Identify(rawURL)
		if err != nil {
			return OutcomeCompleted, err
		}
		match = &m
	}

	locked, err := o.lock.IsLocked()
	if err != nil {
		return OutcomeCompleted, err
	}
	if locked {
		return o.handOff(ctx, match)
	}

	if err := o.preflight(ctx, o.cfg); err != nil {
		return OutcomeCompleted, err
	}

	o.setState(ctx, StateAcquiringLock)
	if err := o.lock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrAlreadyLocked) {
			return o.handOff(ctx, match)
		}
		return OutcomeCompleted, err
	}

	outcome, runErr := o.runLocked(ctx, match)
	if err := o.lock.Release(); err != nil {
		logging.ErrorWithContext(o.logger, "lock release failed", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next run may report the instance as busy"),
			logging.String(logging.FieldErrorHint, "remove "+o.lock.Path()+" if no galleria is running"),
		)
		if runErr == nil {
			runErr = err
		}
	}
	return outcome, runErr
}

// handOff queues the gallery for the instance holding the lock.
func (o *Orchestrator) handOff(ctx context.Context, match *adapters.Match) (Outcome, error) {
	if match == nil {
		o.logger.Info("another instance is processing the waiting list")
		return OutcomeBusy, nil
	}
	if err := o.queue.Refresh(); err != nil {
		return OutcomeCompleted, err
	}
	if o.queue.Contains(match.ID) {
		o.logger.Info("gallery already on the waiting list", logging.String(logging.FieldGalleryID, match.ID))
		return OutcomeAlreadyQueued, nil
	}

	o.setState(ctx, StateLoadingGallery)
	req, err := o.resolver.Resolve(ctx, *match)
	if err != nil {
		return OutcomeCompleted, services.Wrap(services.ErrValidation, string(StateLoadingGallery), "resolve", "Failed to resolve gallery", err)
	}
	if err := o.queue.Add(req); err != nil {
		if errors.Is(err, queue.ErrDuplicateEntry) {
			return OutcomeAlreadyQueued, nil
		}
		return OutcomeCompleted, err
	}
	position := o.queue.Len()
	o.logger.Info("added to waiting list",
		logging.String(logging.FieldGalleryID, req.ID),
		logging.String("title", req.Title),
		logging.Int("position", position),
	)
	o.notify(ctx, notifications.EventGalleryQueued, notifications.Payload{"title": req.Title, "position": position})
	return OutcomeQueued, nil
}

// runLocked enqueues the requested gallery at the front and processes the
// waiting list. The caller holds the lock.
func (o *Orchestrator) runLocked(ctx context.Context, match *adapters.Match) (Outcome, error) {
	if err := o.queue.Refresh(); err != nil {
		return OutcomeCompleted, err
	}
	if match != nil {
		if !o.queue.Contains(match.ID) {
			o.setState(ctx, StateLoadingGallery)
			req, err := o.resolver.Resolve(ctx, *match)
			if err != nil {
				return OutcomeCompleted, services.Wrap(services.ErrValidation, string(StateLoadingGallery), "resolve", "Failed to resolve gallery", err)
			}
			if err := o.queue.Add(req); err != nil && !errors.Is(err, queue.ErrDuplicateEntry) {
				return OutcomeCompleted, err
			}
		}
		if err := o.queue.MoveToFront(match.ID); err != nil {
			return OutcomeCompleted, err
		}
	} else if o.queue.IsEmpty() {
		return OutcomeCompleted, ErrNoInput
	}

	processed := 0
	for {
		head, ok := o.queue.Current()
		if !ok {
			break
		}
		if err := o.processGallery(ctx, head); err != nil {
			o.reportFailure(ctx, head, err)
			return OutcomeCompleted, err
		}
		processed++
		if o.queue.IsEmpty() {
			break
		}
		o.setState(ctx, StateAdvancing)
	}
	o.setState(ctx, StateExit)
	o.logger.Info("waiting list empty", logging.Int("processed", processed))
	o.notify(ctx, notifications.EventQueueCompleted, notifications.Payload{"processed": processed})
	return OutcomeCompleted, nil
}

func (o *Orchestrator) reportFailure(ctx context.Context, req queue.GalleryRequest, err error) {
	if errors.Is(err, context.Canceled) {
		o.logger.Info("interrupted; progress saved for the next run",
			logging.String(logging.FieldGalleryID, req.ID),
			logging.String("title", req.Title),
		)
		return
	}
	logging.ErrorWithContext(o.logger, "gallery failed", "gallery_failed",
		logging.String(logging.FieldGalleryID, req.ID),
		logging.String("title", req.Title),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the gallery stays at the head of the waiting list"),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
	)
	o.notify(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{"context": req.Title, "error": err})
}

func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(o.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no push notification for this event"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func (o *Orchestrator) proxyPolicy(rawURL string) string {
	if o.cfg.ProxyEnabled(rawURL) {
		return o.cfg.Proxy.URL
	}
	return ""
}

func wrapFatal(state State, operation, message string, err error) error {
	marker := services.ErrExternalTool
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, engine.ErrUnreachable):
		marker = services.ErrTimeout
	case errors.Is(err, queue.ErrNotFound):
		marker = services.ErrNotFound
	}
	return services.Wrap(marker, string(state), operation, message, err)
}
