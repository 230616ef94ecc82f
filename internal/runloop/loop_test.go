package runloop

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"galleria/internal/engine"
	"galleria/internal/queue"
	"galleria/internal/stall"
	"galleria/internal/status"
	"galleria/internal/tasks"
)

type fakeEngine struct {
	mu        sync.Mutex
	activeFn  func() []engine.JobStatus
	statFn    func(calls int) engine.GlobalStat
	statErr   error
	calls     int
	pauses    map[string]int
	resumes   map[string]int
	paused    map[string]bool
	pauseErr  error
	resumeErr error
	// pauseGate, when set, blocks PauseJob until closed.
	pauseGate chan struct{}
	done      chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		activeFn: func() []engine.JobStatus { return nil },
		statFn:   func(int) engine.GlobalStat { return engine.GlobalStat{NumActive: 1} },
		pauses:   make(map[string]int),
		resumes:  make(map[string]int),
		paused:   make(map[string]bool),
		done:     make(chan struct{}),
	}
}

func (f *fakeEngine) ListActiveJobs(context.Context) ([]engine.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []engine.JobStatus
	for _, job := range f.activeFn() {
		if !f.paused[job.GID] {
			active = append(active, job)
		}
	}
	return active, nil
}

func (f *fakeEngine) GlobalStats(context.Context) (engine.GlobalStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return engine.GlobalStat{}, f.statErr
	}
	f.calls++
	return f.statFn(f.calls), nil
}

func (f *fakeEngine) PauseJob(ctx context.Context, gid string) error {
	f.mu.Lock()
	f.pauses[gid]++
	f.paused[gid] = true
	gate, err := f.pauseGate, f.pauseErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeEngine) ResumeJob(_ context.Context, gid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes[gid]++
	if f.resumeErr != nil {
		return f.resumeErr
	}
	delete(f.paused, gid)
	return nil
}

func (f *fakeEngine) counts(gid string) (pauses, resumes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses[gid], f.resumes[gid]
}

func (f *fakeEngine) isPaused(gid string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused[gid]
}

func (f *fakeEngine) Done() <-chan struct{} { return f.done }
func (f *fakeEngine) ExitErr() error        { return errors.New("exit status 1") }

type submitter struct{ n int }

func (s *submitter) Submit(context.Context, engine.Job) (string, error) {
	s.n++
	return fmt.Sprintf("gid%d", s.n), nil
}

func (s *submitter) ChangeJobOption(context.Context, string, string) error { return nil }

func newRegistry(t *testing.T, n int) *tasks.Registry {
	t.Helper()
	reg := tasks.NewRegistry(&submitter{}, nil, tasks.WithStallOptions(stall.DefaultOptions()))
	items := make([]queue.Item, n)
	for i := range items {
		items[i] = queue.Item{Name: fmt.Sprintf("%d.jpg", i+1), URL: fmt.Sprintf("https://example.com/%d.jpg", i+1)}
	}
	if err := reg.CreateFresh(context.Background(), items, t.TempDir(), ""); err != nil {
		t.Fatalf("CreateFresh returned error: %v", err)
	}
	return reg
}

type recordingRenderer struct {
	mu       sync.Mutex
	renders  int
	finishes int
	last     status.Snapshot
}

func (r *recordingRenderer) Render(s status.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders++
	r.last = s
	return nil
}

func (r *recordingRenderer) Finish(s status.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes++
	r.last = s
	return nil
}

// syntheticJobs reports jobs whose completed bytes grow at their rate in
// bytes/s on a clock that advances one sample interval per call.
func syntheticJobs(rates map[string]float64) (func() []engine.JobStatus, func() time.Time) {
	epoch := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	next := epoch
	gids := make([]string, 0, len(rates))
	for gid := range rates {
		gids = append(gids, gid)
	}
	sort.Strings(gids)
	active := func() []engine.JobStatus {
		mu.Lock()
		elapsed := next.Sub(epoch).Seconds()
		mu.Unlock()
		jobs := make([]engine.JobStatus, 0, len(gids))
		for _, gid := range gids {
			jobs = append(jobs, engine.JobStatus{
				GID:             gid,
				Status:          engine.StatusActive,
				TotalLength:     1 << 30,
				CompletedLength: int64(rates[gid] * elapsed),
				DownloadSpeed:   int64(rates[gid]),
			})
		}
		return jobs
	}
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(250 * time.Millisecond)
		return now
	}
	return active, clock
}

func syntheticJob(gid string, rate float64) (func() []engine.JobStatus, func() time.Time) {
	return syntheticJobs(map[string]float64{gid: rate})
}

func tick(t *testing.T, loop *Loop, n int) {
	t.Helper()
	for range n {
		if err := loop.sampleTick(context.Background()); err != nil {
			t.Fatalf("sampleTick returned error: %v", err)
		}
	}
}

func TestStalledTaskReconnectsOnce(t *testing.T) {
	reg := newRegistry(t, 1)
	eng := newFakeEngine()
	active, clock := syntheticJob("gid1", 100*1024)
	eng.activeFn = active
	loop := New(eng, reg, nil, Options{SampleInterval: 250 * time.Millisecond, StallThreshold: 256 * 1024, Clock: clock}, nil)

	tick(t, loop, 39)
	loop.reconnects.Wait()
	if pauses, _ := eng.counts("gid1"); pauses != 0 {
		t.Fatal("stall acted on before a full window")
	}

	tick(t, loop, 1)
	loop.reconnects.Wait()
	task, _ := reg.Lookup("gid1")
	if pauses, resumes := eng.counts("gid1"); pauses != 1 || resumes != 1 {
		t.Fatalf("expected one pause/resume pair, got pauses=%d resumes=%d", pauses, resumes)
	}
	if task.Detector().Len() != 0 || task.Detector().Reconnecting() {
		t.Fatalf("window not cleared, %d samples", task.Detector().Len())
	}
	if task.Retries() != 1 || loop.Stalls() != 1 {
		t.Fatalf("expected one retry, got task=%d loop=%d", task.Retries(), loop.Stalls())
	}

	tick(t, loop, 39)
	loop.reconnects.Wait()
	if pauses, _ := eng.counts("gid1"); pauses != 1 {
		t.Fatalf("stall re-triggered before a fresh window: %d", pauses)
	}
}

func TestFailedPauseStillResumes(t *testing.T) {
	for name, pauseErr := range map[string]error{
		"timeout":  engine.ErrPauseTimeout,
		"canceled": context.Canceled,
	} {
		t.Run(name, func(t *testing.T) {
			reg := newRegistry(t, 1)
			eng := newFakeEngine()
			eng.pauseErr = pauseErr
			active, clock := syntheticJob("gid1", 100*1024)
			eng.activeFn = active
			loop := New(eng, reg, nil, Options{StallThreshold: 256 * 1024, Clock: clock}, nil)

			tick(t, loop, 40)
			loop.reconnects.Wait()

			pauses, resumes := eng.counts("gid1")
			if pauses != 1 || resumes != 1 {
				t.Fatalf("expected one pause/resume pair, got pauses=%d resumes=%d", pauses, resumes)
			}
			if eng.isPaused("gid1") {
				t.Fatal("job left paused after a failed pause")
			}
			task, _ := reg.Lookup("gid1")
			if task.Retries() != 0 || loop.Stalls() != 0 {
				t.Fatalf("failed reconnect counted as a retry: task=%d loop=%d", task.Retries(), loop.Stalls())
			}
			if task.Detector().Reconnecting() {
				t.Fatal("detector still reconnecting after a failed pause")
			}
		})
	}
}

func TestFailedResumeSettlesDetector(t *testing.T) {
	reg := newRegistry(t, 1)
	eng := newFakeEngine()
	eng.resumeErr = errors.New("connection refused")
	active, clock := syntheticJob("gid1", 100*1024)
	eng.activeFn = active
	loop := New(eng, reg, nil, Options{StallThreshold: 256 * 1024, Clock: clock}, nil)

	tick(t, loop, 40)
	loop.reconnects.Wait()

	task, _ := reg.Lookup("gid1")
	if task.Detector().Reconnecting() || task.Retries() != 0 {
		t.Fatalf("unexpected state after failed resume: reconnecting=%v retries=%d", task.Detector().Reconnecting(), task.Retries())
	}
}

func TestRunFinishesAfterPauseTimeout(t *testing.T) {
	reg := newRegistry(t, 1)
	eng := newFakeEngine()
	eng.pauseErr = engine.ErrPauseTimeout
	active, clock := syntheticJob("gid1", 100*1024)
	eng.activeFn = active
	// A paused job counts as waiting; the job finishes once it is resumed.
	eng.statFn = func(int) engine.GlobalStat {
		if eng.paused["gid1"] {
			return engine.GlobalStat{NumWaiting: 1}
		}
		if eng.resumes["gid1"] > 0 {
			return engine.GlobalStat{NumStopped: 1}
		}
		return engine.GlobalStat{NumActive: 1}
	}
	loop := New(eng, reg, nil, Options{
		StatusInterval: 2 * time.Millisecond,
		SampleInterval: time.Millisecond,
		StallThreshold: 256 * 1024,
		Clock:          clock,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if pauses, resumes := eng.counts("gid1"); pauses != 1 || resumes != 1 {
		t.Fatalf("expected one pause/resume pair, got pauses=%d resumes=%d", pauses, resumes)
	}
}

func TestSlowPauseDoesNotStallSampling(t *testing.T) {
	reg := newRegistry(t, 2)
	eng := newFakeEngine()
	eng.pauseGate = make(chan struct{})
	active, clock := syntheticJobs(map[string]float64{"gid1": 100 * 1024, "gid2": 1 << 20})
	eng.activeFn = active
	loop := New(eng, reg, nil, Options{StallThreshold: 256 * 1024, Clock: clock}, nil)

	ticked := make(chan error, 1)
	go func() {
		for range 80 {
			if err := loop.sampleTick(context.Background()); err != nil {
				ticked <- err
				return
			}
		}
		ticked <- nil
	}()
	select {
	case err := <-ticked:
		if err != nil {
			t.Fatalf("sampleTick returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		close(eng.pauseGate)
		t.Fatal("sampling blocked behind a pending pause")
	}

	if pauses, resumes := eng.counts("gid1"); pauses != 1 || resumes != 0 {
		t.Fatalf("expected one pending pause, got pauses=%d resumes=%d", pauses, resumes)
	}
	healthy, _ := reg.Lookup("gid2")
	if healthy.Detector().Len() < 40 {
		t.Fatalf("healthy window reset during another task's pause: %d samples", healthy.Detector().Len())
	}

	close(eng.pauseGate)
	loop.reconnects.Wait()
	if _, resumes := eng.counts("gid1"); resumes != 1 {
		t.Fatalf("expected resume after pause completed, got %d", resumes)
	}
	stalled, _ := reg.Lookup("gid1")
	if stalled.Detector().Reconnecting() {
		t.Fatal("detector still reconnecting after resume")
	}
}

func TestHealthyTaskIsLeftAlone(t *testing.T) {
	reg := newRegistry(t, 1)
	eng := newFakeEngine()
	active, clock := syntheticJob("gid1", 1<<20)
	eng.activeFn = active
	loop := New(eng, reg, nil, Options{StallThreshold: 256 * 1024, Clock: clock}, nil)

	tick(t, loop, 120)
	loop.reconnects.Wait()
	if pauses, _ := eng.counts("gid1"); pauses != 0 {
		t.Fatalf("healthy task paused %d times", pauses)
	}
}

func TestUnknownJobsAreIgnored(t *testing.T) {
	reg := newRegistry(t, 1)
	eng := newFakeEngine()
	eng.activeFn = func() []engine.JobStatus {
		return []engine.JobStatus{{GID: "metadata", Status: engine.StatusActive}}
	}
	loop := New(eng, reg, nil, Options{}, nil)
	if err := loop.sampleTick(context.Background()); err != nil {
		t.Fatalf("unknown job should be ignored, got %v", err)
	}
}

func TestRunFinishesWhenNothingPending(t *testing.T) {
	reg := newRegistry(t, 2)
	eng := newFakeEngine()
	eng.statFn = func(calls int) engine.GlobalStat {
		if calls >= 3 {
			return engine.GlobalStat{NumStopped: 2}
		}
		return engine.GlobalStat{NumActive: 2}
	}
	eng.activeFn = func() []engine.JobStatus {
		return []engine.JobStatus{{GID: "gid1", Status: engine.StatusActive, TotalLength: 10, CompletedLength: 10}}
	}
	renderer := &recordingRenderer{}
	loop := New(eng, reg, renderer, Options{StatusInterval: 5 * time.Millisecond, SampleInterval: 5 * time.Millisecond, Title: "Gallery"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if renderer.finishes != 1 || renderer.renders != 2 {
		t.Fatalf("expected 2 renders and 1 finish, got %d/%d", renderer.renders, renderer.finishes)
	}
	if len(renderer.last.Rows) != 2 || renderer.last.Rows[0].Index != 1 || renderer.last.Title != "Gallery" {
		t.Fatalf("unexpected final snapshot %+v", renderer.last)
	}
}

func TestRunFailsWhenEngineExits(t *testing.T) {
	eng := newFakeEngine()
	close(eng.done)
	loop := New(eng, newRegistry(t, 1), nil, Options{StatusInterval: time.Hour, SampleInterval: time.Hour}, nil)

	err := loop.Run(context.Background())
	if !errors.Is(err, engine.ErrExited) {
		t.Fatalf("expected ErrExited, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	eng := newFakeEngine()
	loop := New(eng, newRegistry(t, 1), nil, Options{StatusInterval: 5 * time.Millisecond, SampleInterval: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunGivesUpAfterRepeatedPollFailures(t *testing.T) {
	eng := newFakeEngine()
	eng.statErr = errors.New("connection refused")
	loop := New(eng, newRegistry(t, 1), nil, Options{StatusInterval: time.Millisecond, SampleInterval: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := loop.Run(ctx)
	if !errors.Is(err, engine.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestSnapshotUsesLastSeenProgress(t *testing.T) {
	reg := newRegistry(t, 2)
	loop := New(newFakeEngine(), reg, nil, Options{}, nil)
	loop.lastSeen["gid1"] = engine.JobStatus{GID: "gid1", TotalLength: 100, CompletedLength: 100, DownloadSpeed: 5}

	snap := loop.snapshot(engine.GlobalStat{NumActive: 1}, []engine.JobStatus{
		{GID: "gid2", Status: engine.StatusActive, TotalLength: 50, CompletedLength: 10, DownloadSpeed: 7},
	})
	if snap.Rows[0].Status != engine.StatusComplete || snap.Rows[0].Speed != 0 || snap.Rows[0].Completed != 100 {
		t.Fatalf("unexpected finished row %+v", snap.Rows[0])
	}
	if snap.Rows[1].Status != engine.StatusActive || snap.Rows[1].Speed != 7 || snap.Rows[1].Total != 2 {
		t.Fatalf("unexpected active row %+v", snap.Rows[1])
	}
}
