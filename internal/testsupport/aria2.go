package testsupport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"galleria/internal/engine"
)

// FakeAria2 is an in-process stand-in for aria2c. It implements
// engine.Launcher: every launch serves the JSON-RPC subset galleria uses on
// the requested control port and keeps the session file in aria2's format.
type FakeAria2 struct {
	// FileSize is the length reported for every job.
	FileSize int64
	// Step is added to every active job on each getGlobalStat call. Zero
	// leaves transfers frozen.
	Step int64
	// Speed is the download speed reported for active jobs.
	Speed int64
	// LaunchErr fails every launch when set.
	LaunchErr error
	// Silent processes never open their control port.
	Silent bool
	// IgnoreTerminate processes only exit when killed.
	IgnoreTerminate bool

	mu       sync.Mutex
	jobs     map[string]*FakeJob
	order    []string
	nextGID  int
	launches [][]string
	calls    map[string]int
	current  *fakeProcess
}

// FakeJob is the fake engine's record of one transfer.
type FakeJob struct {
	GID          string
	URL          string
	Dir          string
	Out          string
	Referer      string
	Proxy        string
	Status       string
	Completed    int64
	Pauses       int
	Unpauses     int
	ProxyChanges []string
}

// NewFakeAria2 returns a fake whose transfers finish after four status polls.
func NewFakeAria2(t testing.TB) *FakeAria2 {
	t.Helper()
	f := &FakeAria2{
		FileSize: 4096,
		Step:     1024,
		Speed:    1 << 20,
		jobs:     make(map[string]*FakeJob),
		calls:    make(map[string]int),
	}
	t.Cleanup(func() {
		f.mu.Lock()
		proc := f.current
		f.mu.Unlock()
		if proc != nil {
			proc.exit(nil, false)
		}
	})
	return f
}

// Launch implements engine.Launcher.
func (f *FakeAria2) Launch(binary string, args []string, logPath string) (engine.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, append([]string(nil), args...))
	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}

	flags := parseFlags(args)
	port, err := strconv.Atoi(flags["rpc-listen-port"])
	if err != nil {
		return nil, fmt.Errorf("fake aria2: bad port: %w", err)
	}

	f.jobs = make(map[string]*FakeJob)
	f.order = nil
	if input := flags["input-file"]; input != "" {
		if err := f.restoreLocked(input); err != nil {
			return nil, err
		}
	}

	proc := &fakeProcess{
		owner:   f,
		pid:     100000 + len(f.launches),
		secret:  flags["rpc-secret"],
		session: flags["save-session"],
		exited:  make(chan struct{}),
	}
	if !f.Silent {
		listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("fake aria2: listen: %w", err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/jsonrpc", proc.serveRPC)
		proc.server = &http.Server{Handler: mux}
		go func() { _ = proc.server.Serve(listener) }()
	}
	f.current = proc
	return proc, nil
}

// SetStep changes the per-poll progress of active jobs while running.
func (f *FakeAria2) SetStep(step int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Step = step
}

// Launches returns the argument lists of every launch so far.
func (f *FakeAria2) Launches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.launches))
	copy(out, f.launches)
	return out
}

// Calls counts RPC invocations of method across all launches.
func (f *FakeAria2) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Jobs returns copies of the running engine's jobs in submission order.
func (f *FakeAria2) Jobs() []FakeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeJob, 0, len(f.order))
	for _, gid := range f.order {
		job := *f.jobs[gid]
		job.ProxyChanges = append([]string(nil), job.ProxyChanges...)
		out = append(out, job)
	}
	return out
}

// Job returns a copy of one job.
func (f *FakeAria2) Job(gid string) (FakeJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[gid]
	if !ok {
		return FakeJob{}, false
	}
	return *job, true
}

// Running reports whether the latest launched process is still alive.
func (f *FakeAria2) Running() bool {
	f.mu.Lock()
	proc := f.current
	f.mu.Unlock()
	if proc == nil {
		return false
	}
	select {
	case <-proc.exited:
		return false
	default:
		return true
	}
}

// Crash makes the running process exit with an error.
func (f *FakeAria2) Crash() {
	f.mu.Lock()
	proc := f.current
	f.mu.Unlock()
	if proc != nil {
		proc.exit(errors.New("signal: segmentation fault"), false)
	}
}

func (f *FakeAria2) restoreLocked(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fake aria2: open input file: %w", err)
	}
	defer file.Close()

	var job *FakeJob
	flush := func() {
		if job == nil {
			return
		}
		if job.GID == "" {
			f.nextGID++
			job.GID = fmt.Sprintf("%016x", f.nextGID)
		}
		f.jobs[job.GID] = job
		f.order = append(f.order, job.GID)
		job = nil
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") {
			flush()
			job = &FakeJob{URL: line, Status: engine.StatusActive}
			continue
		}
		if job == nil {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimSpace(line), "=")
		switch key {
		case "gid":
			job.GID = value
		case "dir":
			job.Dir = value
		case "out":
			job.Out = value
		case "referer":
			job.Referer = value
		case "all-proxy":
			job.Proxy = value
		case "pause":
			if value == "true" {
				job.Status = engine.StatusPaused
			}
		}
	}
	flush()
	return scanner.Err()
}

func (f *FakeAria2) saveSessionLocked(path string) error {
	if path == "" {
		return nil
	}
	var b strings.Builder
	for _, gid := range f.order {
		job := f.jobs[gid]
		if job.Status == engine.StatusComplete || job.Status == engine.StatusRemoved {
			continue
		}
		b.WriteString(job.URL + "\n")
		b.WriteString(" gid=" + job.GID + "\n")
		b.WriteString(" dir=" + job.Dir + "\n")
		if job.Out != "" {
			b.WriteString(" out=" + job.Out + "\n")
		}
		if job.Referer != "" {
			b.WriteString(" referer=" + job.Referer + "\n")
		}
		if job.Proxy != "" {
			b.WriteString(" all-proxy=" + job.Proxy + "\n")
		}
		if job.Status == engine.StatusPaused {
			b.WriteString(" pause=true\n")
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (f *FakeAria2) advanceLocked() {
	for _, gid := range f.order {
		job := f.jobs[gid]
		if job.Status != engine.StatusActive || f.Step <= 0 {
			continue
		}
		job.Completed = min(job.Completed+f.Step, f.FileSize)
		if job.Completed < f.FileSize {
			continue
		}
		job.Status = engine.StatusComplete
		if job.Dir != "" && job.Out != "" {
			if err := os.MkdirAll(job.Dir, 0o755); err == nil {
				_ = os.WriteFile(filepath.Join(job.Dir, job.Out), make([]byte, f.FileSize), 0o644)
			}
		}
	}
}

func (f *FakeAria2) statusLocked(job *FakeJob) map[string]any {
	speed := int64(0)
	if job.Status == engine.StatusActive {
		speed = f.Speed
	}
	return map[string]any{
		"gid":             job.GID,
		"status":          job.Status,
		"totalLength":     strconv.FormatInt(f.FileSize, 10),
		"completedLength": strconv.FormatInt(job.Completed, 10),
		"downloadSpeed":   strconv.FormatInt(speed, 10),
		"connections":     "1",
		"files":           []map[string]string{{"path": filepath.Join(job.Dir, job.Out)}},
	}
}

type fakeProcess struct {
	owner   *FakeAria2
	pid     int
	secret  string
	session string
	server  *http.Server

	once    sync.Once
	exitErr error
	exited  chan struct{}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Terminate() error {
	if p.owner.ignoresTerminate() {
		return nil
	}
	p.exit(nil, true)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit(errors.New("signal: killed"), false)
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *fakeProcess) exit(err error, save bool) {
	p.once.Do(func() {
		if p.server != nil {
			_ = p.server.Close()
		}
		if save {
			p.owner.mu.Lock()
			_ = p.owner.saveSessionLocked(p.session)
			p.owner.mu.Unlock()
		}
		p.exitErr = err
		close(p.exited)
	})
}

func (f *FakeAria2) ignoresTerminate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.IgnoreTerminate
}

type fakeRequest struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *fakeProcess) serveRPC(w http.ResponseWriter, r *http.Request) {
	var req fakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, rpcErr := p.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *fakeProcess) dispatch(req fakeRequest) (any, *fakeError) {
	var token string
	if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &token) != nil || token != "token:"+p.secret {
		return nil, &fakeError{Code: 1, Message: "Unauthorized"}
	}
	params := req.Params[1:]

	f := p.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Method]++

	lookup := func() (*FakeJob, *fakeError) {
		var gid string
		if len(params) == 0 || json.Unmarshal(params[0], &gid) != nil {
			return nil, &fakeError{Code: 1, Message: "missing gid"}
		}
		job, ok := f.jobs[gid]
		if !ok {
			return nil, &fakeError{Code: 1, Message: "GID " + gid + " is not found"}
		}
		return job, nil
	}

	switch req.Method {
	case "aria2.getVersion":
		return map[string]any{"version": "1.37.0", "enabledFeatures": []string{"Async DNS", "HTTPS"}}, nil
	case "aria2.addUri":
		var uris []string
		options := map[string]string{}
		if len(params) < 1 || json.Unmarshal(params[0], &uris) != nil || len(uris) == 0 {
			return nil, &fakeError{Code: 1, Message: "no URI to download"}
		}
		if len(params) > 1 {
			_ = json.Unmarshal(params[1], &options)
		}
		f.nextGID++
		job := &FakeJob{
			GID:     fmt.Sprintf("%016x", f.nextGID),
			URL:     uris[0],
			Dir:     options["dir"],
			Out:     options["out"],
			Referer: options["referer"],
			Proxy:   options["all-proxy"],
			Status:  engine.StatusActive,
		}
		f.jobs[job.GID] = job
		f.order = append(f.order, job.GID)
		return job.GID, nil
	case "aria2.tellStatus":
		job, err := lookup()
		if err != nil {
			return nil, err
		}
		return f.statusLocked(job), nil
	case "aria2.tellActive":
		out := []map[string]any{}
		for _, gid := range f.order {
			if job := f.jobs[gid]; job.Status == engine.StatusActive {
				out = append(out, f.statusLocked(job))
			}
		}
		return out, nil
	case "aria2.tellStopped":
		out := []map[string]any{}
		for _, gid := range f.order {
			switch job := f.jobs[gid]; job.Status {
			case engine.StatusComplete, engine.StatusError, engine.StatusRemoved:
				out = append(out, f.statusLocked(job))
			}
		}
		return out, nil
	case "aria2.getGlobalStat":
		f.advanceLocked()
		var active, waiting, stopped int
		var speed int64
		for _, gid := range f.order {
			switch f.jobs[gid].Status {
			case engine.StatusActive:
				active++
				speed += f.Speed
			case engine.StatusWaiting, engine.StatusPaused:
				waiting++
			default:
				stopped++
			}
		}
		return map[string]string{
			"downloadSpeed": strconv.FormatInt(speed, 10),
			"numActive":     strconv.Itoa(active),
			"numWaiting":    strconv.Itoa(waiting),
			"numStopped":    strconv.Itoa(stopped),
		}, nil
	case "aria2.pause":
		job, err := lookup()
		if err != nil {
			return nil, err
		}
		job.Status = engine.StatusPaused
		job.Pauses++
		return job.GID, nil
	case "aria2.unpause":
		job, err := lookup()
		if err != nil {
			return nil, err
		}
		job.Status = engine.StatusActive
		job.Unpauses++
		return job.GID, nil
	case "aria2.changeOption":
		job, err := lookup()
		if err != nil {
			return nil, err
		}
		options := map[string]string{}
		if len(params) > 1 {
			_ = json.Unmarshal(params[1], &options)
		}
		if proxy, ok := options["all-proxy"]; ok {
			job.Proxy = proxy
			job.ProxyChanges = append(job.ProxyChanges, proxy)
		}
		return "OK", nil
	case "aria2.saveSession":
		if err := f.saveSessionLocked(p.session); err != nil {
			return nil, &fakeError{Code: 1, Message: err.Error()}
		}
		return "OK", nil
	default:
		return nil, &fakeError{Code: 1, Message: "No such method: " + req.Method}
	}
}

func parseFlags(args []string) map[string]string {
	flags := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if ok {
			flags[key] = value
		}
	}
	return flags
}
