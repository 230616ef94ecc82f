package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Process is a spawned engine process.
type Process interface {
	Pid() int
	// Terminate asks the process to shut down gracefully (SIGTERM).
	Terminate() error
	Kill() error
	// Wait blocks until the process exits. It is called exactly once.
	Wait() error
}

// Launcher spawns engine processes. logPath, when non-empty, receives the
// process output.
type Launcher interface {
	Launch(binary string, args []string, logPath string) (Process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(binary string, args []string, logPath string) (Process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	var logFile *os.File
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return nil, fmt.Errorf("create engine log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open engine log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	return &execProcess{cmd: cmd, logFile: logFile}, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Terminate() error {
	return unix.Kill(p.cmd.Process.Pid, unix.SIGTERM)
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if p.logFile != nil {
		_ = p.logFile.Close()
	}
	return err
}
