package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"galleria/internal/lock"
)

// CheckEngineBinary verifies the download engine can be found.
func CheckEngineBinary(binary string) Result {
	const name = "Download engine"
	cmd := strings.TrimSpace(binary)
	if cmd == "" {
		return Result{Name: name, Detail: "command not configured"}
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("binary %q not found", cmd)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckLock reports whether the instance lock is free, held by a live
// instance, or left behind by a crashed one.
func CheckLock(path string) Result {
	const name = "Instance lock"
	l := lock.New(path)
	locked, err := l.IsLocked()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !locked {
		return Result{Name: name, Passed: true, Detail: "free"}
	}
	stale, err := l.IsStale()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if stale {
		return Result{Name: name, Detail: fmt.Sprintf("stale lock left by a crashed run; remove %s", path)}
	}
	return Result{Name: name, Passed: true, Detail: "held by a running instance"}
}

// CheckProxy dials the proxy address.
func CheckProxy(ctx context.Context, proxyURL string) Result {
	const name = "Proxy"
	parsed, err := url.Parse(strings.TrimSpace(proxyURL))
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid proxy address %q", proxyURL)}
	}
	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%v)", host, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: host + " reachable"}
}
