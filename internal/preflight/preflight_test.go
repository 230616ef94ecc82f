package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"galleria/internal/config"
	"galleria/internal/lock"
	"galleria/internal/services"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEngineBinary(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "aria2c")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if result := CheckEngineBinary(present); !result.Passed || result.Detail != present {
		t.Fatalf("expected stub to be found, got %+v", result)
	}
	if result := CheckEngineBinary("clearly-not-present-binary"); result.Passed {
		t.Fatal("expected missing binary to fail")
	}
	if result := CheckEngineBinary(" "); result.Passed || result.Detail != "command not configured" {
		t.Fatalf("unexpected result for blank command: %+v", result)
	}
}

func TestCheckLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "galleria.lock")
	if result := CheckLock(path); !result.Passed || result.Detail != "free" {
		t.Fatalf("expected free lock, got %+v", result)
	}

	if err := os.WriteFile(path, []byte("12345\n"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if result := CheckLock(path); result.Passed {
		t.Fatalf("expected stale lock failure, got %+v", result)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove marker: %v", err)
	}

	held := lock.New(path)
	if err := held.Acquire(); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer func() { _ = held.Release() }()
	if result := CheckLock(path); !result.Passed || result.Detail != "held by a running instance" {
		t.Fatalf("expected live lock, got %+v", result)
	}
}

func TestCheckProxy(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	if result := CheckProxy(context.Background(), "http://"+addr); !result.Passed {
		t.Fatalf("expected reachable proxy, got %+v", result)
	}
	_ = listener.Close()
	if result := CheckProxy(context.Background(), "http://"+addr); result.Passed {
		t.Fatal("expected closed proxy to fail")
	}
	if result := CheckProxy(context.Background(), "::bad"); result.Passed {
		t.Fatal("expected invalid proxy to fail")
	}
}

func TestRunAllAndErr(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Engine.Binary = "clearly-not-present-binary"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	err := Err(results)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	stub := filepath.Join(base, "aria2c")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	cfg.Engine.Binary = stub
	cfg.Proxy.URL = "http://127.0.0.1:1"
	cfg.Proxy.EnabledHosts = []string{"*.example.com"}
	results = RunAll(context.Background(), &cfg)
	if len(results) != 6 {
		t.Fatalf("expected proxy check, got %d results", len(results))
	}
	if err := Err(results); err != nil {
		t.Fatalf("optional proxy failure must not fail preflight: %v", err)
	}
}
