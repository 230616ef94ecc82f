package tasks

import (
	"errors"
	"sync/atomic"

	"galleria/internal/stall"
)

var (
	// ErrUnknownJob reports a job id the registry does not track.
	ErrUnknownJob = errors.New("unknown job")
	// ErrSnapshotMissing reports that no task snapshot exists for a workspace.
	ErrSnapshotMissing = errors.New("task snapshot missing")
)

// Task is one submitted transfer.
type Task struct {
	JobID        string
	Index        int
	FileName     string
	URL          string
	ProxyEnabled bool

	retries  atomic.Int32
	detector *stall.Detector
}

// Detector returns the task's stall window.
func (t *Task) Detector() *stall.Detector { return t.detector }

// Retries is the number of stall reconnects issued for this task.
func (t *Task) Retries() int { return int(t.retries.Load()) }

// AddRetry records one stall reconnect.
func (t *Task) AddRetry() int { return int(t.retries.Add(1)) }

type record struct {
	JobID        string `json:"jobId"`
	Index        int    `json:"index"`
	FileName     string `json:"fileName"`
	URL          string `json:"url"`
	ProxyEnabled bool   `json:"proxyEnabled"`
	Retries      int    `json:"retries,omitempty"`
}

type snapshot struct {
	Version int      `json:"version"`
	Tasks   []record `json:"tasks"`
}

const snapshotVersion = 1
