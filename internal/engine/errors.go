package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed reports that the engine process could not be started or
	// exited before becoming reachable.
	ErrSpawnFailed = errors.New("download engine failed to start")
	// ErrUnreachable reports that the control port never accepted connections
	// within the startup timeout.
	ErrUnreachable = errors.New("download engine unreachable")
	// ErrExited reports that a running engine process went away.
	ErrExited = errors.New("download engine exited")
	// ErrNotRunning reports an RPC call before Start or after Stop.
	ErrNotRunning = errors.New("download engine not running")
	// ErrPauseTimeout reports a job that did not reach the paused state in time.
	ErrPauseTimeout = errors.New("job did not pause in time")
)

// RPCError is an error object returned by the engine.
type RPCError struct {
	Method  string
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}
