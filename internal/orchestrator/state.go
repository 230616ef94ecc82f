package orchestrator

import "errors"

// State is a step of the processing state machine.
type State string

// States in processing order.
const (
	StateIdle            State = "IDLE"
	StateAcquiringLock   State = "ACQUIRING_LOCK"
	StateLoadingGallery  State = "LOADING_GALLERY"
	StatePreparing       State = "PREPARING"
	StatePopulatingTasks State = "POPULATING_TASKS"
	StateRunning         State = "RUNNING"
	StateFinalizing      State = "FINALIZING"
	StateAdvancing       State = "ADVANCING"
	StateExit            State = "EXIT"
)

// Outcome is how an invocation ended without error.
type Outcome int

const (
	// OutcomeCompleted means this instance processed the waiting list to the end.
	OutcomeCompleted Outcome = iota
	// OutcomeQueued means another instance holds the lock and the gallery was
	// appended to the waiting list.
	OutcomeQueued
	// OutcomeAlreadyQueued means the gallery was already waiting.
	OutcomeAlreadyQueued
	// OutcomeBusy means no URL was given and another instance is running.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeQueued:
		return "queued"
	case OutcomeAlreadyQueued:
		return "already queued"
	case OutcomeBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ErrNoInput reports an invocation with no URL while nothing is waiting.
var ErrNoInput = errors.New("no gallery URL given and the waiting list is empty")
