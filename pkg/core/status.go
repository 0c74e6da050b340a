package core

// RunStatus represents the lifecycle state of a crawl run
type RunStatus int

const (
	RunPending     RunStatus = iota // Not yet started
	RunRunning                      // Traversal in progress
	RunCompleted                    // Traversal stack drained
	RunInterrupted                  // Cancelled by an external signal
	RunFailed                       // Session could not be started or lost
)

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunInterrupted:
		return "interrupted"
	case RunFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the status is a final state
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunInterrupted, RunFailed:
		return true
	default:
		return false
	}
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategorySignal                          // Driver or side-channel call failed; treated as no signal
	ErrCategoryStructural                      // UI tree unavailable, back navigation exhausted
	ErrCategoryLog                             // Malformed or unreadable log input
	ErrCategoryConnection                      // Device/server connection lost
	ErrCategoryConfig                          // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategorySignal:
		return "signal"
	case ErrCategoryStructural:
		return "structural"
	case ErrCategoryLog:
		return "log"
	case ErrCategoryConnection:
		return "connection"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}
