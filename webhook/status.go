package webhook

import "fmt"

/* Status represents the processing state of an Event
 * Follows the lifecycle: Received -> Processing -> Completed
 * Failed is reserved for events whose handlers were abandoned before reaching a terminal outcome
 */
type Status int

const (
	Received Status = iota + 1
	Processing
	Completed
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Received:
		return "received"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "received":
		return Received
	case "processing":
		return Processing
	case "completed":
		return Completed
	case "failed":
		return Failed
	default:
		return Received
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Received || s > Failed {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Completed || s == Failed
}

// Outcome classifies a single handler attempt
type Outcome int

const (
	Success Outcome = iota + 1
	RetryableFailure
	FatalFailure
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// NewOutcome creates an Outcome from a string
func NewOutcome(str string) Outcome {
	switch str {
	case "success":
		return Success
	case "fatal_failure":
		return FatalFailure
	default:
		return RetryableFailure
	}
}

// IsTerminal reports whether no further attempt follows this outcome
func (o Outcome) IsTerminal() bool {
	return o == Success || o == FatalFailure
}
