// Package agents defines the contract between the orchestration engine and
// the specialist reasoning stages it invokes.
//
// Stages form a closed set selected by StageKind rather than runtime
// discovery: every pipeline runs Info, then Context, then Action, in that
// order. A Client implementation answers one Invoke call per stage; the
// engine owns deadlines, retries, and the per-stage failure policy.
package agents

import (
	"context"
	"fmt"
	"time"
)

// StageKind selects one of the fixed pipeline stages.
type StageKind string

const (
	// StageInfo gathers baseline information and extracts facts from the
	// user's utterance.
	StageInfo StageKind = "info"
	// StageContext retrieves the patient's recent clinical context.
	StageContext StageKind = "context"
	// StageAction merges prior stage outputs into the final actionable
	// response.
	StageAction StageKind = "action"
)

// Stages lists the pipeline stages in execution order.
func Stages() []StageKind {
	return []StageKind{StageInfo, StageContext, StageAction}
}

// Request is the input handed to a stage: the user's query plus a snapshot
// of the facts accumulated by earlier stages this turn.
type Request struct {
	Query   string
	Context map[string]string
}

// Result is a stage's answer. Facts are merged into the turn's conversation
// context before the next stage runs. Confidence is optional; zero means
// the stage did not report one.
type Result struct {
	Text       string
	Facts      map[string]string
	Confidence float64
}

// Client answers stage invocations. Implementations must be safe for use
// from a single session goroutine and must respect ctx cancellation.
type Client interface {
	Invoke(ctx context.Context, kind StageKind, req Request) (Result, error)
}

// InvocationStatus is the terminal (or pending) state of one stage call.
type InvocationStatus string

const (
	StatusPending   InvocationStatus = "pending"
	StatusSucceeded InvocationStatus = "succeeded"
	StatusFailed    InvocationStatus = "failed"
	StatusTimedOut  InvocationStatus = "timed_out"
)

// Invocation records one stage call for tracing and the client-facing agent
// trace: input snapshot, output or error, status, and retry count.
type Invocation struct {
	Stage       StageKind
	Input       Request
	Output      Result
	Err         error
	Status      InvocationStatus
	Retries     int
	CompletedAt time.Time
}

// Error marks a stage failure with the stage it came from. It is always
// handled inside the engine per the stage's failure policy and never
// surfaces to the user as a raw error.
type Error struct {
	Stage StageKind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
