package orchestration

import (
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
)

// ResponseSource identifies which path produced a response for a turn.
type ResponseSource string

const (
	// SourceOrchestrator marks responses produced by the stage pipeline,
	// including gate-minted fallbacks.
	SourceOrchestrator ResponseSource = "orchestrator"
	// SourceTransportDefault marks autonomous replies the voice transport
	// generated on its own for the same utterance.
	SourceTransportDefault ResponseSource = "transport_default"
)

// ResponseStatus tracks a response through commit arbitration.
type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseCommitted ResponseStatus = "committed"
	ResponseDiscarded ResponseStatus = "discarded"
)

// ResponseToken is the per-turn commit authority. Tokens are minted
// monotonically per session; a response without a matching, still-valid
// token can never commit.
type ResponseToken struct {
	SessionID string
	Turn      uint64
}

// Response is one candidate answer to a turn. At most one response per turn
// ever reaches ResponseCommitted.
type Response struct {
	Text   string
	Card   *Card
	Source ResponseSource
	Status ResponseStatus

	// LowConfidence is set when the pipeline degraded (context stage
	// failure) and the action stage answered from partial context.
	LowConfidence bool
	// Fallback is set on the apology response minted when the pipeline
	// aborted or nothing committed before the gate deadline.
	Fallback bool

	// Trace lists the stage invocations that produced this response, in
	// execution order. Empty for transport-default responses.
	Trace []agents.Invocation

	committedAt time.Time
}

// CommittedAt reports when the response won arbitration; zero until then.
func (r *Response) CommittedAt() time.Time { return r.committedAt }

// fallbackApology is spoken whenever the pipeline cannot produce a real
// answer. It is always a single well-formed message, never silence.
const fallbackApology = "I apologize, but I'm having trouble processing your request right now. Please try again."

func newFallbackResponse(trace []agents.Invocation) *Response {
	return &Response{
		Text:     fallbackApology,
		Source:   SourceOrchestrator,
		Status:   ResponsePending,
		Fallback: true,
		Trace:    trace,
	}
}

// Utterance is one finalized user speech turn, converted to text. It is
// created by the transcript adapter, consumed once by the engine, and
// discarded at turn end.
type Utterance struct {
	SessionID string
	Text      string
	ArrivedAt time.Time
	Finalized bool
}
