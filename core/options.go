package orchestration

import (
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/events"
)

// SessionOption configures a session at creation time.
type SessionOption func(*Session)

// WithEngine wires the stage pipeline engine. Without one the session
// relies entirely on the transport's autonomous replies (echo mode).
func WithEngine(engine *Engine) SessionOption {
	return func(s *Session) { s.engine = engine }
}

// WithSynthesizer wires the speech-synthesis collaborator used to deliver
// committed orchestrator responses.
func WithSynthesizer(synthesizer Synthesizer) SessionOption {
	return func(s *Session) { s.dispatcher.synthesizer = synthesizer }
}

// WithTransportNegotiator wires the best-effort autonomous-reply
// suppression performed at turn start.
func WithTransportNegotiator(negotiator TransportNegotiator) SessionOption {
	return func(s *Session) { s.negotiator = negotiator }
}

// WithBargeInPolicy selects what happens when an utterance arrives
// mid-turn. The default queues it.
func WithBargeInPolicy(policy BargeInPolicy) SessionOption {
	return func(s *Session) { s.bargeIn = policy }
}

// WithGateDeadline overrides the turn-level deadline after which the gate
// self-commits the fallback response. The default is derived from the
// engine's stage budget plus slack.
func WithGateDeadline(deadline time.Duration) SessionOption {
	return func(s *Session) { s.gateDeadline = deadline }
}

// WithGateSlack adjusts the slack added to the stage budget when the gate
// deadline is derived rather than set explicitly.
func WithGateSlack(slack time.Duration) SessionOption {
	return func(s *Session) { s.gateSlack = slack }
}

// WithResponseCallback is invoked once per turn with the committed
// response, before its audio path opens.
func WithResponseCallback(callback func(*Response)) SessionOption {
	return func(s *Session) { s.callbacks.onResponseCommitted = callback }
}

// WithAudioCallback receives synthesized audio chunks in arrival order.
func WithAudioCallback(callback func([]byte)) SessionOption {
	return func(s *Session) { s.callbacks.onAudio = callback }
}

// WithStateCallback observes session state transitions.
func WithStateCallback(callback func(SessionState)) SessionOption {
	return func(s *Session) { s.callbacks.onStateChange = callback }
}

// WithTurnCompleteCallback fires after a turn's committed response finished
// delivery and before the next queued utterance starts.
func WithTurnCompleteCallback(callback func()) SessionOption {
	return func(s *Session) { s.callbacks.onTurnComplete = callback }
}

// WithEventCallback observes the session's typed event stream.
func WithEventCallback(callback func(events.Event)) SessionOption {
	return func(s *Session) { s.callbacks.onEvent = callback }
}
