package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/events"
	"github.com/team-rrr/voice-multi-agent-accelerator/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionState is the session lifecycle state.
type SessionState string

const (
	// StateIdle means no turn is in flight.
	StateIdle SessionState = "idle"
	// StateListening is a sub-state of idle: a transcript stream is open.
	StateListening SessionState = "listening"
	// StateProcessing means a turn is running the stage pipeline or
	// waiting on commit arbitration.
	StateProcessing SessionState = "processing"
	// StateSpeaking means the committed response is being delivered.
	StateSpeaking SessionState = "speaking"
	// StateClosing means the session is draining and accepts no new
	// utterances.
	StateClosing SessionState = "closing"
)

// BargeInPolicy decides what happens when a finalized utterance arrives
// while a turn is in flight.
type BargeInPolicy string

const (
	// BargeInQueue appends the utterance behind the in-flight turn. This
	// is the default: it never answers two questions out of order.
	BargeInQueue BargeInPolicy = "queue"
	// BargeInCancel aborts the in-flight turn, discards its token, and
	// starts over with the new utterance. Explicit opt-in only.
	BargeInCancel BargeInPolicy = "cancel"
)

const utteranceQueueCapacity = 10

// TransportNegotiator configures the transport, before orchestration
// begins, to not autonomously answer the turn. Suppression is best-effort:
// a failure here is logged and the gate's arbitration handles the race.
type TransportNegotiator interface {
	SuppressAutonomousReply(ctx context.Context) error
}

// TransportNegotiatorFunc adapts a function to the TransportNegotiator
// interface.
type TransportNegotiatorFunc func(ctx context.Context) error

func (f TransportNegotiatorFunc) SuppressAutonomousReply(ctx context.Context) error {
	return f(ctx)
}

type sessionCallbacks struct {
	onResponseCommitted func(*Response)
	onAudio             func([]byte)
	onStateChange       func(SessionState)
	onTurnComplete      func()
	onEvent             func(events.Event)
}

// Session owns one voice session: its state machine, utterance queue,
// conversation facts, and the per-turn exclusivity token. All turn
// processing for a session happens on a single goroutine, so turns are
// strictly sequential by construction rather than by locking.
type Session struct {
	ID string

	mu          sync.RWMutex
	state       SessionState
	activeToken *ResponseToken
	gate        *responseGate
	turnCancel  context.CancelFunc

	// facts carried across turns; merged from each turn's conversation
	// context at the turn boundary.
	facts *ConversationContext

	queue     chan Utterance
	closeCh   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	turnSeq atomic.Uint64

	engine       *Engine
	dispatcher   synthesisDispatcher
	negotiator   TransportNegotiator
	adapter      *TranscriptAdapter
	callbacks    sessionCallbacks
	bargeIn      BargeInPolicy
	gateDeadline time.Duration
	gateSlack    time.Duration

	baseContext context.Context
}

// NewSession creates a session. The id should be unique per connection;
// the registry mints one when the session is created through it.
func NewSession(id string, opts ...SessionOption) *Session {
	s := &Session{
		ID:          id,
		state:       StateIdle,
		facts:       NewConversationContext(),
		queue:       make(chan Utterance, utteranceQueueCapacity),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		bargeIn:     BargeInQueue,
		gateSlack:   2 * time.Second,
		baseContext: context.Background(),
	}
	s.adapter = newTranscriptAdapter(s.SubmitUtterance)

	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher.onAudio = s.callbacks.onAudio
	s.dispatcher.onPlaybackEnded = func() { s.emit(events.NewPlaybackEnded()) }

	if s.gateDeadline == 0 {
		if s.engine != nil {
			s.gateDeadline = s.engine.TurnDeadline(s.gateSlack)
		} else {
			s.gateDeadline = 10 * time.Second
		}
	}

	return s
}

// Start launches the session's turn loop. Safe to call once; the loop runs
// until Close or ctx cancellation.
func (s *Session) Start(ctx context.Context) (started bool) {
	s.startOnce.Do(func() {
		if s.isClosed() {
			return
		}

		started = true
		s.started.Store(true)
		s.baseContext = ctx
		go func() {
			<-ctx.Done()
			s.Close()
		}()
		go func() {
			defer close(s.done)
			for {
				select {
				case <-s.closeCh:
					return
				case utterance := <-s.queue:
					if s.isClosed() {
						return
					}
					metrics.QueuedUtterances.Dec()
					s.processTurn(utterance)
				}
			}
		}()
	})
	return started
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Adapter returns the session's transcript adapter, the entry point for
// transport transcript callbacks.
func (s *Session) Adapter() *TranscriptAdapter { return s.adapter }

// Facts returns a copy of the facts retained across turns.
func (s *Session) Facts() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts.Snapshot()
}

// SubmitUtterance accepts a finalized utterance. If a turn is in flight the
// utterance is queued behind it (or, under the cancel policy, the in-flight
// turn is aborted first). Utterances are processed strictly in arrival
// order, one turn at a time.
func (s *Session) SubmitUtterance(text string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	if s.bargeIn == BargeInCancel {
		if state := s.State(); state == StateProcessing || state == StateSpeaking {
			s.CancelTurn()
		}
	}

	utterance := Utterance{
		SessionID: s.ID,
		Text:      text,
		ArrivedAt: time.Now(),
		Finalized: true,
	}

	select {
	case <-s.closeCh:
		return ErrSessionClosed
	case s.queue <- utterance:
		metrics.QueuedUtterances.Inc()
		return nil
	}
}

// Handle routes a typed session event.
func (s *Session) Handle(event events.Event) {
	switch e := event.(type) {
	case events.UserTranscriptPartial:
		s.adapter.HandlePartial(e.Transcript)
	case events.UserTranscriptFinal:
		s.adapter.HandleFinal(e.Transcript)
	case events.UserSpeechStarted:
		s.markListening(true)
	case events.UserSpeechEnded:
		s.markListening(false)
	case events.TurnCancel:
		s.CancelTurn()
	}
}

// CancelTurn aborts the in-flight turn, if any: its token is invalidated so
// no late commit can deliver, and its pipeline context is cancelled.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	gate := s.gate
	cancel := s.turnCancel
	s.mu.Unlock()

	if gate != nil {
		gate.invalidate()
	}
	if cancel != nil {
		cancel()
	}
}

// FailTransport tears the session down after an unrecoverable transport
// failure. The in-flight turn, if any, fails without committing.
func (s *Session) FailTransport(cause error) {
	err := &TransportError{Cause: cause}
	logger.Error("session transport failed", "session_id", s.ID, "error", err)

	s.mu.RLock()
	active := s.activeToken != nil
	s.mu.RUnlock()
	if active {
		s.emit(events.NewTurnFailed(err.Error()))
	}
	s.Close()
}

// Close tears the session down: no new utterances are accepted, queued
// utterances are discarded, the in-flight turn is cancelled, and no pending
// response is left committed.
func (s *Session) Close() {
	s.endOnce.Do(func() {
		s.setState(StateClosing)
		close(s.closeCh)
		s.CancelTurn()

		// Discard anything still queued; a closing session answers nothing.
		for {
			select {
			case <-s.queue:
				metrics.QueuedUtterances.Dec()
			default:
				return
			}
		}
	})
}

// AwaitCompletion blocks until the turn loop has drained after Close.
func (s *Session) AwaitCompletion() {
	if s.started.Load() {
		<-s.done
	}
}

// CommitTransportResponse offers the transport's autonomous reply to the
// current turn's gate. It reports whether the reply won arbitration; a
// losing or late reply must not open its audio path.
func (s *Session) CommitTransportResponse(text string) bool {
	s.mu.RLock()
	gate := s.gate
	token := s.activeToken
	s.mu.RUnlock()

	if gate == nil || token == nil {
		// Before the first turn the transport speaks freely (its greeting).
		// Once a turn has been answered, a turnless reply is a straggler
		// for that turn: its transcript trails the audio generation, so it
		// can land after the turn closed. The turn already committed;
		// nothing else may deliver.
		if s.turnSeq.Load() == 0 {
			return true
		}
		s.emit(events.NewResponseDiscarded(string(SourceTransportDefault)))
		logger.Debug("discarding transport reply for a closed turn", "session_id", s.ID)
		return false
	}

	response := &Response{Text: text, Source: SourceTransportDefault, Status: ResponsePending}
	won, err := gate.Commit(*token, response)
	if err != nil {
		logger.Debug("transport response rejected", "session_id", s.ID, "error", err)
		return false
	}
	if !won {
		s.emit(events.NewResponseDiscarded(string(SourceTransportDefault)))
	}
	return won
}

func (s *Session) processTurn(utterance Utterance) {
	turnCtx, cancelTurn := context.WithCancel(s.baseContext)
	defer cancelTurn()

	go func() {
		select {
		case <-s.closeCh:
			cancelTurn()
		case <-turnCtx.Done():
		}
	}()

	ctx, span := tracer.Start(turnCtx, "process turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", s.ID),
		attribute.Float64("turn.queued_time", time.Since(utterance.ArrivedAt).Seconds()),
	)

	token := ResponseToken{SessionID: s.ID, Turn: s.turnSeq.Add(1)}
	gate := newResponseGate(token, s.gateDeadline)

	s.mu.Lock()
	s.state = StateProcessing
	s.activeToken = &token
	s.gate = gate
	s.turnCancel = cancelTurn
	s.mu.Unlock()
	s.notifyState(StateProcessing)
	s.emit(events.NewTurnStarted(utterance.Text))
	metrics.TurnsTotal.Inc()

	// Ask the transport not to answer this turn on its own. Best-effort:
	// arbitration below stays armed regardless.
	if s.negotiator != nil {
		if err := s.negotiator.SuppressAutonomousReply(ctx); err != nil {
			span.AddEvent("autonomous reply suppression failed", trace.WithAttributes(
				attribute.String("error", err.Error()),
			))
			logger.WarnContext(ctx, "suppression failed, relying on commit arbitration",
				"session_id", s.ID, "error", err)
		}
	}

	// The turn's conversation context: retained session facts plus
	// whatever this turn's stages accumulate. Owned by this run only.
	conversation := NewConversationContext()
	s.mu.RLock()
	retained := s.facts.Snapshot()
	s.mu.RUnlock()
	conversation.Merge(retained)

	engineDone := make(chan struct{})
	if s.engine != nil {
		go func() {
			defer close(engineDone)
			response, _, err := s.engine.Run(ctx, utterance, conversation)

			// Run is the only writer of conversation; it is safe to fold the
			// learned facts back into the session once it returns, whoever
			// wins the commit.
			s.mu.Lock()
			s.facts.Merge(conversation.Snapshot())
			s.mu.Unlock()

			if err != nil {
				// Terminal action-stage failure: no orchestrator commit;
				// the gate deadline produces the fallback.
				span.RecordError(err)
				return
			}
			if _, err := gate.Commit(token, response); err != nil {
				logger.DebugContext(ctx, "orchestrator response rejected",
					"session_id", s.ID, "error", err)
			}
		}()
	} else {
		close(engineDone)
	}

	// The turn does not end until its pipeline run has exited; a run that
	// outlived the gate decision must never overlap the next turn.
	joinEngine := func() {
		cancelTurn()
		<-engineDone
	}

	committed, err := gate.Await(ctx)
	if err != nil {
		// Cancelled by barge-in or teardown: discard turn, commit nothing.
		span.SetStatus(codes.Error, err.Error())
		joinEngine()
		s.emit(events.NewTurnCancelled())
		s.clearTurn()
		return
	}

	metrics.CommitsTotal.WithLabelValues(string(committed.Source)).Inc()
	s.emit(events.NewResponseCommitted(committed.Text, string(committed.Source)))
	if s.callbacks.onResponseCommitted != nil {
		s.callbacks.onResponseCommitted(committed)
	}

	s.setState(StateSpeaking)
	s.notifyState(StateSpeaking)
	if committed.Source == SourceOrchestrator {
		s.emit(events.NewPlaybackStarted())
		if err := s.dispatcher.Dispatch(ctx, committed); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	// Transport-default winners deliver their own audio; no dispatch.

	joinEngine()
	s.emit(events.NewTurnCompleted())
	s.clearTurn()
	if s.callbacks.onTurnComplete != nil {
		s.callbacks.onTurnComplete()
	}
}

func (s *Session) clearTurn() {
	s.mu.Lock()
	s.activeToken = nil
	s.gate = nil
	s.turnCancel = nil
	if s.state != StateClosing {
		s.state = StateIdle
	}
	state := s.state
	s.mu.Unlock()
	s.notifyState(state)
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	if s.state == StateClosing && state != StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
}

// markListening toggles the listening sub-state while the session is idle.
func (s *Session) markListening(listening bool) {
	s.mu.Lock()
	switch {
	case listening && s.state == StateIdle:
		s.state = StateListening
	case !listening && s.state == StateListening:
		s.state = StateIdle
	}
	state := s.state
	s.mu.Unlock()
	s.notifyState(state)
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Session) notifyState(state SessionState) {
	if s.callbacks.onStateChange != nil {
		s.callbacks.onStateChange(state)
	}
}

func (s *Session) emit(event events.Event) {
	if s.callbacks.onEvent != nil {
		s.callbacks.onEvent(event)
	}
}
