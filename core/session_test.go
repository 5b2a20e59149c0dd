package orchestration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/events"
)

func fastEngine() *Engine {
	return NewEngine(stageFunc(func(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
		return okResult(kind), nil
	}))
}

// blockingEngine stalls every stage call until release is closed (or the
// turn is cancelled), and signals the first invocation on started.
func blockingEngine(started chan<- struct{}, release <-chan struct{}) *Engine {
	signalled := false
	return NewEngine(stageFunc(func(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
		if !signalled {
			signalled = true
			started <- struct{}{}
		}
		select {
		case <-release:
			return okResult(kind), nil
		case <-ctx.Done():
			return agents.Result{}, ctx.Err()
		}
	}), WithStageDeadline(5*time.Second), WithStageRetries(0))
}

func awaitEvent[E events.Event](t *testing.T, eventCh <-chan events.Event) E {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-eventCh:
			if typed, ok := event.(E); ok {
				return typed
			}
		case <-deadline:
			var zero E
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestSessionProcessesTurnsSequentially(t *testing.T) {
	eventCh := make(chan events.Event, 64)
	session := NewSession("seq",
		WithEngine(fastEngine()),
		WithEventCallback(func(event events.Event) { eventCh <- event }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("first question"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	if err := session.SubmitUtterance("second question"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	first := awaitEvent[events.TurnStarted](t, eventCh)
	if first.Utterance != "first question" {
		t.Fatalf("expected the first utterance to start first, got %q", first.Utterance)
	}

	// The second turn must not start before the first completes.
	sawFirstCompletion := false
	for {
		select {
		case event := <-eventCh:
			switch e := event.(type) {
			case events.TurnCompleted:
				sawFirstCompletion = true
			case events.TurnStarted:
				if !sawFirstCompletion {
					t.Fatalf("second turn started before the first completed")
				}
				if e.Utterance != "second question" {
					t.Fatalf("unexpected second utterance %q", e.Utterance)
				}
				return
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for the second turn")
		}
	}
}

func TestSessionTransportReplyWinsWhilePipelineRuns(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	committedCh := make(chan *Response, 1)
	session := NewSession("race",
		WithEngine(blockingEngine(started, release)),
		WithSynthesizer(SynthesizerFunc(func(ctx context.Context, text string, onAudio func([]byte)) error {
			t.Errorf("transport-default winner must not be re-synthesized")
			return nil
		})),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("tell me something"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the pipeline to start")
	}

	if !session.CommitTransportResponse("the transport already answered") {
		t.Fatalf("expected the transport reply to win while the pipeline is still running")
	}

	select {
	case committed := <-committedCh:
		if committed.Source != SourceTransportDefault {
			t.Fatalf("expected transport-default winner, got %q", committed.Source)
		}
		if committed.Text != "the transport already answered" {
			t.Fatalf("unexpected committed text %q", committed.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the committed response")
	}
}

func TestSessionLateTransportReplyLoses(t *testing.T) {
	committedCh := make(chan *Response, 1)
	turnDone := make(chan struct{}, 1)
	session := NewSession("late",
		WithEngine(fastEngine()),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("what should I bring"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	select {
	case committed := <-committedCh:
		if committed.Source != SourceOrchestrator {
			t.Fatalf("expected orchestrator winner, got %q", committed.Source)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the committed response")
	}
	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for turn completion")
	}

	// The turn is over and already answered; a straggling reply for it
	// must not deliver.
	if session.CommitTransportResponse("autonomous answer to the same utterance") {
		t.Fatalf("expected a transport reply for an answered turn to be discarded")
	}

	// A reply arriving during a later turn's window must lose arbitration.
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	blocked := NewSession("late-2",
		WithEngine(blockingEngine(started, release)),
		WithResponseCallback(func(*Response) {}),
	)
	defer blocked.Close()
	blocked.Start(ctx)

	if err := blocked.SubmitUtterance("another question"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the pipeline to start")
	}

	if !blocked.CommitTransportResponse("first transport reply") {
		t.Fatalf("expected the first transport reply to win")
	}
	if blocked.CommitTransportResponse("second transport reply") {
		t.Fatalf("expected the second transport reply to lose the spent gate")
	}
}

func TestSessionGreetingPassesThroughBeforeFirstTurn(t *testing.T) {
	session := NewSession("echo", WithEngine(fastEngine()))
	defer session.Close()

	if !session.CommitTransportResponse("greeting before any turn") {
		t.Fatalf("expected the pre-turn greeting to pass through")
	}
}

func TestSessionSlowPipelineNeverOverlapsNextTurn(t *testing.T) {
	// Every stage outlives the gate deadline, so each turn is answered by
	// the deadline fallback while its pipeline is still running. The stale
	// run must be reaped before the next turn starts.
	var active, maxActive atomic.Int32
	engine := NewEngine(stageFunc(func(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
		current := active.Add(1)
		defer active.Add(-1)
		for {
			observed := maxActive.Load()
			if current <= observed || maxActive.CompareAndSwap(observed, current) {
				break
			}
		}
		select {
		case <-time.After(500 * time.Millisecond):
			return okResult(kind), nil
		case <-ctx.Done():
			return agents.Result{}, ctx.Err()
		}
	}), WithStageDeadline(time.Second), WithStageRetries(0))

	committedCh := make(chan *Response, 8)
	turnDone := make(chan struct{}, 8)
	session := NewSession("overlap",
		WithEngine(engine),
		WithGateDeadline(20*time.Millisecond),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	const turns = 5
	for i := 0; i < turns; i++ {
		if err := session.SubmitUtterance("a question that outlives its deadline"); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	for i := 0; i < turns; i++ {
		select {
		case committed := <-committedCh:
			if !committed.Fallback {
				t.Fatalf("expected the deadline fallback for turn %d, got %+v", i, committed)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for turn %d to commit", i)
		}
		select {
		case <-turnDone:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for turn %d to complete", i)
		}
	}

	if got := maxActive.Load(); got > 1 {
		t.Fatalf("expected at most one pipeline run at a time, observed %d concurrent stage calls", got)
	}
}

func TestSessionGateDeadlineDeliversFallback(t *testing.T) {
	committedCh := make(chan *Response, 1)
	// No engine: nothing will ever commit, so the gate must.
	session := NewSession("deadline",
		WithGateDeadline(50*time.Millisecond),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("anyone there?"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	select {
	case committed := <-committedCh:
		if !committed.Fallback {
			t.Fatalf("expected the fallback apology, got %+v", committed)
		}
		if committed.Text != fallbackApology {
			t.Fatalf("unexpected fallback text %q", committed.Text)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the deadline fallback")
	}
}

func TestSessionBargeInCancelAbortsInFlightTurn(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	defer close(release)

	eventCh := make(chan events.Event, 64)
	session := NewSession("barge",
		WithEngine(blockingEngine(started, release)),
		WithBargeInPolicy(BargeInCancel),
		WithEventCallback(func(event events.Event) { eventCh <- event }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("first question"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the first turn to start")
	}

	if err := session.SubmitUtterance("actually, never mind that"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	awaitEvent[events.TurnCancelled](t, eventCh)
	second := awaitEvent[events.TurnStarted](t, eventCh)
	if second.Utterance != "actually, never mind that" {
		t.Fatalf("expected the barge-in utterance to start next, got %q", second.Utterance)
	}
}

func TestSessionRejectsUtterancesAfterClose(t *testing.T) {
	session := NewSession("closed", WithEngine(fastEngine()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)
	session.Close()
	session.AwaitCompletion()

	if err := session.SubmitUtterance("too late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if state := session.State(); state != StateClosing {
		t.Fatalf("expected closing state, got %q", state)
	}
}

func TestSessionTransportFailureFailsInFlightTurn(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	eventCh := make(chan events.Event, 64)
	session := NewSession("transport-fail",
		WithEngine(blockingEngine(started, release)),
		WithEventCallback(func(event events.Event) { eventCh <- event }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("a doomed question"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the turn to start")
	}

	session.FailTransport(errors.New("websocket reset by peer"))

	awaitEvent[events.TurnFailed](t, eventCh)
	if err := session.SubmitUtterance("anyone?"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after transport failure, got %v", err)
	}
}

func TestSessionStartAfterCloseIsRefused(t *testing.T) {
	session := NewSession("never-started", WithEngine(fastEngine()))
	session.Close()

	if session.Start(context.Background()) {
		t.Fatalf("expected Start to refuse a closed session")
	}
}

func TestSessionCarriesFactsAcrossTurns(t *testing.T) {
	contextsSeen := make(chan map[string]string, 8)
	engine := NewEngine(stageFunc(func(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
		if kind == agents.StageInfo {
			contextsSeen <- req.Context
			return agents.Result{Text: "- item", Facts: map[string]string{"symptom": "chest pain"}}, nil
		}
		return okResult(kind), nil
	}))

	turnDone := make(chan struct{}, 2)
	session := NewSession("facts",
		WithEngine(engine),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("I have chest pain"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-contextsSeen
	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the first turn")
	}

	if got := session.Facts()["symptom"]; got != "chest pain" {
		t.Fatalf("expected the symptom fact retained on the session, got %q", got)
	}

	if err := session.SubmitUtterance("when is my appointment"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case seen := <-contextsSeen:
		if seen["symptom"] != "chest pain" {
			t.Fatalf("expected the second turn to start from retained facts, got %v", seen)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the second turn's stage call")
	}
}

func TestSessionStateTransitionsThroughTurn(t *testing.T) {
	states := make(chan SessionState, 32)
	turnDone := make(chan struct{}, 1)
	session := NewSession("states",
		WithEngine(fastEngine()),
		WithStateCallback(func(state SessionState) { states <- state }),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("walk me through it"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the turn")
	}

	var observed []SessionState
	for {
		select {
		case state := <-states:
			observed = append(observed, state)
			continue
		default:
		}
		break
	}

	wantOrder := []SessionState{StateProcessing, StateSpeaking, StateIdle}
	i := 0
	for _, state := range observed {
		if i < len(wantOrder) && state == wantOrder[i] {
			i++
		}
	}
	if i != len(wantOrder) {
		t.Fatalf("expected states %v in order, observed %v", wantOrder, observed)
	}
}
