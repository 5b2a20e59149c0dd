package orchestration

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents/caregiver"
)

// TestChestPainScenario walks a full turn through the deterministic
// caregiver backend: finalized utterance in, exactly one committed response
// and one ordered audio stream out.
func TestChestPainScenario(t *testing.T) {
	var audio [][]byte
	committedCh := make(chan *Response, 4)
	turnDone := make(chan struct{}, 1)
	suppressions := 0

	session := NewSession("scenario",
		WithEngine(NewEngine(caregiver.New())),
		WithSynthesizer(SynthesizerFunc(func(ctx context.Context, text string, onAudio func([]byte)) error {
			onAudio([]byte("chunk-1"))
			onAudio([]byte("chunk-2"))
			return nil
		})),
		WithTransportNegotiator(TransportNegotiatorFunc(func(ctx context.Context) error {
			suppressions++
			return nil
		})),
		WithAudioCallback(func(chunk []byte) { audio = append(audio, chunk) }),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	session.Adapter().HandleFinal("I have chest pain and need to prepare for my cardiology appointment")

	var committed *Response
	select {
	case committed = <-committedCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the committed response")
	}
	select {
	case <-turnDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for turn completion")
	}

	if committed.Source != SourceOrchestrator || committed.Fallback {
		t.Fatalf("expected a real orchestrator response, got %+v", committed)
	}
	if !strings.Contains(committed.Text, "checklist") {
		t.Fatalf("expected the spoken response to reference the checklist, got %q", committed.Text)
	}
	if committed.Card == nil || committed.Card.Title != "Cardiology Appointment Preparation" {
		t.Fatalf("expected a cardiology card, got %+v", committed.Card)
	}
	if len(committed.Trace) != len(agents.Stages()) {
		t.Fatalf("expected a full stage trace, got %d invocations", len(committed.Trace))
	}
	for _, invocation := range committed.Trace {
		if invocation.Status != agents.StatusSucceeded {
			t.Fatalf("expected stage %q to succeed, got %q", invocation.Stage, invocation.Status)
		}
	}

	if facts := session.Facts(); facts["symptom"] != "chest pain" || facts["appointment_type"] != "cardiology" {
		t.Fatalf("expected extracted facts retained on the session, got %v", facts)
	}

	if suppressions != 1 {
		t.Fatalf("expected one suppression negotiation, got %d", suppressions)
	}
	if len(audio) != 2 || !bytes.Equal(audio[0], []byte("chunk-1")) || !bytes.Equal(audio[1], []byte("chunk-2")) {
		t.Fatalf("expected one ordered audio stream, got %v", audio)
	}

	// Exactly one response committed for the turn.
	select {
	case extra := <-committedCh:
		t.Fatalf("unexpected second committed response: %+v", extra)
	default:
	}
}

// TestSuppressionFailureStillAnswersOnce keeps the turn correct when the
// transport refuses suppression and answers on its own anyway.
func TestSuppressionFailureStillAnswersOnce(t *testing.T) {
	committedCh := make(chan *Response, 4)
	turnDone := make(chan struct{}, 1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)

	session := NewSession("suppression",
		WithEngine(blockingEngine(started, release)),
		WithTransportNegotiator(TransportNegotiatorFunc(func(ctx context.Context) error {
			return context.DeadlineExceeded
		})),
		WithResponseCallback(func(response *Response) { committedCh <- response }),
		WithTurnCompleteCallback(func() { turnDone <- struct{}{} }),
	)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.Start(ctx)

	if err := session.SubmitUtterance("suppress this turn"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the pipeline to start")
	}

	if !session.CommitTransportResponse("autonomous answer") {
		t.Fatalf("expected the unsuppressed transport reply to win the race")
	}

	select {
	case committed := <-committedCh:
		if committed.Source != SourceTransportDefault {
			t.Fatalf("expected the transport winner, got %q", committed.Source)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the committed response")
	}
	select {
	case <-turnDone:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for turn completion")
	}

	select {
	case extra := <-committedCh:
		t.Fatalf("unexpected second committed response: %+v", extra)
	default:
	}
}
