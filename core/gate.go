package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// responseGate enforces the single-committed-response invariant for one
// turn. Two response-producing paths can exist concurrently: the stage
// pipeline and the transport's own autonomous reply. Suppression of the
// latter is best-effort, so the gate resolves the race instead of assuming
// it was prevented: first committer wins, every later commit for the same
// token is discarded, and the loser's audio path is never opened.
type responseGate struct {
	token    ResponseToken
	deadline time.Duration

	mu       sync.Mutex
	winner   *Response
	attempts int
	valid    bool

	committed chan struct{}
}

func newResponseGate(token ResponseToken, deadline time.Duration) *responseGate {
	return &responseGate{
		token:     token,
		deadline:  deadline,
		valid:     true,
		committed: make(chan struct{}),
	}
}

// Commit attempts to commit a response under first-committer-wins
// arbitration. The returned bool reports whether the response won. A losing
// response is marked Discarded; a response with a stale or invalidated
// token is rejected with an error and never considered for delivery.
func (g *responseGate) Commit(token ResponseToken, response *Response) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token != g.token {
		response.Status = ResponseDiscarded
		return false, ErrTokenMismatch
	}
	if !g.valid {
		response.Status = ResponseDiscarded
		return false, ErrTokenSpent
	}

	g.attempts++
	if g.winner != nil {
		response.Status = ResponseDiscarded
		if g.attempts == 2 {
			// Both paths answered the same utterance. Resolved, not an
			// error: one side committed successfully.
			metrics.RaceEvents.Inc()
			logger.Warn("response race resolved by first commit",
				"session_id", token.SessionID,
				"turn", token.Turn,
				"winner", string(g.winner.Source),
				"loser", string(response.Source),
			)
		}
		return false, nil
	}

	response.Status = ResponseCommitted
	response.committedAt = time.Now()
	g.winner = response
	close(g.committed)
	return true, nil
}

// Await blocks until a response commits, the gate deadline expires, or ctx
// is cancelled. On deadline it self-commits the fallback apology so the
// user never gets silence. On cancellation the token is invalidated and no
// response is delivered.
func (g *responseGate) Await(ctx context.Context) (*Response, error) {
	span := trace.SpanFromContext(ctx)

	timer := time.NewTimer(g.deadline)
	defer timer.Stop()

	select {
	case <-g.committed:
		winner := g.winnerSnapshot()
		span.AddEvent("response committed", trace.WithAttributes(
			attribute.String("response.source", string(winner.Source)),
		))
		return winner, nil

	case <-timer.C:
		fallback := newFallbackResponse(nil)
		won, err := g.Commit(g.token, fallback)
		if err != nil {
			return nil, err
		}
		if !won {
			// A real response slipped in at the wire; prefer it.
			return g.winnerSnapshot(), nil
		}
		metrics.TurnTimeouts.Inc()
		span.AddEvent("gate deadline expired, fallback committed")
		logger.Warn("no response committed before gate deadline",
			"session_id", g.token.SessionID, "turn", g.token.Turn)
		return fallback, nil

	case <-ctx.Done():
		g.invalidate()
		return nil, ctx.Err()
	}
}

// invalidate spends the token. Used on barge-in cancellation and session
// teardown; subsequent commits are rejected with ErrTokenSpent.
func (g *responseGate) invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.valid = false
}

func (g *responseGate) winnerSnapshot() *Response {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}
