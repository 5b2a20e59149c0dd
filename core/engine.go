package orchestration

import (
	"context"
	"errors"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"github.com/team-rrr/voice-multi-agent-accelerator/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultStageDeadline = 3 * time.Second
	defaultStageRetries  = 1
)

// Engine runs the fixed stage pipeline for one utterance: Info, then
// Context, then Action, each stage feeding its facts into the conversation
// context before the next one starts. A later stage never begins before its
// predecessor reaches a terminal status.
//
// Failure policy per stage:
//
//   - Info failure aborts the pipeline and yields the fallback apology.
//   - Context failure degrades: the pipeline continues on partial context
//     and the response is marked low-confidence.
//   - Action always attempts a best-effort answer; only a total failure at
//     this final stage aborts the turn.
type Engine struct {
	client        agents.Client
	stageDeadline time.Duration
	stageRetries  int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithStageDeadline sets the per-stage invocation deadline.
func WithStageDeadline(deadline time.Duration) EngineOption {
	return func(e *Engine) { e.stageDeadline = deadline }
}

// WithStageRetries sets how many times a timed-out stage call is retried
// before its failure policy applies.
func WithStageRetries(retries int) EngineOption {
	return func(e *Engine) { e.stageRetries = retries }
}

// NewEngine creates an engine invoking stages through the given client.
func NewEngine(client agents.Client, opts ...EngineOption) *Engine {
	engine := &Engine{
		client:        client,
		stageDeadline: defaultStageDeadline,
		stageRetries:  defaultStageRetries,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// TurnDeadline returns the default gate deadline derived from the stage
// budget: the sum of worst-case stage deadlines plus the given slack.
func (e *Engine) TurnDeadline(slack time.Duration) time.Duration {
	perStage := e.stageDeadline * time.Duration(1+e.stageRetries)
	return perStage*time.Duration(len(agents.Stages())) + slack
}

// Run executes the pipeline. Stage errors are handled locally per the
// failure policy and never surface to the caller as raw errors; the only
// error return is a terminal action-stage failure, which leaves the turn to
// the gate's deadline fallback.
func (e *Engine) Run(ctx context.Context, utterance Utterance, conversation *ConversationContext) (*Response, []agents.Invocation, error) {
	ctx, span := tracer.Start(ctx, "run stage pipeline")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", utterance.SessionID))

	var invocations []agents.Invocation
	lowConfidence := false

	info := e.invokeStage(ctx, agents.StageInfo, utterance.Text, conversation)
	invocations = append(invocations, info)
	if info.Status != agents.StatusSucceeded {
		stageErr := &agents.Error{Stage: agents.StageInfo, Cause: info.Err}
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, stageErr.Error())
		logger.ErrorContext(ctx, "info stage failed, aborting pipeline",
			"session_id", utterance.SessionID, "error", stageErr)
		return newFallbackResponse(invocations), invocations, nil
	}
	conversation.Merge(info.Output.Facts)
	conversation.Set("info_checklist", info.Output.Text)

	patientContext := e.invokeStage(ctx, agents.StageContext, utterance.Text, conversation)
	invocations = append(invocations, patientContext)
	if patientContext.Status != agents.StatusSucceeded {
		stageErr := &agents.Error{Stage: agents.StageContext, Cause: patientContext.Err}
		span.RecordError(stageErr)
		logger.WarnContext(ctx, "context stage failed, continuing with partial context",
			"session_id", utterance.SessionID, "error", stageErr)
		lowConfidence = true
	} else {
		conversation.Merge(patientContext.Output.Facts)
		conversation.Set("patient_context", patientContext.Output.Text)
	}

	action := e.invokeStage(ctx, agents.StageAction, utterance.Text, conversation)
	invocations = append(invocations, action)
	if action.Status != agents.StatusSucceeded {
		stageErr := &agents.Error{Stage: agents.StageAction, Cause: action.Err}
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, stageErr.Error())
		return nil, invocations, stageErr
	}

	card := FormatCard(invocations)
	response := &Response{
		Text:          action.Output.Text,
		Card:          &card,
		Source:        SourceOrchestrator,
		Status:        ResponsePending,
		LowConfidence: lowConfidence,
		Trace:         invocations,
	}
	return response, invocations, nil
}

// invokeStage runs one stage call with the configured deadline, retrying
// timeouts up to the retry budget. The returned invocation always carries a
// terminal status and a completion timestamp.
func (e *Engine) invokeStage(ctx context.Context, kind agents.StageKind, query string, conversation *ConversationContext) agents.Invocation {
	ctx, span := tracer.Start(ctx, "invoke "+string(kind)+" stage")
	defer span.End()

	invocation := agents.Invocation{
		Stage:  kind,
		Input:  agents.Request{Query: query, Context: conversation.Snapshot()},
		Status: agents.StatusPending,
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, e.stageDeadline)
		output, err := e.client.Invoke(stageCtx, kind, invocation.Input)
		cancel()

		if err == nil {
			invocation.Output = output
			invocation.Status = agents.StatusSucceeded
			break
		}

		timedOut := errors.Is(err, context.DeadlineExceeded)
		if timedOut && ctx.Err() == nil && attempt < e.stageRetries {
			invocation.Retries++
			span.AddEvent("stage timed out, retrying")
			continue
		}

		invocation.Err = err
		if timedOut {
			invocation.Status = agents.StatusTimedOut
			metrics.StageErrors.WithLabelValues(string(kind), "timeout").Inc()
		} else {
			invocation.Status = agents.StatusFailed
			metrics.StageErrors.WithLabelValues(string(kind), "error").Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		break
	}

	invocation.CompletedAt = time.Now()
	metrics.StageDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("stage.status", string(invocation.Status)),
		attribute.Int("stage.retries", invocation.Retries),
	)
	return invocation
}
