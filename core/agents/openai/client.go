// Package openai provides a model-backed stage client using an
// OpenAI-compatible chat completions endpoint (including Azure OpenAI
// deployments exposed through a base URL override).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// stageInstructions holds the system prompt for each pipeline stage,
// mirroring the specialist roles of the reasoning plugins.
var stageInstructions = map[agents.StageKind]string{
	agents.StageInfo: "You gather baseline preparation information for a medical appointment. " +
		"Extract facts from the user's request (at minimum 'symptom' and 'appointment_type' when present) " +
		"and produce a short preparation checklist as your text, one item per line prefixed with '- '.",
	agents.StageContext: "You summarize the patient's recent clinical context relevant to the upcoming " +
		"appointment. Produce a brief plain-text summary and report it as the 'patient_context' fact as well.",
	agents.StageAction: "You merge the preparation checklist and the patient context into a final spoken " +
		"response. Keep it conversational, reference both inputs, and end by offering to send the checklist " +
		"to the user's phone or email.",
}

// stageResult is the structured payload every stage must answer with.
type stageResult struct {
	Text       string            `json:"text"`
	Facts      map[string]string `json:"facts,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// Client invokes pipeline stages against a chat completions backend.
type Client struct {
	api   openaisdk.Client
	model string
}

// Option configures the stage client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
	model   string
}

// WithBaseURL points the client at an OpenAI-compatible endpoint, such as an
// Azure OpenAI deployment.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) { o.baseURL = baseURL }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(o *clientOptions) { o.model = model }
}

// New creates a stage client authenticated with the given API key.
func New(apiKey string, opts ...Option) *Client {
	options := clientOptions{model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(&options)
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if options.baseURL != "" {
		requestOptions = append(requestOptions, option.WithBaseURL(options.baseURL))
	}

	return &Client{
		api:   openaisdk.NewClient(requestOptions...),
		model: options.model,
	}
}

// Invoke runs one stage as a structured chat completion.
func (c *Client) Invoke(ctx context.Context, kind agents.StageKind, req agents.Request) (agents.Result, error) {
	ctx, span := tracer.Start(ctx, "invoke stage")
	defer span.End()
	span.SetAttributes(
		attribute.String("stage.kind", string(kind)),
		attribute.String("request.model", c.model),
	)

	instructions, ok := stageInstructions[kind]
	if !ok {
		err := fmt.Errorf("unknown stage %q", kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agents.Result{}, err
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(stageResult{})

	completion, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(instructions),
			openaisdk.UserMessage(buildPrompt(req)),
		},
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "stage_result",
					Schema: schema,
				},
			},
		},
	})
	if err != nil {
		err = fmt.Errorf("chat completion failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agents.Result{}, err
	}
	if len(completion.Choices) == 0 {
		err := fmt.Errorf("chat completion returned no choices")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agents.Result{}, err
	}

	var parsed stageResult
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &parsed); err != nil {
		err = fmt.Errorf("failed to parse stage result: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agents.Result{}, err
	}

	logger.DebugContext(ctx, "stage answered",
		"stage", string(kind), "facts", len(parsed.Facts), "confidence", parsed.Confidence)

	return agents.Result{
		Text:       parsed.Text,
		Facts:      parsed.Facts,
		Confidence: parsed.Confidence,
	}, nil
}

func buildPrompt(req agents.Request) string {
	if len(req.Context) == 0 {
		return req.Query
	}

	var b strings.Builder
	b.WriteString("Known facts so far:\n")
	encoded, _ := json.Marshal(req.Context)
	b.Write(encoded)
	b.WriteString("\n\nUser request: ")
	b.WriteString(req.Query)
	return b.String()
}
