// Package voicelive implements the realtime voice transport client: a
// persistent websocket carrying caller audio up and transcripts, replies,
// and synthesized audio down.
//
// The transport is also an autonomous responder: unless negotiated
// otherwise it generates its own reply to every detected utterance. The
// client surfaces those replies through OnAutonomousReply so the session's
// response gate can arbitrate them against the orchestrator's answer, and
// implements best-effort suppression via SuppressAutonomousReply.
package voicelive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/team-rrr/voice-multi-agent-accelerator/internal/utils"
)

const apiVersion = "2025-05-01-preview"

const sessionInstructions = "You are a Voice Multi-Agent Assistant that helps users prepare for " +
	"medical appointments. When connecting, say: 'Voice Multi-Agent Assistant is ready! You can " +
	"start speaking to get personalized appointment preparation help.'"

// Config carries the connection parameters for the voice endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
}

// Callbacks receive inbound transport events. Nil callbacks are skipped.
type Callbacks struct {
	OnSessionCreated   func(sessionID string)
	OnSpeechStarted    func()
	OnSpeechStopped    func()
	OnFinalTranscript  func(transcript string)
	OnTranscriptFailed func()
	OnAutonomousReply  func(transcript string)
	OnAutonomousAudio  func(chunk []byte)
	OnError            func(err error)
	OnConnectionClosed func(err error)
}

// Client is one websocket connection to the voice endpoint.
type Client struct {
	config    Config
	callbacks Callbacks

	conn      *websocket.Conn
	sendQueue chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once

	// mu guards the in-flight requested synthesis, if any. Audio deltas
	// belong to it; otherwise they are autonomous-reply audio.
	mu         sync.Mutex
	synthAudio func([]byte)
	synthDone  chan struct{}
	suppressed bool
}

// Connect dials the endpoint, sends the initial session configuration, and
// starts the sender and receiver loops.
func Connect(ctx context.Context, config Config, callbacks Callbacks) (*Client, error) {
	endpoint, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	endpoint.Scheme = strings.Replace(endpoint.Scheme, "http", "ws", 1)
	endpoint.Path = "/voice-live/realtime"
	query := endpoint.Query()
	query.Set("api-version", apiVersion)
	query.Set("model", config.Model)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("x-ms-client-request-id", uuid.NewString())
	header.Set("api-key", config.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	c := &Client{
		config:    config,
		callbacks: callbacks,
		conn:      conn,
		sendQueue: make(chan []byte, 64),
		closeCh:   make(chan struct{}),
	}

	if err := c.sendJSON(defaultSessionConfig()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send session configuration: %w", err)
	}

	go c.senderLoop()
	go c.receiverLoop()

	return c, nil
}

func defaultSessionConfig() sessionUpdate {
	return sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionConfig{
			Instructions: sessionInstructions,
			TurnDetection: &turnDetectionConfig{
				Type:              "azure_semantic_vad",
				Threshold:         0.3,
				PrefixPaddingMs:   200,
				SilenceDurationMs: 200,
				RemoveFillerWords: false,
			},
			InputAudioNoiseReduct:   &typedConfig{Type: "azure_deep_noise_suppression"},
			InputAudioEchoCancel:    &typedConfig{Type: "server_echo_cancellation"},
			Voice:                   &voiceConfig{Name: "en-US-Ava:DragonHDLatestNeural", Type: "azure-standard", Temperature: 0.8},
			InputAudioTranscription: &transcriptionConfig{Model: "whisper-1"},
		},
	}
}

// SendAudio queues a caller audio frame for transcription.
func (c *Client) SendAudio(audio []byte) error {
	if len(audio) == 0 {
		return nil
	}
	payload, err := json.Marshal(audioAppend{
		Type:  typeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		return fmt.Errorf("failed to encode audio frame: %w", err)
	}
	return c.enqueue(payload)
}

// SuppressAutonomousReply renegotiates turn detection so the transport
// stops answering utterances on its own. The transport may not honor it;
// callers must keep commit arbitration armed regardless.
func (c *Client) SuppressAutonomousReply(ctx context.Context) error {
	c.mu.Lock()
	alreadySuppressed := c.suppressed
	c.suppressed = true
	c.mu.Unlock()
	if alreadySuppressed {
		return nil
	}

	update := sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionConfig{
			TurnDetection: &turnDetectionConfig{
				Type:              "azure_semantic_vad",
				Threshold:         0.3,
				PrefixPaddingMs:   200,
				SilenceDurationMs: 200,
				CreateResponse:    utils.Ptr(false),
			},
		},
	}
	if err := c.sendJSON(update); err != nil {
		return fmt.Errorf("failed to negotiate suppression: %w", err)
	}
	return nil
}

// Synthesize speaks the given text through the transport's voice: it
// injects the text as a conversation item, requests a response, and relays
// the resulting audio deltas to onAudio until the response completes.
func (c *Client) Synthesize(ctx context.Context, text string, onAudio func(chunk []byte)) error {
	done := make(chan struct{})

	c.mu.Lock()
	if c.synthDone != nil {
		c.mu.Unlock()
		return fmt.Errorf("synthesis already in flight")
	}
	c.synthAudio = onAudio
	c.synthDone = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.synthAudio = nil
		c.synthDone = nil
		c.mu.Unlock()
	}()

	item, err := json.Marshal(itemCreate{
		Type: typeItemCreate,
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode synthesis item: %w", err)
	}
	request, err := json.Marshal(responseCreate{Type: typeResponseCreate})
	if err != nil {
		return fmt.Errorf("failed to encode response request: %w", err)
	}
	if err := c.enqueue(item); err != nil {
		return err
	}
	if err := c.enqueue(request); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-c.closeCh:
		return fmt.Errorf("connection closed during synthesis")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.Close()
	})
}

func (c *Client) enqueue(payload []byte) error {
	select {
	case <-c.closeCh:
		return fmt.Errorf("connection closed")
	case c.sendQueue <- payload:
		return nil
	}
}

func (c *Client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) senderLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case payload := <-c.sendQueue:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.reportError(fmt.Errorf("failed to send message: %w", err))
				return
			}
		}
	}
}

func (c *Client) receiverLoop() {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
				err = nil
			default:
			}
			if c.callbacks.OnConnectionClosed != nil {
				c.callbacks.OnConnectionClosed(err)
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			c.reportError(fmt.Errorf("failed to decode event: %w", err))
			continue
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event serverEvent) {
	switch event.Type {
	case typeSessionCreated:
		if c.callbacks.OnSessionCreated != nil && event.Session != nil {
			c.callbacks.OnSessionCreated(event.Session.ID)
		}

	case typeSpeechStarted:
		if c.callbacks.OnSpeechStarted != nil {
			c.callbacks.OnSpeechStarted()
		}

	case typeSpeechStopped:
		if c.callbacks.OnSpeechStopped != nil {
			c.callbacks.OnSpeechStopped()
		}

	case typeTranscriptionCompleted:
		if c.callbacks.OnFinalTranscript != nil {
			c.callbacks.OnFinalTranscript(event.Transcript)
		}

	case typeTranscriptionFailed:
		if c.callbacks.OnTranscriptFailed != nil {
			c.callbacks.OnTranscriptFailed()
		}

	case typeResponseTranscript:
		// A reply transcript for a response we did not request is the
		// transport answering on its own.
		if !c.synthInFlight() && c.callbacks.OnAutonomousReply != nil {
			c.callbacks.OnAutonomousReply(event.Transcript)
		}

	case typeResponseAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			c.reportError(fmt.Errorf("failed to decode audio delta: %w", err))
			return
		}
		c.mu.Lock()
		synthAudio := c.synthAudio
		c.mu.Unlock()
		if synthAudio != nil {
			synthAudio(audio)
		} else if c.callbacks.OnAutonomousAudio != nil {
			c.callbacks.OnAutonomousAudio(audio)
		}

	case typeResponseDone:
		c.mu.Lock()
		done := c.synthDone
		c.synthDone = nil
		c.synthAudio = nil
		c.mu.Unlock()
		if done != nil {
			close(done)
		}

	case typeError:
		c.reportError(fmt.Errorf("transport error: %s", string(event.Error)))

	case typeInputAudioCleared:
		// Informational only.
	}
}

func (c *Client) synthInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synthDone != nil
}

func (c *Client) reportError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
