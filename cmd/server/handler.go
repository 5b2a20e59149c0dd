package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	orchestration "github.com/team-rrr/voice-multi-agent-accelerator/core"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/agents"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/events"
	"github.com/team-rrr/voice-multi-agent-accelerator/core/transport/voicelive"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Demo server: the browser client is served from the same deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is an inbound JSON control message from the browser client.
type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverMessage is an outbound JSON control message to the browser client.
type serverMessage struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Card     map[string]any `json:"card_data,omitempty"`
	Spoken   string         `json:"spoken_response,omitempty"`
	LowConf  bool           `json:"low_confidence,omitempty"`
	Fallback bool           `json:"fallback,omitempty"`
}

// clientConn serializes writes to the browser websocket.
type clientConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *clientConn) sendJSON(message serverMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(message); err != nil {
		slog.Debug("failed to send client message", "error", err)
	}
}

func (c *clientConn) sendAudio(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		slog.Debug("failed to send client audio", "error", err)
	}
}

type voiceHandler struct {
	config   Config
	registry *orchestration.Registry
	stages   agents.Client
}

// ServeHTTP bridges one browser connection to a voice session: audio and
// control messages up, committed responses and synthesized audio down.
func (h *voiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer socket.Close()
	client := &clientConn{conn: socket}

	if !h.config.HasVoiceLive() {
		client.sendJSON(serverMessage{Type: "error", Text: "voice transport credentials not configured"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, transport, err := h.buildSession(ctx, client, cancel)
	if err != nil {
		slog.Error("failed to connect voice transport", "error", err)
		client.sendJSON(serverMessage{Type: "error", Text: "failed to connect voice transport"})
		return
	}
	defer transport.Close()
	defer h.registry.Remove(session.ID)

	session.Start(ctx)
	client.sendJSON(serverMessage{Type: "ready", Text: "Voice Multi-Agent Assistant is ready! You can speak or send text messages."})
	slog.Info("voice session started", "session_id", session.ID)

	for {
		messageType, payload, err := socket.ReadMessage()
		if err != nil {
			slog.Info("client disconnected", "session_id", session.ID)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := transport.SendAudio(payload); err != nil {
				slog.Warn("failed to forward audio", "session_id", session.ID, "error", err)
				return
			}

		case websocket.TextMessage:
			var message clientMessage
			if err := json.Unmarshal(payload, &message); err != nil {
				slog.Debug("ignoring malformed client message", "error", err)
				continue
			}
			switch message.Type {
			case "text":
				// Typed input follows the same path as a finalized
				// transcript.
				session.Handle(events.NewUserTranscriptFinal(message.Text))
			case "cancel":
				session.Handle(events.NewTurnCancel())
			case "ping":
				client.sendJSON(serverMessage{Type: "pong", Text: "Voice Multi-Agent Assistant is alive"})
			}
		}
	}
}

// buildSession wires a session, its transport, and the arbitration between
// them for one browser connection.
func (h *voiceHandler) buildSession(ctx context.Context, client *clientConn, cancel context.CancelFunc) (*orchestration.Session, *voicelive.Client, error) {
	engine := orchestration.NewEngine(h.stages, orchestration.WithStageDeadline(h.config.StageDeadline))

	bargeIn := orchestration.BargeInQueue
	if h.config.BargeIn {
		bargeIn = orchestration.BargeInCancel
	}

	// Autonomous replies stream audio before their transcript arrives, so
	// chunks are held back until the reply wins arbitration; a losing
	// reply's audio is dropped without ever reaching the client.
	var autonomousMu sync.Mutex
	var autonomousBuffer [][]byte
	autonomousStreaming := false

	// The transport is dialed after the session exists because its
	// callbacks target the session; the session reaches the transport
	// through these late-bound adapters. Turn processing starts only
	// after both are wired.
	var transport *voicelive.Client

	var session *orchestration.Session
	session = h.registry.Create(
		orchestration.WithEngine(engine),
		orchestration.WithBargeInPolicy(bargeIn),
		orchestration.WithAudioCallback(client.sendAudio),
		orchestration.WithSynthesizer(orchestration.SynthesizerFunc(func(ctx context.Context, text string, onAudio func([]byte)) error {
			if transport == nil {
				return fmt.Errorf("voice transport not connected")
			}
			return transport.Synthesize(ctx, text, onAudio)
		})),
		orchestration.WithTransportNegotiator(orchestration.TransportNegotiatorFunc(func(ctx context.Context) error {
			if transport == nil {
				return fmt.Errorf("voice transport not connected")
			}
			return transport.SuppressAutonomousReply(ctx)
		})),
		orchestration.WithResponseCallback(func(response *orchestration.Response) {
			message := serverMessage{
				Type:     "orchestration_response",
				Spoken:   response.Text,
				LowConf:  response.LowConfidence,
				Fallback: response.Fallback,
			}
			if response.Card != nil {
				message.Card = cardPayload(response)
			}
			client.sendJSON(message)
		}),
	)

	transport, err := voicelive.Connect(ctx, voicelive.Config{
		Endpoint: h.config.VoiceLiveEndpoint,
		APIKey:   h.config.VoiceLiveAPIKey,
		Model:    h.config.VoiceLiveModel,
	}, voicelive.Callbacks{
		OnSessionCreated: func(transportSessionID string) {
			slog.Info("voice transport session created",
				"session_id", session.ID, "transport_session_id", transportSessionID)
		},
		OnSpeechStarted: func() {
			// The user is talking over playback; tell the client to stop
			// whatever it is still playing.
			client.sendJSON(serverMessage{Type: "stop_audio"})
			session.Handle(events.NewUserSpeechStarted())
		},
		OnSpeechStopped: func() {
			session.Handle(events.NewUserSpeechEnded())
		},
		OnFinalTranscript: func(transcript string) {
			session.Handle(events.NewUserTranscriptFinal(transcript))
		},
		OnAutonomousAudio: func(chunk []byte) {
			autonomousMu.Lock()
			defer autonomousMu.Unlock()
			if autonomousStreaming {
				client.sendAudio(chunk)
				return
			}
			autonomousBuffer = append(autonomousBuffer, chunk)
		},
		OnAutonomousReply: func(transcript string) {
			won := session.CommitTransportResponse(transcript)
			autonomousMu.Lock()
			buffered := autonomousBuffer
			autonomousBuffer = nil
			autonomousStreaming = won
			autonomousMu.Unlock()

			if !won {
				slog.Info("discarded transport reply audio", "session_id", session.ID)
				return
			}
			for _, chunk := range buffered {
				client.sendAudio(chunk)
			}
		},
		OnError: func(err error) {
			slog.Warn("voice transport error", "session_id", session.ID, "error", err)
		},
		OnConnectionClosed: func(err error) {
			if err != nil {
				session.FailTransport(err)
			}
			cancel()
		},
	})
	if err != nil {
		h.registry.Remove(session.ID)
		return nil, nil, err
	}

	return session, transport, nil
}

// cardPayload flattens the committed response's card and agent trace into
// the client payload shape.
func cardPayload(response *orchestration.Response) map[string]any {
	trace := make([]map[string]string, 0, len(response.Trace))
	for _, invocation := range response.Trace {
		trace = append(trace, map[string]string{
			"name":   string(invocation.Stage),
			"status": string(invocation.Status),
		})
	}
	return map[string]any{
		"title":              response.Card.Title,
		"items":              response.Card.Items,
		"follow_up_question": response.Card.FollowUpQuestion,
		"agents":             trace,
	}
}
