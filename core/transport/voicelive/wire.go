package voicelive

import "encoding/json"

// Wire event types used by the realtime voice endpoint.
const (
	typeSessionUpdate          = "session.update"
	typeSessionCreated         = "session.created"
	typeInputAudioAppend       = "input_audio_buffer.append"
	typeInputAudioCleared      = "input_audio_buffer.cleared"
	typeSpeechStarted          = "input_audio_buffer.speech_started"
	typeSpeechStopped          = "input_audio_buffer.speech_stopped"
	typeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	typeTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	typeItemCreate             = "conversation.item.create"
	typeResponseCreate         = "response.create"
	typeResponseDone           = "response.done"
	typeResponseTranscript     = "response.audio_transcript.done"
	typeResponseAudioDelta     = "response.audio.delta"
	typeError                  = "error"
)

// serverEvent is the envelope of every inbound wire message.
type serverEvent struct {
	Type       string          `json:"type"`
	Transcript string          `json:"transcript,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Session    *sessionInfo    `json:"session,omitempty"`
	Response   *responseInfo   `json:"response,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

type sessionInfo struct {
	ID string `json:"id"`
}

type responseInfo struct {
	ID string `json:"id"`
}

// sessionUpdate negotiates transport behavior for the connection.
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Instructions            string               `json:"instructions,omitempty"`
	TurnDetection           *turnDetectionConfig `json:"turn_detection,omitempty"`
	InputAudioNoiseReduct   *typedConfig         `json:"input_audio_noise_reduction,omitempty"`
	InputAudioEchoCancel    *typedConfig         `json:"input_audio_echo_cancellation,omitempty"`
	Voice                   *voiceConfig         `json:"voice,omitempty"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
}

type turnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	RemoveFillerWords bool    `json:"remove_filler_words"`
	// CreateResponse controls whether the transport autonomously answers
	// each detected utterance. The response gate negotiates this off; the
	// transport may or may not honor it.
	CreateResponse *bool `json:"create_response,omitempty"`
}

type typedConfig struct {
	Type string `json:"type"`
}

type voiceConfig struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Temperature float64 `json:"temperature,omitempty"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

// audioAppend queues caller audio for transcription.
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// itemCreate injects a text item into the conversation, typically followed
// by a responseCreate to request synthesis.
type itemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreate struct {
	Type string `json:"type"`
}
