package events

const (
	// KindPlaybackStarted identifies the start of committed-response audio delivery.
	KindPlaybackStarted Kind = "playback.started"
	// KindPlaybackEnded identifies the end of committed-response audio delivery.
	KindPlaybackEnded Kind = "playback.ended"
)

// PlaybackStarted marks the first synthesized chunk handed to the transport.
type PlaybackStarted struct{ Base }

// NewPlaybackStarted creates a playback started event.
func NewPlaybackStarted() PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted)}
}

// PlaybackEnded marks the end of audio delivery for the committed response.
type PlaybackEnded struct{ Base }

// NewPlaybackEnded creates a playback ended event.
func NewPlaybackEnded() PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded)}
}
