package orchestration

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// minUtteranceRunes guards against starting a turn on noise: very short
// final transcripts (filler sounds, cut-off words) are dropped.
const minUtteranceRunes = 3

// TranscriptAdapter normalizes inbound transcript deltas into at most one
// finalized utterance per spoken turn. It never decides content; it only
// detects the utterance boundary the transport signals and forwards the
// finalized text to the session.
type TranscriptAdapter struct {
	submit func(text string) error

	mu      sync.Mutex
	interim string
}

func newTranscriptAdapter(submit func(text string) error) *TranscriptAdapter {
	return &TranscriptAdapter{submit: submit}
}

// HandlePartial records the latest interim transcript snapshot. Partials
// never start a turn.
func (a *TranscriptAdapter) HandlePartial(transcript string) {
	a.mu.Lock()
	a.interim = transcript
	a.mu.Unlock()
}

// Interim returns the most recent interim transcript snapshot.
func (a *TranscriptAdapter) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// HandleFinal consumes the transport's end-of-speech transcript. Malformed
// or too-short finals are dropped and logged without starting a turn.
func (a *TranscriptAdapter) HandleFinal(transcript string) {
	a.mu.Lock()
	a.interim = ""
	a.mu.Unlock()

	text := strings.TrimSpace(transcript)
	if utf8.RuneCountInString(text) < minUtteranceRunes {
		logger.Debug("dropping short or empty final transcript", "length", utf8.RuneCountInString(text))
		return
	}

	if err := a.submit(text); err != nil {
		logger.Warn("finalized utterance not accepted", "error", err)
	}
}
