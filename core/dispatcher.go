package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/team-rrr/voice-multi-agent-accelerator/internal/metrics"
	"go.opentelemetry.io/otel/codes"
)

// Synthesizer turns committed response text into audio. Implementations
// deliver chunks through onAudio in arrival order and return once the
// synthesis stream has ended. Backpressure is the collaborator's concern.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, onAudio func(chunk []byte)) error
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text string, onAudio func(chunk []byte)) error

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, onAudio func(chunk []byte)) error {
	return f(ctx, text, onAudio)
}

// synthesisDispatcher forwards a committed response to the synthesis
// collaborator and relays the resulting audio to the transport. It never
// holds more than one in-flight synthesis request per session; playback
// completion (or handoff, when playback progress is not observable) is
// signalled through onPlaybackEnded.
type synthesisDispatcher struct {
	synthesizer     Synthesizer
	onAudio         func(chunk []byte)
	onPlaybackEnded func()

	inFlight atomic.Bool
}

func (d *synthesisDispatcher) Dispatch(ctx context.Context, response *Response) error {
	if response == nil || response.Status != ResponseCommitted {
		return fmt.Errorf("only committed responses can be dispatched")
	}
	if d.synthesizer == nil {
		// No synthesis collaborator wired; the turn completes on handoff.
		d.playbackEnded()
		return nil
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("synthesis already in flight for this session")
	}
	defer d.inFlight.Store(false)

	ctx, span := tracer.Start(ctx, "dispatch synthesis")
	defer span.End()

	start := time.Now()
	err := d.synthesizer.Synthesize(ctx, response.Text, func(chunk []byte) {
		if d.onAudio != nil {
			d.onAudio(chunk)
		}
	})
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		err = fmt.Errorf("failed to synthesize committed response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	d.playbackEnded()
	return nil
}

func (d *synthesisDispatcher) playbackEnded() {
	if d.onPlaybackEnded != nil {
		d.onPlaybackEnded()
	}
}
