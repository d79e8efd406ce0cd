package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// Voice turns reply text into a playable audio URL.
type Voice struct {
	synth     Synthesizer
	store     AudioStore
	logger    *logging.Logger
	onFailure func(kind string)
	timeout   time.Duration
}

// NewVoice composes a synthesizer and an audio store. Either may be nil, in
// which case Render always returns "".
func NewVoice(synth Synthesizer, store AudioStore, logger *logging.Logger) *Voice {
	if logger == nil {
		logger = logging.Default()
	}
	return &Voice{synth: synth, store: store, logger: logger, timeout: 5 * time.Second}
}

// OnFailure registers a callback invoked with "synthesis" or "upload".
func (v *Voice) OnFailure(fn func(kind string)) {
	v.onFailure = fn
}

// Enabled reports whether Render can produce audio at all.
func (v *Voice) Enabled() bool {
	if v == nil || v.synth == nil || v.store == nil {
		return false
	}
	_, noop := v.synth.(NoopSynthesizer)
	return !noop
}

// Render synthesizes text and publishes it. Any failure is logged and yields
// "", meaning the caller should fall back to text-to-speech markup.
func (v *Voice) Render(ctx context.Context, callID, text string) string {
	if !v.Enabled() {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	audio, err := v.synth.Synthesize(ctx, text)
	if err != nil {
		v.logger.Warn("speech synthesis failed, using text markup", "call_sid", callID, "error", err)
		v.fail("synthesis")
		return ""
	}

	key := fmt.Sprintf("%s/%s.mp3", callID, uuid.NewString())
	url, err := v.store.Put(ctx, key, audio)
	if err != nil {
		v.logger.Warn("audio upload failed, using text markup", "call_sid", callID, "error", err)
		v.fail("upload")
		return ""
	}
	return url
}

func (v *Voice) fail(kind string) {
	if v.onFailure != nil {
		v.onFailure(kind)
	}
}
