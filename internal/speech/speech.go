// Package speech adapts vendor speech-to-text and text-to-speech services to
// the call flow. Every failure maps onto ErrTranscriptionFailed or
// ErrSynthesisFailed so callers can degrade instead of faulting.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrTranscriptionFailed covers a missing recording, a vendor error and an empty transcript.
	ErrTranscriptionFailed = errors.New("speech: transcription failed")
	// ErrSynthesisFailed covers vendor errors and empty audio.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
)

// Transcriber turns a recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Synthesizer renders reply text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioStore publishes audio and returns a URL the telephony provider can fetch.
type AudioStore interface {
	Put(ctx context.Context, key string, audio []byte) (string, error)
}

// NoopTranscriber is used when no STT provider is configured. Every
// recording is reported as not understood.
type NoopTranscriber struct{}

// Transcribe implements Transcriber.
func (NoopTranscriber) Transcribe(context.Context, string) (string, error) {
	return "", ErrTranscriptionFailed
}

// NoopSynthesizer is used when no TTS provider is configured.
type NoopSynthesizer struct{}

// Synthesize implements Synthesizer.
func (NoopSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	return nil, ErrSynthesisFailed
}
