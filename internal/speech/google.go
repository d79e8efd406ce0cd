package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dermavoice.internal.speech")

const maxRecordingBytes = 10 << 20

type recognizeAPI interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// GoogleTranscriber downloads the recording and sends it to Cloud Speech.
type GoogleTranscriber struct {
	api        recognizeAPI
	httpClient *http.Client
	language   string
}

// NewGoogleTranscriber wraps a Cloud Speech client.
func NewGoogleTranscriber(c *speechapi.Client, language string) *GoogleTranscriber {
	return newGoogleTranscriber(c, &http.Client{Timeout: 15 * time.Second}, language)
}

func newGoogleTranscriber(api recognizeAPI, httpClient *http.Client, language string) *GoogleTranscriber {
	if language == "" {
		language = "en-US"
	}
	return &GoogleTranscriber{api: api, httpClient: httpClient, language: language}
}

// Transcribe implements Transcriber.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("%w: no recording url", ErrTranscriptionFailed)
	}
	ctx, span := tracer.Start(ctx, "speech.google.transcribe")
	defer span.End()

	audio, err := g.download(ctx, audioURL)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	resp, err := g.api.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               g.language,
			Model:                      "phone_call",
			UseEnhanced:                true,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: google speech: %v", ErrTranscriptionFailed, err)
	}

	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			transcript.WriteString(alts[0].GetTranscript())
			transcript.WriteString(" ")
		}
	}
	text := strings.TrimSpace(transcript.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrTranscriptionFailed)
	}
	return text, nil
}

func (g *GoogleTranscriber) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build recording request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch recording: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("recording is empty")
	}
	return data, nil
}

type synthesizeAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// GoogleSynthesizer renders MP3 audio with Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	api       synthesizeAPI
	voiceName string
	language  string
}

// NewGoogleSynthesizer wraps a Text-to-Speech client. Pass a
// *texttospeech.Client from cloud.google.com/go/texttospeech/apiv1.
func NewGoogleSynthesizer(api synthesizeAPI, voiceName, language string) *GoogleSynthesizer {
	if language == "" {
		language = "en-US"
	}
	return &GoogleSynthesizer{api: api, voiceName: voiceName, language: language}
}

// Synthesize implements Synthesizer.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}
	ctx, span := tracer.Start(ctx, "speech.google.synthesize")
	defer span.End()

	resp, err := g.api.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: g.language,
			Name:         g.voiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: google tts: %v", ErrSynthesisFailed, err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesisFailed)
	}
	return resp.GetAudioContent(), nil
}
