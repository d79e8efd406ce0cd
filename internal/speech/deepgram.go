package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramTranscriber uses Deepgram's prerecorded API; Deepgram fetches the
// recording URL itself.
type DeepgramTranscriber struct {
	fromURL func(ctx context.Context, audioURL string) (string, error)
}

// NewDeepgramTranscriber creates a transcriber for model and language, for
// example nova-2 and en-US.
func NewDeepgramTranscriber(apiKey, model, language string) (*DeepgramTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("speech: deepgram api key is required")
	}
	if model == "" {
		model = "nova-2"
	}
	if language == "" {
		language = "en-US"
	}

	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	dg := api.New(client.NewREST(apiKey, &interfaces.ClientOptions{}))
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       model,
		Language:    language,
		SmartFormat: true,
		Punctuate:   true,
	}

	return newDeepgramTranscriber(func(ctx context.Context, audioURL string) (string, error) {
		res, err := dg.FromURL(ctx, audioURL, options)
		if err != nil {
			return "", err
		}
		if res == nil || res.Results == nil {
			return "", nil
		}
		var transcript strings.Builder
		for _, channel := range res.Results.Channels {
			if len(channel.Alternatives) > 0 {
				transcript.WriteString(channel.Alternatives[0].Transcript)
				break
			}
		}
		return transcript.String(), nil
	}), nil
}

func newDeepgramTranscriber(fromURL func(ctx context.Context, audioURL string) (string, error)) *DeepgramTranscriber {
	return &DeepgramTranscriber{fromURL: fromURL}
}

// Transcribe implements Transcriber.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("%w: no recording url", ErrTranscriptionFailed)
	}
	ctx, span := tracer.Start(ctx, "speech.deepgram.transcribe")
	defer span.End()

	transcript, err := d.fromURL(ctx, audioURL)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: deepgram: %v", ErrTranscriptionFailed, err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrTranscriptionFailed)
	}
	return transcript, nil
}
