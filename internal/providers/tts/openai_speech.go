package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const openAIPCMRate = 24000

type OpenAISpeech struct {
	client *openai.Client
	model  openai.SpeechModel
}

func NewOpenAISpeech(apiKey, baseURL, model string) *OpenAISpeech {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAISpeech{client: openai.NewClientWithConfig(cfg), model: openai.SpeechModel(model)}
}

func (o *OpenAISpeech) SampleRate() int { return openAIPCMRate }

func (o *OpenAISpeech) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrUnavailable)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}
