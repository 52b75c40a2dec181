package stt

import (
	"context"
	"io"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

// NewGoogleSpeech uses application default credentials unless a
// credentials file is given.
func NewGoogleSpeech(ctx context.Context, credentialsFile string) (*GoogleSpeech, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:        c,
		Encoding: speechpb.RecognitionConfig_LINEAR16,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Open(ctx context.Context, cfg Config) (Stream, error) {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = 16000
	}

	s, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		return nil, Classify(err)
	}

	err = s.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            cfg.SampleRateHz,
					LanguageCode:               cfg.Language,
					EnableAutomaticPunctuation: true,
					Model:                      cfg.Model,
				},
				InterimResults:  true,
				SingleUtterance: cfg.SingleUtterance,
			},
		},
	})
	if err != nil {
		return nil, Classify(err)
	}
	return &googleStream{s: s}, nil
}

type googleStream struct {
	s speechpb.Speech_StreamingRecognizeClient

	pending []Result
}

func (g *googleStream) Send(pcm []byte) error {
	err := g.s.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
	if err == io.EOF {
		// the server closed the stream; Recv reports why
		return nil
	}
	return Classify(err)
}

func (g *googleStream) CloseSend() error { return g.s.CloseSend() }

func (g *googleStream) Recv() (Result, error) {
	for len(g.pending) == 0 {
		resp, err := g.s.Recv()
		if err != nil {
			return Result{}, Classify(err)
		}
		if resp.Error != nil && resp.Error.Code != 0 {
			return Result{}, Classify(status.ErrorProto(resp.Error))
		}
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
				continue
			}
			g.pending = append(g.pending, Result{
				Text:  r.Alternatives[0].Transcript,
				Final: r.IsFinal,
			})
		}
	}
	r := g.pending[0]
	g.pending = g.pending[1:]
	return r, nil
}
