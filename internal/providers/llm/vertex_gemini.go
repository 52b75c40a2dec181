package llm

import (
	"context"
	"net/http"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName, credentialsFile string) (*VertexGemini, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location, opts...)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// Complete replays the history as a chat session and sends the newest
// user message. The model handle is per call since system instructions
// differ between doctors.
func (v *VertexGemini) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.History) == 0 {
		return "", &Error{Status: http.StatusBadRequest, Detail: "empty history"}
	}

	m := v.client.GenerativeModel(v.modelName)
	if req.SystemPrompt != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.SystemPrompt)}}
	}
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}

	turns := geminiTurns(req.History)
	cs := m.StartChat()
	last := turns[len(turns)-1]
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  role,
			Parts: []vertexgenai.Part{vertexgenai.Text(msg.Content)},
		})
	}

	resp, err := cs.SendMessage(ctx, vertexgenai.Text(last.Content))
	if err != nil {
		return "", vertexError(err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String(), nil
}

// callOpener stands in for the caller when the agent spoke first.
const callOpener = "(call connected)"

// geminiTurns reshapes history for Gemini chats, which must open with a
// user turn and alternate roles. Consecutive messages of one role are
// joined.
func geminiTurns(history []Message) []Message {
	out := make([]Message, 0, len(history)+1)
	if history[0].Role == RoleAssistant {
		out = append(out, Message{Role: RoleUser, Content: callOpener})
	}
	for _, m := range history {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func vertexError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &Error{Status: http.StatusBadGateway, Detail: err.Error(), Err: err}
	}
	return &Error{Status: httpStatusFromCode(st.Code()), Detail: st.Message(), Err: err}
}

func httpStatusFromCode(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
