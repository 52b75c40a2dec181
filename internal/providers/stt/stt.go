package stt

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Result is one recognition event. Interim results may be revised; only
// final results are stable.
type Result struct {
	Text  string
	Final bool
}

type Config struct {
	Language        string // e.g. "en-US", "id-ID"
	SampleRateHz    int32
	Model           string // recognizer model, provider default when empty
	SingleUtterance bool
}

// Stream is one live recognition session. Recv returns io.EOF once the
// recognizer has closed the session cleanly.
type Stream interface {
	Send(pcm []byte) error
	Recv() (Result, error)
	CloseSend() error
}

type Recognizer interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
	Close() error
}

type Kind string

const (
	NoInputDetected       Kind = "no_input_detected"
	PermissionDenied      Kind = "permission_denied"
	DeviceError           Kind = "device_error"
	TransientNetworkError Kind = "transient_network_error"
)

// Error is the structured failure reported for a recognition session.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Classify maps a transport error onto a recognition error kind.
// nil and io.EOF stay as they are.
func Classify(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransientNetworkError, Err: err}
	}

	st, ok := status.FromError(err)
	if !ok {
		return &Error{Kind: DeviceError, Err: err}
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return &Error{Kind: PermissionDenied, Err: err}
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return &Error{Kind: TransientNetworkError, Err: err}
	case codes.OutOfRange:
		// audio timeout on the server side: the stream saw no speech
		return &Error{Kind: NoInputDetected, Err: err}
	default:
		return &Error{Kind: DeviceError, Err: err}
	}
}
