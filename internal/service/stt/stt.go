// Package stt defines the live speech-to-text provider contract used by the
// session relay, plus the Deepgram implementation.
package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when audio is sent after the stream closed.
var ErrStreamClosed = errors.New("transcription stream closed")

// TranscriptEvent is one fragment emitted by the provider. IsFinal marks
// lexically committed text; interim fragments may still be revised.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
}

// Provider opens one live transcription stream per session.
type Provider interface {
	Connect(ctx context.Context, sessionID string) (Stream, error)
}

// Stream is a single duplex transcription connection. Events is closed when
// the provider side terminates; Err reports the cause when the termination
// was abnormal.
type Stream interface {
	SendAudio(data []byte) error
	Events() <-chan TranscriptEvent
	Err() error
	Close() error
}
