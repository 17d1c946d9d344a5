package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const listenEndpoint = "wss://api.deepgram.com/v1/listen"

// Config holds Deepgram live transcription parameters. The audio contract is
// fixed: linear PCM, mono, SampleRate hertz.
type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// DeepgramProvider implements Provider against the Deepgram listen API.
type DeepgramProvider struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewDeepgramProvider creates a provider with the given credentials.
func NewDeepgramProvider(cfg Config) *DeepgramProvider {
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &DeepgramProvider{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Connect dials a live transcription socket for one session.
func (p *DeepgramProvider) Connect(ctx context.Context, sessionID string) (Stream, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", p.cfg.Model)
	params.Set("language", p.cfg.Language)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(p.cfg.SampleRate))
	params.Set("channels", "1")
	params.Set("interim_results", "true")

	header := http.Header{}
	header.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, listenEndpoint+"?"+params.Encode(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram dial failed: %w", err)
	}

	s := &deepgramStream{
		conn:      conn,
		sessionID: sessionID,
		events:    make(chan TranscriptEvent, 32),
	}
	go s.readLoop()

	log.Printf("[stt] connected session=%s model=%s", sessionID, p.cfg.Model)
	return s, nil
}

type deepgramStream struct {
	conn      *websocket.Conn
	sessionID string
	events    chan TranscriptEvent

	mu     sync.Mutex
	closed bool
	err    error
}

// listenMessage is the subset of the Deepgram live response we consume.
type listenMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// eventFromMessage maps a raw provider payload to a TranscriptEvent. Empty
// transcripts and non-result messages yield ok=false.
func eventFromMessage(data []byte) (TranscriptEvent, bool) {
	var msg listenMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[stt] failed to unmarshal provider message: %v", err)
		return TranscriptEvent{}, false
	}

	if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
		return TranscriptEvent{}, false
	}

	text := msg.Channel.Alternatives[0].Transcript
	if text == "" {
		return TranscriptEvent{}, false
	}

	return TranscriptEvent{Text: text, IsFinal: msg.IsFinal}, true
}

func (s *deepgramStream) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = fmt.Errorf("deepgram read failed: %w", err)
			}
			s.mu.Unlock()
			return
		}

		if ev, ok := eventFromMessage(data); ok {
			s.events <- ev
		}
	}
}

// SendAudio forwards one binary audio frame unmodified.
func (s *deepgramStream) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("deepgram audio write failed: %w", err)
	}
	return nil
}

// Events implements Stream.
func (s *deepgramStream) Events() <-chan TranscriptEvent {
	return s.events
}

// Err reports the abnormal termination cause, if any.
func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close finalizes the provider stream. Idempotent.
func (s *deepgramStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	// Best effort: ask the provider to flush before tearing down the socket.
	_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
	err := s.conn.Close()

	log.Printf("[stt] closed session=%s", s.sessionID)
	return err
}
