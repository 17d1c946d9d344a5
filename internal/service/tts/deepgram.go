// Package tts synthesizes speech from text through the Deepgram speak API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const speakEndpoint = "https://api.deepgram.com/v1/speak"

// Config holds synthesis settings.
type Config struct {
	APIKey     string
	Voice      string
	SampleRate int
}

// Service issues synthesis requests.
type Service struct {
	apiKey     string
	voice      string
	sampleRate int
	httpClient *http.Client
}

// NewService applies voice and sample rate defaults.
func NewService(cfg Config) *Service {
	voice := cfg.Voice
	if voice == "" {
		voice = "aura-asteria-en"
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &Service{
		apiKey:     cfg.APIKey,
		voice:      voice,
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Synthesize streams linear16 audio for the given text. The caller owns
// closing the returned body.
func (s *Service) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	if text == "" {
		return nil, "", fmt.Errorf("text is required")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}

	params := url.Values{}
	params.Set("model", s.voice)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(s.sampleRate))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakEndpoint+"?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", fmt.Errorf("synthesis returned status %d: %s", resp.StatusCode, body)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/l16"
	}
	return resp.Body, contentType, nil
}
