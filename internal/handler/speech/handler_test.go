package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSynthesizer struct {
	audio []byte
	err   error

	gotText string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (io.ReadCloser, string, error) {
	f.gotText = text
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(bytes.NewReader(f.audio)), "audio/l16", nil
}

func TestSynthesizeStreamsAudio(t *testing.T) {
	tts := &fakeSynthesizer{audio: []byte{0x01, 0x02, 0x03}}
	h := NewHandler(tts)

	req := httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", strings.NewReader(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	h.HandleSynthesize(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "audio/l16" {
		t.Fatalf("unexpected content type: %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.Equal(rec.Body.Bytes(), tts.audio) {
		t.Fatalf("audio body mismatch")
	}
	if tts.gotText != "hello" {
		t.Fatalf("unexpected text passed through: %q", tts.gotText)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{})

	req := httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", strings.NewReader(`{"text":"  "}`))
	rec := httptest.NewRecorder()
	h.HandleSynthesize(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSynthesizeProviderFailure(t *testing.T) {
	h := NewHandler(&fakeSynthesizer{err: errors.New("provider down")})

	req := httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	h.HandleSynthesize(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
