// Package speech exposes text-to-speech synthesis as a plain HTTP endpoint,
// kept outside the live session path.
package speech

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/backtalk/backend/pkg/utils"
)

// Synthesizer produces an audio stream for the given text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error)
}

// Handler owns the synthesis endpoint.
type Handler struct {
	tts Synthesizer
}

// NewHandler creates the handler.
func NewHandler(tts Synthesizer) *Handler {
	return &Handler{tts: tts}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// HandleSynthesize streams synthesized audio for the posted text.
func (h *Handler) HandleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, contentType, err := h.tts.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Printf("[speech] synthesis failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, audio); err != nil {
		log.Printf("[speech] audio stream interrupted: %v", err)
	}
}
