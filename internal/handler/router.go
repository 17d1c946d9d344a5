package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/backtalk/backend/internal/handler/conversation"
	"github.com/backtalk/backend/internal/handler/live"
	"github.com/backtalk/backend/internal/handler/speech"
	middlewarePkg "github.com/backtalk/backend/internal/middleware"
	"github.com/backtalk/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. Handlers may be nil when
// their backing credentials are not configured; their routes then answer
// with 503 instead of being absent.
func NewRouter(liveHandler *live.Handler, convHandler *conversation.Handler, speechHandler *speech.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if liveHandler != nil {
			api.Get("/live/ws", liveHandler.HandleLive)
		} else {
			api.Get("/live/ws", unavailable("live sessions unavailable"))
		}

		if convHandler != nil {
			api.Get("/conversations", convHandler.HandleList)
			api.Get("/conversations/{conversationID}/messages", convHandler.HandleMessages)
		} else {
			api.Get("/conversations", unavailable("storage unavailable"))
			api.Get("/conversations/{conversationID}/messages", unavailable("storage unavailable"))
		}

		if speechHandler != nil {
			api.Post("/speech/synthesize", speechHandler.HandleSynthesize)
		} else {
			api.Post("/speech/synthesize", unavailable("speech synthesis unavailable"))
		}
	})

	return r
}

func unavailable(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusServiceUnavailable, message)
	}
}
