package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/backtalk/backend/internal/config"
	"github.com/backtalk/backend/internal/handler"
	conversationHandler "github.com/backtalk/backend/internal/handler/conversation"
	liveHandler "github.com/backtalk/backend/internal/handler/live"
	speechHandler "github.com/backtalk/backend/internal/handler/speech"
	"github.com/backtalk/backend/internal/service/ai"
	"github.com/backtalk/backend/internal/service/retrieval"
	"github.com/backtalk/backend/internal/service/session"
	"github.com/backtalk/backend/internal/service/stt"
	"github.com/backtalk/backend/internal/service/tts"
	"github.com/backtalk/backend/internal/service/turn"
	supabaseStore "github.com/backtalk/backend/internal/store/supabase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var store *supabaseStore.Store
	if cfg.Supabase.Enabled() {
		store, err = supabaseStore.NewStore(cfg.Supabase.URL, cfg.Supabase.APIKey)
		if err != nil {
			log.Fatalf("failed to connect to storage: %v", err)
		}
		log.Println("storage connected")
	} else {
		log.Println("SUPABASE_URL/SUPABASE_SERVICE_KEY not set, conversation APIs and live sessions disabled")
	}

	retriever := buildRetriever(cfg.Retrieval)
	if retriever != nil {
		defer retriever.Close()
	}

	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI, cfg.Live.HistoryLimit)
		if err != nil {
			log.Fatalf("failed to initialize generation service: %v", err)
		}
		log.Println("generation service initialized")
	} else {
		log.Println("ARK_MODEL/ARK_API_KEY not set, generation disabled")
	}

	var liveH *liveHandler.Handler
	if store != nil && retriever != nil && aiService != nil && cfg.STT.Enabled() {
		provider := stt.NewDeepgramProvider(stt.Config{
			APIKey:     cfg.STT.APIKey,
			Model:      cfg.STT.Model,
			Language:   cfg.STT.Language,
			SampleRate: cfg.STT.SampleRate,
		})
		coordinator := turn.NewCoordinator(retriever, aiService, store)
		liveH = liveHandler.NewHandler(store, provider, coordinator, session.NewRegistry(), liveHandler.Config{
			SilenceTimeout: cfg.Live.SilenceTimeout,
			OutboxSize:     cfg.Live.OutboxSize,
		})
		log.Println("live session endpoint enabled")
	} else {
		log.Println("live sessions disabled: requires storage, retrieval, generation, and DEEPGRAM_API_KEY")
	}

	var convH *conversationHandler.Handler
	if store != nil {
		convH = conversationHandler.NewHandler(store)
	}

	var speechH *speechHandler.Handler
	if cfg.TTS.Enabled() {
		speechH = speechHandler.NewHandler(tts.NewService(tts.Config{
			APIKey:     cfg.TTS.APIKey,
			Voice:      cfg.TTS.Voice,
			SampleRate: cfg.TTS.SampleRate,
		}))
		log.Println("speech synthesis endpoint enabled")
	}

	router := handler.NewRouter(liveH, convH, speechH)
	startServer(ctx, cfg.Server, router)
}

func buildRetriever(cfg config.RetrievalConfig) *retrieval.Retriever {
	if !cfg.Enabled() {
		log.Println("QDRANT_URL or embedding credentials not set, retrieval disabled")
		return nil
	}

	var redisClient *redis.Client
	if cfg.CacheDriver == retrieval.CacheDriverRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	cache, err := retrieval.NewCache(cfg.CacheDriver, cfg.CacheTTL, redisClient)
	if err != nil {
		log.Fatalf("failed to initialize passage cache: %v", err)
	}

	store, err := retrieval.NewQdrantStore(retrieval.QdrantConfig{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.Collection,
	})
	if err != nil {
		log.Fatalf("failed to connect to vector store: %v", err)
	}

	embedder := retrieval.NewArkEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
	log.Println("retrieval service initialized")
	return retrieval.NewRetriever(embedder, store, cache, cfg.TopK)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Backtalk backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
