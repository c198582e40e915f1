package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/adapters/memory"
	adaptermongo "github.com/zeipo-ai/voicegate/adapters/mongo"
	"github.com/zeipo-ai/voicegate/adapters/nlu"
	"github.com/zeipo-ai/voicegate/adapters/stt"
	"github.com/zeipo-ai/voicegate/adapters/tts"
	"github.com/zeipo-ai/voicegate/domain/repositories"
	"github.com/zeipo-ai/voicegate/internal/api"
	"github.com/zeipo-ai/voicegate/internal/auth"
	"github.com/zeipo-ai/voicegate/internal/config"
	"github.com/zeipo-ai/voicegate/internal/metrics"
	"github.com/zeipo-ai/voicegate/internal/streaming"
	"github.com/zeipo-ai/voicegate/internal/transport"
	"github.com/zeipo-ai/voicegate/usecase"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	m := metrics.New("voicegate")

	// Speech recognition.
	var asr repositories.Transcriber
	switch cfg.STTProvider {
	case "google":
		google, err := stt.NewGoogleTranscriber(ctx, logger)
		if err != nil {
			logger.Fatal("google speech init failed", zap.Error(err))
		}
		defer google.Close()
		asr = google
	default:
		logger.Info("using mock transcriber")
		asr = stt.NewMockTranscriber()
	}

	// Intent processing.
	var intents repositories.IntentProcessor
	switch cfg.NLUProvider {
	case "gemini":
		gemini, err := nlu.NewGeminiProcessor(ctx, cfg.GeminiAPIKey, cfg.DefaultModel, logger)
		if err != nil {
			logger.Fatal("gemini init failed", zap.Error(err))
		}
		intents = gemini
	default:
		logger.Info("using rule-based intent processor")
		intents = nlu.NewRulesProcessor()
	}

	// Speech synthesis.
	var voice repositories.Synthesizer
	switch cfg.TTSProvider {
	case "elevenlabs":
		eleven, err := tts.NewElevenLabsSynthesizer(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
		}, logger)
		if err != nil {
			logger.Fatal("eleven labs init failed", zap.Error(err))
		}
		voice = eleven
	default:
		logger.Info("using mock synthesizer")
		voice = tts.NewMockSynthesizer(cfg.SampleRate)
	}

	// Call log persistence.
	var callLog repositories.CallLogRepository
	if cfg.MongoURI != "" {
		client, err := adaptermongo.NewClient(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			logger.Fatal("mongodb init failed", zap.Error(err))
		}
		defer client.Close(context.Background())
		callLog = adaptermongo.NewCallRepository(client.Database)
	} else {
		logger.Info("using in-memory call log")
		callLog = memory.NewCallLog()
	}

	// Session engine.
	responder := usecase.NewResponseService(intents, voice, m, logger)
	dispatcher := streaming.NewDispatcher(
		streaming.NewDebouncer(cfg.MinResponseInterval),
		responder,
		cfg.MinFinalTextLen,
		m,
		logger,
	)
	registry := streaming.NewRegistry(streaming.Config{
		RecordingDir:      cfg.RecordingDir,
		SampleRate:        cfg.SampleRate,
		MinAudioDuration:  cfg.MinAudioDuration,
		PassInterval:      cfg.PassInterval,
		MaxBufferDuration: cfg.MaxBufferDuration,
		StopTimeout:       cfg.StopTimeout,
		ChunksPerPass:     cfg.ChunksPerPass,
		DefaultLanguage:   cfg.DefaultLanguage,
		DefaultModel:      cfg.DefaultModel,
	}, asr, dispatcher, callLog, m, logger)

	reaper := streaming.NewReaper(registry, cfg.SweepInterval, cfg.MaxIdle, logger)
	reaper.Start()
	defer reaper.Stop()

	// Provider adapters.
	socketAdapter := transport.NewSocketAdapter(registry, cfg.SampleRate, logger)
	webhookAdapter := transport.NewWebhookAdapter(registry, logger)
	signalingAdapter := transport.NewSignalingAdapter(registry, logger)

	factory := transport.NewFactory()
	for _, adapter := range []transport.ProviderAdapter{socketAdapter, webhookAdapter, signalingAdapter} {
		if err := factory.Register(adapter); err != nil {
			logger.Fatal("adapter registration failed", zap.Error(err))
		}
	}
	logger.Info("transports registered", zap.Any("kinds", factory.Kinds()))

	var issuer *auth.TokenIssuer
	if cfg.JWTSecret != "" {
		issuer, err = auth.NewTokenIssuer(cfg.JWTSecret)
		if err != nil {
			logger.Fatal("token issuer init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no JWT secret configured, call token auth disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Deps{
		Registry: registry,
		Socket:   socketAdapter,
		Webhook:  webhookAdapter,
		Issuer:   issuer,
		CallLog:  callLog,
		Logger:   logger,
	})

	go func() {
		if err := e.Start(cfg.BindAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()
	logger.Info("voice gateway started", zap.String("addr", cfg.BindAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	// Finalize live sessions so recordings and call records are flushed.
	registry.Shutdown()

	logger.Info("server exited")
}
