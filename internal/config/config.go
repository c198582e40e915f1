package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice gateway.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	RecordingDir string
	SampleRate   int

	// Streaming transcription engine.
	MinAudioDuration  time.Duration // minimum buffered audio before a pass fires
	PassInterval      time.Duration // cadence of the background processing loop
	MaxBufferDuration time.Duration // rolling buffer cap, tail kept between passes
	StopTimeout       time.Duration // bounded join of the processing loop on stop
	ChunksPerPass     int           // pace inference to every Nth processed chunk

	// Downstream response pipeline.
	MinResponseInterval time.Duration // debounce window between spoken replies
	MinFinalTextLen     int           // finals shorter than this skip the pipeline

	// Idle reaping.
	MaxIdle       time.Duration
	SweepInterval time.Duration

	// Collaborator selection.
	STTProvider string // "google" or "mock"
	NLUProvider string // "gemini" or "rules"
	TTSProvider string // "elevenlabs" or "mock"

	DefaultLanguage string
	DefaultModel    string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	GeminiAPIKey      string

	MongoURI      string
	MongoDatabase string

	JWTSecret string
}

// Load reads environment variables and applies safe defaults. The timing
// constants are hand-tuned starting points, not contract: every one of them
// can be overridden per deployment.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("VOICEGATE_BIND_ADDR", ":8080"),
		RecordingDir:        envOrDefault("VOICEGATE_RECORDING_DIR", "data/call_recordings"),
		SampleRate:          16000,
		MinAudioDuration:    2 * time.Second,
		PassInterval:        500 * time.Millisecond,
		MaxBufferDuration:   10 * time.Second,
		StopTimeout:         5 * time.Second,
		ChunksPerPass:       3,
		MinResponseInterval: 5 * time.Second,
		MinFinalTextLen:     5,
		MaxIdle:             300 * time.Second,
		SweepInterval:       60 * time.Second,
		ShutdownTimeout:     10 * time.Second,
		STTProvider:         envOrDefault("VOICEGATE_STT_PROVIDER", "mock"),
		NLUProvider:         envOrDefault("VOICEGATE_NLU_PROVIDER", "rules"),
		TTSProvider:         envOrDefault("VOICEGATE_TTS_PROVIDER", "mock"),
		DefaultLanguage:     envOrDefault("VOICEGATE_DEFAULT_LANGUAGE", "en-US"),
		DefaultModel:        envOrDefault("VOICEGATE_DEFAULT_MODEL", "small"),
		ElevenLabsAPIKey:    os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:   os.Getenv("ELEVENLABS_VOICE_ID"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		MongoURI:            os.Getenv("MONGODB_URI"),
		MongoDatabase:       envOrDefault("MONGODB_DATABASE", "voicegate"),
		JWTSecret:           os.Getenv("VOICEGATE_JWT_SECRET"),
	}

	var err error
	if cfg.SampleRate, err = intFromEnv("VOICEGATE_SAMPLE_RATE", cfg.SampleRate); err != nil {
		return Config{}, err
	}
	if cfg.MinAudioDuration, err = durationFromEnv("VOICEGATE_MIN_AUDIO", cfg.MinAudioDuration); err != nil {
		return Config{}, err
	}
	if cfg.PassInterval, err = durationFromEnv("VOICEGATE_PASS_INTERVAL", cfg.PassInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxBufferDuration, err = durationFromEnv("VOICEGATE_MAX_BUFFER", cfg.MaxBufferDuration); err != nil {
		return Config{}, err
	}
	if cfg.StopTimeout, err = durationFromEnv("VOICEGATE_STOP_TIMEOUT", cfg.StopTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ChunksPerPass, err = intFromEnv("VOICEGATE_CHUNKS_PER_PASS", cfg.ChunksPerPass); err != nil {
		return Config{}, err
	}
	if cfg.MinResponseInterval, err = durationFromEnv("VOICEGATE_RESPONSE_INTERVAL", cfg.MinResponseInterval); err != nil {
		return Config{}, err
	}
	if cfg.MinFinalTextLen, err = intFromEnv("VOICEGATE_MIN_FINAL_TEXT", cfg.MinFinalTextLen); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdle, err = durationFromEnv("VOICEGATE_MAX_IDLE", cfg.MaxIdle); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationFromEnv("VOICEGATE_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("VOICEGATE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}

	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.MaxBufferDuration < cfg.MinAudioDuration {
		return Config{}, fmt.Errorf("max buffer duration %v is below min audio duration %v",
			cfg.MaxBufferDuration, cfg.MinAudioDuration)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, nil
}
