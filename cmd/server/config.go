package main

import (
	"os"
	"strconv"
	"time"
)

// Config carries the server configuration, loaded from the environment.
type Config struct {
	Port string

	VoiceLiveEndpoint string
	VoiceLiveAPIKey   string
	VoiceLiveModel    string

	// OpenAI-compatible backend for the reasoning stages. When no key is
	// configured the deterministic caregiver stage client is used instead.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	StageDeadline time.Duration
	BargeIn       bool
}

func Load() Config {
	return Config{
		Port: envOr("PORT", "8080"),

		VoiceLiveEndpoint: os.Getenv("AZURE_VOICE_LIVE_ENDPOINT"),
		VoiceLiveAPIKey:   os.Getenv("AZURE_VOICE_LIVE_API_KEY"),
		VoiceLiveModel:    envOr("VOICE_LIVE_MODEL", "gpt-4o-mini"),

		OpenAIAPIKey:  os.Getenv("AZURE_OPENAI_KEY"),
		OpenAIBaseURL: os.Getenv("AZURE_OPENAI_ENDPOINT"),
		OpenAIModel:   envOr("AZURE_OPENAI_DEPLOYMENT", "gpt-4o-mini"),

		StageDeadline: envDurationOr("STAGE_DEADLINE", 3*time.Second),
		BargeIn:       envBool("BARGE_IN_ENABLED"),
	}
}

// HasVoiceLive reports whether the voice transport is configured.
func (c Config) HasVoiceLive() bool {
	return c.VoiceLiveEndpoint != "" && c.VoiceLiveAPIKey != ""
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && parsed
}
