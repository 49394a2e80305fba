package main

import (
	"os"
	"strconv"
	"time"
)

type config struct {
	port       string
	reportsDir string
	traceDBURL string

	openaiAPIKey  string
	realtimeURL   string
	realtimeModel string
	voice         string

	assessModel     string
	assessMaxTokens int

	maxConcurrentSessions int
	minUtterance          time.Duration
	maxUtterance          time.Duration
	drainTimeout          time.Duration
	keepalivePeriod       time.Duration
	sweepInterval         time.Duration
	maxSessionIdle        time.Duration
}

func loadConfig() config {
	return config{
		port:       envStr("GATEWAY_PORT", "8000"),
		reportsDir: envStr("REPORTS_DIR", "data/reports"),
		traceDBURL: envStr("TRACE_DB_URL", ""),

		openaiAPIKey:  envStr("OPENAI_API_KEY", ""),
		realtimeURL:   envStr("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		realtimeModel: envStr("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		voice:         envStr("REALTIME_VOICE", "alloy"),

		assessModel:     envStr("ASSESS_MODEL", "gpt-4o"),
		assessMaxTokens: envInt("ASSESS_MAX_TOKENS", 2000),

		maxConcurrentSessions: envInt("MAX_CONCURRENT_SESSIONS", 100),
		minUtterance:          envDur("MIN_UTTERANCE", time.Second),
		maxUtterance:          envDur("MAX_UTTERANCE", 60*time.Second),
		drainTimeout:          envDur("DRAIN_TIMEOUT", 30*time.Second),
		keepalivePeriod:       envDur("KEEPALIVE_PERIOD", 3*time.Second),
		sweepInterval:         envDur("SWEEP_INTERVAL", time.Minute),
		maxSessionIdle:        envDur("MAX_SESSION_IDLE", 10*time.Minute),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envDur(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
