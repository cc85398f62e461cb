package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration
type Config struct {
	AgentURL             string        // Base websocket URL, session id and is_audio are appended
	ReconnectDelay       time.Duration // Fixed delay before the automatic reconnect
	AnalysisPollInterval time.Duration
	AnalysisPollAttempts int
	AnalysisTimeout      time.Duration // Deadline for the reset ack + result exchange
	ControlPort          int           // Local control bridge port, 0 disables it
	AllowedOrigins       []string
	RedisURL             string
	RedisPassword        string
	ReportTTL            time.Duration
	GeminiAPIKey         string // Optional, enables scenario generation
	ScenarioModel        string
	SampleRate           int // Microphone capture rate
	PlaybackRate         int // Agent audio rate
	FrameSamples         int // Samples per microphone frame
	VADConfigPath        string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		AgentURL:             "ws://localhost:8000/ws",
		ReconnectDelay:       5 * time.Second,
		AnalysisPollInterval: 500 * time.Millisecond,
		AnalysisPollAttempts: 20,
		AnalysisTimeout:      90 * time.Second,
		ControlPort:          8090,
		AllowedOrigins:       []string{"*"},
		RedisURL:             "localhost:6379",
		ReportTTL:            24 * time.Hour,
		ScenarioModel:        "gemini-2.5-flash",
		SampleRate:           16000,
		PlaybackRate:         24000,
		FrameSamples:         1024,
		VADConfigPath:        "vad.yaml",
	}

	// Optional: AGENT_URL
	if agentURL := os.Getenv("AGENT_URL"); agentURL != "" {
		config.AgentURL = strings.TrimRight(agentURL, "/")
	}

	// Optional: RECONNECT_DELAY_MS
	if delay := os.Getenv("RECONNECT_DELAY_MS"); delay != "" {
		d, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONNECT_DELAY_MS: %w", err)
		}
		config.ReconnectDelay = time.Duration(d) * time.Millisecond
	}

	// Optional: ANALYSIS_POLL_INTERVAL_MS
	if interval := os.Getenv("ANALYSIS_POLL_INTERVAL_MS"); interval != "" {
		i, err := strconv.Atoi(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYSIS_POLL_INTERVAL_MS: %w", err)
		}
		config.AnalysisPollInterval = time.Duration(i) * time.Millisecond
	}

	// Optional: ANALYSIS_POLL_ATTEMPTS
	if attempts := os.Getenv("ANALYSIS_POLL_ATTEMPTS"); attempts != "" {
		a, err := strconv.Atoi(attempts)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYSIS_POLL_ATTEMPTS: %w", err)
		}
		if a < 1 {
			return nil, fmt.Errorf("invalid ANALYSIS_POLL_ATTEMPTS: must be at least 1")
		}
		config.AnalysisPollAttempts = a
	}

	// Optional: ANALYSIS_TIMEOUT (in seconds)
	if timeout := os.Getenv("ANALYSIS_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid ANALYSIS_TIMEOUT: %w", err)
		}
		config.AnalysisTimeout = time.Duration(t) * time.Second
	}

	// Optional: CONTROL_PORT
	if port := os.Getenv("CONTROL_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid CONTROL_PORT: %w", err)
		}
		config.ControlPort = p
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: REPORT_TTL (in minutes)
	if ttl := os.Getenv("REPORT_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid REPORT_TTL: %w", err)
		}
		config.ReportTTL = time.Duration(t) * time.Minute
	}

	// Optional: GEMINI_API_KEY, scenario generation is disabled without it
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	// Optional: SCENARIO_MODEL
	if model := os.Getenv("SCENARIO_MODEL"); model != "" {
		config.ScenarioModel = model
	}

	// Optional: SAMPLE_RATE
	if rate := os.Getenv("SAMPLE_RATE"); rate != "" {
		r, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid SAMPLE_RATE: %w", err)
		}
		config.SampleRate = r
	}

	// Optional: PLAYBACK_RATE
	if rate := os.Getenv("PLAYBACK_RATE"); rate != "" {
		r, err := strconv.Atoi(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid PLAYBACK_RATE: %w", err)
		}
		config.PlaybackRate = r
	}

	// Optional: FRAME_SAMPLES
	if frame := os.Getenv("FRAME_SAMPLES"); frame != "" {
		f, err := strconv.Atoi(frame)
		if err != nil {
			return nil, fmt.Errorf("invalid FRAME_SAMPLES: %w", err)
		}
		config.FrameSamples = f
	}

	// Optional: VAD_CONFIG_PATH
	if path := os.Getenv("VAD_CONFIG_PATH"); path != "" {
		config.VADConfigPath = path
	}

	return config, nil
}

// SessionURL builds the agent endpoint for a session and transport mode.
func (c *Config) SessionURL(sessionID string, audio bool) string {
	return fmt.Sprintf("%s/%s?is_audio=%t", c.AgentURL, sessionID, audio)
}
