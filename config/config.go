package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application settings read from the environment.
// Infrastructure connections are set up by the Init* functions instead.
type Config struct {
	Port string

	InferenceProvider string // vertex|openai
	VertexProject     string
	VertexLocation    string
	VertexModel       string
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string
	TTSModel          string
	TTSBaseURL        string

	GoogleCredentialsFile string
	STTLanguage           string
	STTModel              string
	STTSampleRate         int32

	NoSpeechTimeout        time.Duration
	RecognitionDebounce    time.Duration
	RecognitionOpenTimeout time.Duration
	InferenceTimeout       time.Duration
	ReportTimeout          time.Duration

	ArchiveBucket  string
	ArchiveWorkers int
	ReportCacheTTL time.Duration

	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	WSAllowedOrigins []string
	PaceSpeech       bool
	ShutdownTimeout  time.Duration
}

const (
	minNoSpeech = 10 * time.Second
	maxNoSpeech = 20 * time.Second
)

func Load() (*Config, error) {
	c := &Config{
		Port:                  env("PORT", "8080"),
		InferenceProvider:     strings.ToLower(env("INFERENCE_PROVIDER", "openai")),
		VertexProject:         os.Getenv("VERTEX_PROJECT"),
		VertexLocation:        env("VERTEX_LOCATION", "us-central1"),
		VertexModel:           env("VERTEX_MODEL", "gemini-1.5-flash"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:           env("OPENAI_MODEL", "gpt-4o-mini"),
		TTSModel:              env("TTS_MODEL", "tts-1"),
		TTSBaseURL:            os.Getenv("TTS_BASE_URL"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		STTLanguage:           env("STT_LANGUAGE", "en-US"),
		STTModel:              os.Getenv("STT_MODEL"),
		ArchiveBucket:         os.Getenv("ARCHIVE_BUCKET"),
		JWTSecret:             firstEnv("JWT_SECRET", "SUPABASE_JWT_SECRET"),
		JWTIssuer:             firstEnv("JWT_ISSUER", "SUPABASE_JWT_ISSUER"),
		JWTAudience:           firstEnv("JWT_AUDIENCE", "SUPABASE_JWT_AUDIENCE"),
		WSAllowedOrigins:      listEnv("WS_ALLOWED_ORIGINS"),
	}

	var err error
	rate, err := intEnv("STT_SAMPLE_RATE", 16000)
	if err != nil {
		return nil, err
	}
	c.STTSampleRate = int32(rate)

	if c.ArchiveWorkers, err = intEnv("ARCHIVE_WORKERS", 2); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"NO_SPEECH_TIMEOUT", 15 * time.Second, &c.NoSpeechTimeout},
		{"RECOGNITION_DEBOUNCE", 300 * time.Millisecond, &c.RecognitionDebounce},
		{"RECOGNITION_OPEN_TIMEOUT", 5 * time.Second, &c.RecognitionOpenTimeout},
		{"INFERENCE_TIMEOUT", 20 * time.Second, &c.InferenceTimeout},
		{"REPORT_TIMEOUT", 30 * time.Second, &c.ReportTimeout},
		{"REPORT_CACHE_TTL", 10 * time.Minute, &c.ReportCacheTTL},
		{"SHUTDOWN_TIMEOUT", 45 * time.Second, &c.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if c.PaceSpeech, err = boolEnv("PACE_SPEECH", true); err != nil {
		return nil, err
	}

	if c.NoSpeechTimeout < minNoSpeech {
		c.NoSpeechTimeout = minNoSpeech
	}
	if c.NoSpeechTimeout > maxNoSpeech {
		c.NoSpeechTimeout = maxNoSpeech
	}

	switch c.InferenceProvider {
	case "openai":
		if c.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for INFERENCE_PROVIDER=openai")
		}
	case "vertex":
		if c.VertexProject == "" {
			return nil, fmt.Errorf("VERTEX_PROJECT is required for INFERENCE_PROVIDER=vertex")
		}
	default:
		return nil, fmt.Errorf("INFERENCE_PROVIDER must be vertex or openai, got %q", c.InferenceProvider)
	}
	return c, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

// listEnv splits a comma separated value, dropping empty items.
func listEnv(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
