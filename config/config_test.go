package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INFERENCE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	for _, k := range []string{"PORT", "NO_SPEECH_TIMEOUT", "RECOGNITION_DEBOUNCE", "STT_SAMPLE_RATE", "ARCHIVE_WORKERS", "REPORT_TIMEOUT"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != "8080" || c.STTSampleRate != 16000 || c.ArchiveWorkers != 2 {
		t.Fatalf("config = %+v", c)
	}
	if c.NoSpeechTimeout != 15*time.Second || c.RecognitionDebounce != 300*time.Millisecond {
		t.Fatalf("timeouts = %s %s", c.NoSpeechTimeout, c.RecognitionDebounce)
	}
	if c.ReportTimeout != 30*time.Second {
		t.Fatalf("report timeout = %s", c.ReportTimeout)
	}
}

func TestLoadClampsNoSpeechTimeout(t *testing.T) {
	t.Setenv("INFERENCE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cases := map[string]time.Duration{
		"2s":  10 * time.Second,
		"12s": 12 * time.Second,
		"1m":  20 * time.Second,
	}
	for in, want := range cases {
		t.Setenv("NO_SPEECH_TIMEOUT", in)
		c, err := Load()
		if err != nil {
			t.Fatalf("load %s: %v", in, err)
		}
		if c.NoSpeechTimeout != want {
			t.Fatalf("NO_SPEECH_TIMEOUT=%s -> %s, want %s", in, c.NoSpeechTimeout, want)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"INFERENCE_TIMEOUT", "soon", "INFERENCE_TIMEOUT"},
		{"STT_SAMPLE_RATE", "-1", "STT_SAMPLE_RATE"},
		{"INFERENCE_PROVIDER", "bard", "INFERENCE_PROVIDER"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv("INFERENCE_PROVIDER", "openai")
			t.Setenv("OPENAI_API_KEY", "sk-test")
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadRequiresProviderCredentials(t *testing.T) {
	t.Setenv("INFERENCE_PROVIDER", "vertex")
	t.Setenv("VERTEX_PROJECT", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without VERTEX_PROJECT")
	}
}

func TestMongoDBName(t *testing.T) {
	t.Setenv("MONGO_DB", "")
	if MongoDBName() != "medivoice" {
		t.Fatalf("default db = %q", MongoDBName())
	}
	t.Setenv("MONGO_DB", "calls")
	if MongoDBName() != "calls" {
		t.Fatalf("db = %q", MongoDBName())
	}
}

func TestLoadAuthAndTransportSettings(t *testing.T) {
	t.Setenv("INFERENCE_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SUPABASE_JWT_SECRET", "legacy-secret")
	t.Setenv("WS_ALLOWED_ORIGINS", " https://a.example, ,https://b.example ")
	t.Setenv("PACE_SPEECH", "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.JWTSecret != "legacy-secret" {
		t.Fatalf("jwt secret = %q", c.JWTSecret)
	}
	if len(c.WSAllowedOrigins) != 2 || c.WSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", c.WSAllowedOrigins)
	}
	if c.PaceSpeech {
		t.Fatal("PACE_SPEECH=false ignored")
	}

	t.Setenv("PACE_SPEECH", "maybe")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PACE_SPEECH") {
		t.Fatalf("err = %v", err)
	}
}
