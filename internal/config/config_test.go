package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "WEATHER_API_URL", "SESSION_BACKEND", "KAFKA_BROKERS", "HTTP_TIMEOUT_SECONDS", "AUDITOR_HTTP_PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.HTTPPort != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.WeatherAPIURL != "https://server-weather-workflow.onrender.com" {
		t.Errorf("unexpected api url %s", cfg.WeatherAPIURL)
	}
	if cfg.SessionBackend != SessionBackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.SessionBackend)
	}
	if cfg.KafkaBrokers != nil {
		t.Errorf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.HTTPTimeout)
	}
	if cfg.AuditorPort != "8081" {
		t.Errorf("expected auditor port 8081, got %s", cfg.AuditorPort)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WEATHER_API_URL", "http://localhost:5000/")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "nope")

	cfg := Load()
	if cfg.WeatherAPIURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.WeatherAPIURL)
	}
	if cfg.SessionBackend != SessionBackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.SessionBackend)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("expected fallback timeout, got %v", cfg.HTTPTimeout)
	}
}
