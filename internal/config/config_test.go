package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.ChunkSizeBytes != 16000 {
		t.Errorf("expected chunk size 16000, got %d", cfg.ChunkSizeBytes)
	}
	if cfg.MaxRerecordAttempts != 2 {
		t.Errorf("expected max rerecord attempts 2, got %d", cfg.MaxRerecordAttempts)
	}
	if cfg.SessionGraceSec != 30 {
		t.Errorf("expected session grace 30s, got %d", cfg.SessionGraceSec)
	}
}

func TestLoadRequiresLokutorKey(t *testing.T) {
	t.Setenv("LOKUTOR_API_KEY", "")
	t.Setenv("WS_TOKEN", "test-token")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error when LOKUTOR_API_KEY is unset")
	}
}

func TestLoadSucceedsWithRequiredKeys(t *testing.T) {
	t.Setenv("LOKUTOR_API_KEY", "lk-test")
	t.Setenv("WS_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LokutorAPIKey != "lk-test" {
		t.Errorf("expected api key to be bound from environment, got %q", cfg.LokutorAPIKey)
	}
	if cfg.ChunkSizeBytes != 16000 {
		t.Errorf("expected default chunk size preserved, got %d", cfg.ChunkSizeBytes)
	}
}
