package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Addr:                 "127.0.0.1:8080",
		DatabaseURL:          "postgres://localhost/docassist",
		APIKey:               "sk-test",
		Model:                DefaultModel,
		MaxOutputTokens:      DefaultMaxOutputTokens,
		ChunkMaxTokens:       DefaultChunkMaxTokens,
		ChunkOverlapTokens:   DefaultChunkOverlapTokens,
		MaxTurnsPerDoc:       DefaultMaxTurnsPerDoc,
		MaxDocIDChars:        DefaultMaxDocIDChars,
		MaxUserMessageChars:  DefaultMaxUserMessageChars,
		MaxInstructionsChars: DefaultMaxInstructionsChars,
		MaxTitleChars:        DefaultMaxTitleChars,
		MaxFilenameChars:     DefaultMaxFilenameChars,
		MaxDocTextChars:      DefaultMaxDocTextChars,
		MaxUploadBytes:       DefaultMaxUploadBytes,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.APIKey = "" },
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "missing database url",
			mutate:  func(c *Config) { c.DatabaseURL = "" },
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.Model = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "zero chunk budget",
			mutate:  func(c *Config) { c.ChunkMaxTokens = 0 },
			wantErr: ErrInvalidChunkBudget,
		},
		{
			name:    "overlap exceeds budget",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = c.ChunkMaxTokens },
			wantErr: ErrInvalidChunkBudget,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = -1 },
			wantErr: ErrInvalidChunkBudget,
		},
		{
			name:    "zero max turns",
			mutate:  func(c *Config) { c.MaxTurnsPerDoc = 0 },
			wantErr: ErrInvalidMaxTurns,
		},
		{
			name:    "zero upload limit",
			mutate:  func(c *Config) { c.MaxUploadBytes = 0 },
			wantErr: ErrInvalidLimit,
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(c *Config) {
				c.RateLimitEnabled = true
				c.RateLimitPerSec = 0
			},
			wantErr: ErrInvalidLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() = %v, want %v", err, ErrConfigNil)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.ChunkMaxTokens != DefaultChunkMaxTokens {
		t.Errorf("ChunkMaxTokens = %d, want %d", cfg.ChunkMaxTokens, DefaultChunkMaxTokens)
	}
	if cfg.MaxTurnsPerDoc != DefaultMaxTurnsPerDoc {
		t.Errorf("MaxTurnsPerDoc = %d, want %d", cfg.MaxTurnsPerDoc, DefaultMaxTurnsPerDoc)
	}
	if !cfg.ForceFileSearch {
		t.Error("ForceFileSearch = false, want true by default")
	}
	if cfg.TwoStepEnabled {
		t.Error("TwoStepEnabled = true, want false by default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCASSIST_MODEL", "gpt-test-override")
	t.Setenv("DOCASSIST_MAX_TURNS_PER_DOC", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "gpt-test-override" {
		t.Errorf("Model = %q, want env override", cfg.Model)
	}
	if cfg.MaxTurnsPerDoc != 7 {
		t.Errorf("MaxTurnsPerDoc = %d, want 7", cfg.MaxTurnsPerDoc)
	}
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.AuthToken = "secret-token"
	cfg.SystemPrompt = "secret prompt"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	for _, secret := range []string{"sk-test", "secret-token", "postgres://", "secret prompt"} {
		if strings.Contains(s, secret) {
			t.Errorf("marshaled config leaks %q: %s", secret, s)
		}
	}
}
