// Package config manages application configuration with multi-source priority.
//
// Sources (highest to lowest):
//  1. Environment variables (DOCASSIST_* prefix)
//  2. Config file (config.yaml in the working directory or /etc/docassist)
//  3. Defaults
//
// Sensitive values (API key, auth token, database URL) are excluded from
// JSON output; keep that in mind when adding fields.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for validation failures.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates no completion-service API key is set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingDatabaseURL indicates no metadata-store URL is set.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidChunkBudget indicates chunk token budgets are out of range.
	ErrInvalidChunkBudget = errors.New("invalid chunk token budget")

	// ErrInvalidMaxTurns indicates the history bound is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns per document")

	// ErrInvalidLimit indicates a request size limit is out of range.
	ErrInvalidLimit = errors.New("invalid request limit")
)

// Default values mirrored from the hosted deployment.
const (
	DefaultModel           = "gpt-5.2-2025-12-11"
	DefaultMaxOutputTokens = 1200
	DefaultMaxTurnsPerDoc  = 25

	DefaultChunkMaxTokens     = 700
	DefaultChunkOverlapTokens = 150

	DefaultSummaryMaxChars      = 1800
	DefaultSummaryInputMaxChars = 20000

	DefaultMaxDocIDChars        = 256
	DefaultMaxUserMessageChars  = 20000
	DefaultMaxInstructionsChars = 20000
	DefaultMaxTitleChars        = 256
	DefaultMaxFilenameChars     = 256
	DefaultMaxDocTextChars      = 2_000_000
	DefaultMaxUploadBytes       = 15 * 1024 * 1024
)

// Config stores the full application configuration.
type Config struct {
	// HTTP server
	Addr       string `mapstructure:"addr" json:"addr"`
	AuthToken  string `mapstructure:"auth_token" json:"-"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Rate limiting (per client IP)
	RateLimitEnabled bool `mapstructure:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitPerSec  int  `mapstructure:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateLimitBurst   int  `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Metadata store
	DatabaseURL string `mapstructure:"database_url" json:"-"`

	// Retrieval and completion service
	APIKey          string `mapstructure:"api_key" json:"-"`
	APIBaseURL      string `mapstructure:"api_base_url" json:"api_base_url"`
	Model           string `mapstructure:"model" json:"model"`
	MaxOutputTokens int    `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	SystemPrompt    string `mapstructure:"system_prompt" json:"-"`

	// Knowledge synchronization
	ChunkingEnabled    bool `mapstructure:"chunking_enabled" json:"chunking_enabled"`
	ChunkMaxTokens     int  `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlapTokens int  `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`
	SummaryEnabled     bool `mapstructure:"summary_enabled" json:"summary_enabled"`
	SummaryMaxChars    int  `mapstructure:"summary_max_chars" json:"summary_max_chars"`
	SummaryInputMax    int  `mapstructure:"summary_input_max_chars" json:"summary_input_max_chars"`
	ResetCleanupRemote bool `mapstructure:"reset_cleanup_remote" json:"reset_cleanup_remote"`

	// Retrieval orchestration
	MaxTurnsPerDoc  int  `mapstructure:"max_turns_per_doc" json:"max_turns_per_doc"`
	ForceFileSearch bool `mapstructure:"force_file_search" json:"force_file_search"`
	TwoStepEnabled  bool `mapstructure:"two_step_enabled" json:"two_step_enabled"`
	ChatLogEnabled  bool `mapstructure:"chat_log_enabled" json:"chat_log_enabled"`

	// Request limits
	MaxDocIDChars        int `mapstructure:"max_doc_id_chars" json:"max_doc_id_chars"`
	MaxUserMessageChars  int `mapstructure:"max_user_message_chars" json:"max_user_message_chars"`
	MaxInstructionsChars int `mapstructure:"max_instructions_chars" json:"max_instructions_chars"`
	MaxTitleChars        int `mapstructure:"max_title_chars" json:"max_title_chars"`
	MaxFilenameChars     int `mapstructure:"max_filename_chars" json:"max_filename_chars"`
	MaxDocTextChars      int `mapstructure:"max_doc_text_chars" json:"max_doc_text_chars"`
	MaxUploadBytes       int `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load reads configuration from defaults, an optional config file, and
// DOCASSIST_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/docassist")

	v.SetEnvPrefix("DOCASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; env and defaults carry the load.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("trust_proxy", false)

	v.SetDefault("rate_limit_enabled", false)
	v.SetDefault("rate_limit_per_sec", 2)
	v.SetDefault("rate_limit_burst", 120)

	v.SetDefault("api_base_url", "https://api.openai.com/v1")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("max_output_tokens", DefaultMaxOutputTokens)

	v.SetDefault("chunking_enabled", true)
	v.SetDefault("chunk_max_tokens", DefaultChunkMaxTokens)
	v.SetDefault("chunk_overlap_tokens", DefaultChunkOverlapTokens)
	v.SetDefault("summary_enabled", true)
	v.SetDefault("summary_max_chars", DefaultSummaryMaxChars)
	v.SetDefault("summary_input_max_chars", DefaultSummaryInputMaxChars)
	v.SetDefault("reset_cleanup_remote", false)

	v.SetDefault("max_turns_per_doc", DefaultMaxTurnsPerDoc)
	v.SetDefault("force_file_search", true)
	v.SetDefault("two_step_enabled", false)
	v.SetDefault("chat_log_enabled", true)

	v.SetDefault("max_doc_id_chars", DefaultMaxDocIDChars)
	v.SetDefault("max_user_message_chars", DefaultMaxUserMessageChars)
	v.SetDefault("max_instructions_chars", DefaultMaxInstructionsChars)
	v.SetDefault("max_title_chars", DefaultMaxTitleChars)
	v.SetDefault("max_filename_chars", DefaultMaxFilenameChars)
	v.SetDefault("max_doc_text_chars", DefaultMaxDocTextChars)
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)

	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// MarshalJSON masks sensitive fields. The struct tags already exclude them,
// but the custom marshaler guards against future tag mistakes by zeroing
// the values before encoding.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	masked.AuthToken = ""
	masked.APIKey = ""
	masked.DatabaseURL = ""
	masked.SystemPrompt = ""
	return json.Marshal(masked)
}
