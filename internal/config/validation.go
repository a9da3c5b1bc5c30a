package config

import "fmt"

// Validate checks the configuration for completeness and sane ranges.
// It is called once at startup; handlers can then trust the values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Model == "" {
		return ErrInvalidModelName
	}

	if c.ChunkMaxTokens < 1 {
		return fmt.Errorf("%w: chunk_max_tokens=%d", ErrInvalidChunkBudget, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens=%d must be in [0, chunk_max_tokens)", ErrInvalidChunkBudget, c.ChunkOverlapTokens)
	}

	if c.MaxTurnsPerDoc < 1 {
		return fmt.Errorf("%w: max_turns_per_doc=%d", ErrInvalidMaxTurns, c.MaxTurnsPerDoc)
	}

	limits := []struct {
		name  string
		value int
	}{
		{"max_output_tokens", c.MaxOutputTokens},
		{"max_doc_id_chars", c.MaxDocIDChars},
		{"max_user_message_chars", c.MaxUserMessageChars},
		{"max_instructions_chars", c.MaxInstructionsChars},
		{"max_title_chars", c.MaxTitleChars},
		{"max_filename_chars", c.MaxFilenameChars},
		{"max_doc_text_chars", c.MaxDocTextChars},
		{"max_upload_bytes", c.MaxUploadBytes},
	}
	for _, l := range limits {
		if l.value < 1 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidLimit, l.name, l.value)
		}
	}

	if c.RateLimitEnabled {
		if c.RateLimitPerSec < 1 {
			return fmt.Errorf("%w: rate_limit_per_sec=%d", ErrInvalidLimit, c.RateLimitPerSec)
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("%w: rate_limit_burst=%d", ErrInvalidLimit, c.RateLimitBurst)
		}
	}

	return nil
}
