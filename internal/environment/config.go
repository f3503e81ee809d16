package environment

import (
	"encoding/json"
	"fmt"

	"github.com/colosseumrl/colosseumrl/internal/validator"
)

// Config is the structured configuration handed to environment factories.
// It replaces free-form config strings: factories receive a parsed value and
// reject bad settings before a match server ever starts.
type Config struct {
	// Players overrides the environment's default player count, for
	// environments that support a range. Zero means use the default.
	Players int `json:"players,omitempty" validate:"omitempty,min=1,max=64"`

	// Options carries environment-specific settings.
	Options map[string]string `json:"options,omitempty"`
}

// ParseConfig decodes a JSON configuration document and validates it.
// An empty document yields the zero Config.
func ParseConfig(raw string) (Config, error) {
	var cfg Config
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: parse config: %w", err)
	}
	if err := validator.GetValidator().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("environment: invalid config: %w", err)
	}
	return cfg, nil
}

// Option returns a named option with a fallback default.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok {
		return v
	}
	return def
}
