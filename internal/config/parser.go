package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Parse overlays TOML content onto base and validates the result. Keys the
// schema does not know become warnings rather than errors.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	var warnings []Warning

	if strings.TrimSpace(content) != "" {
		meta, err := toml.Decode(content, &cfg)
		if err != nil {
			return Config{}, nil, err
		}
		for _, key := range meta.Undecoded() {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown key %q", key.String())})
		}
	}

	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}
