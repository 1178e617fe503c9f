// Package config loads sarforge configuration from defaults, a TOML file,
// and SARFORGE_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Model struct {
		Provider          string  `koanf:"provider"`
		APIKey            string  `koanf:"api_key"`
		BaseURL           string  `koanf:"base_url"`
		Name              string  `koanf:"name"`
		Temperature       float64 `koanf:"temperature"`
		TimeoutSeconds    int     `koanf:"timeout_seconds"`
		RequestsPerSecond float64 `koanf:"requests_per_second"`
	} `koanf:"model"`

	Storage struct {
		DatabaseURL  string `koanf:"database_url"`
		PersistVault bool   `koanf:"persist_vault"`
	} `koanf:"storage"`

	Redaction struct {
		// MasterKey seals per-case vaults at rest. Required whenever
		// persist_vault is on.
		MasterKey      string   `koanf:"master_key"`
		HashLength     int      `koanf:"hash_length"`
		RequiredFields []string `koanf:"required_fields"`
		// Allowlist, when non-empty, drops all top-level record fields
		// not named here before redaction runs.
		Allowlist []string `koanf:"allowlist"`
	} `koanf:"redaction"`

	Logging struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"logging"`
}

// Load reads configuration from the given path, or from the default
// locations when path is empty.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":               8080,
		"model.provider":            "openai",
		"model.name":                "gpt-4o-mini",
		"model.temperature":         0.25,
		"model.timeout_seconds":     120,
		"model.requests_per_second": 1.0,
		"storage.persist_vault":     true,
		"redaction.hash_length":     6,
		"redaction.required_fields": []string{"case_id", "summary"},
		"logging.level":             "info",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./sarforge.toml", "$HOME/.sarforge.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("SARFORGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SARFORGE_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// Init writes a sample configuration file.
func Init(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# sarforge configuration

[server]
port = 8080

[model]
provider = "openai"
api_key = "your-api-key"
name = "gpt-4o-mini"
temperature = 0.25
timeout_seconds = 120
requests_per_second = 1.0

[storage]
database_url = "postgres://localhost:5432/sarforge"
persist_vault = true

[redaction]
master_key = "change-me-32-bytes-of-entropy"
hash_length = 6
required_fields = ["case_id", "summary"]
# allowlist = ["case_id", "summary", "timeline", "indicators", "amount_usd", "detected_by", "actions_taken", "date"]

[logging]
level = "info"
pretty = false
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks that the configuration is usable for serving.
func Validate(config *Config) error {
	if config.Model.Provider == "" {
		return fmt.Errorf("model provider is required")
	}
	if config.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if config.Model.Provider != "ollama" && config.Model.APIKey == "" {
		return fmt.Errorf("model api_key is required for provider %s", config.Model.Provider)
	}
	if config.Storage.PersistVault && config.Redaction.MasterKey == "" {
		return fmt.Errorf("redaction master_key is required when vault persistence is enabled")
	}
	if config.Redaction.HashLength < 4 || config.Redaction.HashLength > 32 {
		return fmt.Errorf("redaction hash_length must be between 4 and 32")
	}
	return nil
}
