package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err, "explicit missing config path must fail")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 6, cfg.Redaction.HashLength)
	assert.Equal(t, []string{"case_id", "summary"}, cfg.Redaction.RequiredFields)
	assert.True(t, cfg.Storage.PersistVault)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sarforge.toml")
	content := `
[server]
port = 9999

[model]
provider = "ollama"
name = "llama3"

[redaction]
hash_length = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Model.Provider)
	assert.Equal(t, 8, cfg.Redaction.HashLength)
	assert.Equal(t, "info", cfg.Logging.Level, "untouched defaults must survive")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SARFORGE_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sarforge.toml")
	require.NoError(t, Init(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Model.Provider)

	assert.Error(t, Init(path))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Model.APIKey = "sk-test"
		cfg.Redaction.MasterKey = "unit-test-master-key"
		return cfg
	}

	cfg := valid()
	assert.NoError(t, Validate(cfg))

	cfg = valid()
	cfg.Model.Provider = ""
	assert.Error(t, Validate(cfg))

	cfg = valid()
	cfg.Model.APIKey = ""
	assert.Error(t, Validate(cfg), "api key required for hosted providers")

	cfg = valid()
	cfg.Model.Provider = "ollama"
	cfg.Model.APIKey = ""
	assert.NoError(t, Validate(cfg), "ollama needs no api key")

	cfg = valid()
	cfg.Storage.PersistVault = true
	cfg.Redaction.MasterKey = ""
	assert.Error(t, Validate(cfg))

	cfg = valid()
	cfg.Redaction.HashLength = 2
	assert.Error(t, Validate(cfg))
}
