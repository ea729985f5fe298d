package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.General.RepoDir)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "github", cfg.Hosting.Provider)
	assert.Equal(t, "medium", cfg.Resolve.MinConfidence)
	assert.True(t, cfg.Resolve.SafetyPrefer)
	assert.Equal(t, "more-lines", cfg.Resolve.BracePreference)
	assert.Equal(t, 4, cfg.Resolve.Parallelism)
	assert.Equal(t, "gemini", cfg.Reasoner.Provider)
	assert.Equal(t, 50, cfg.Reasoner.MaxCalls)
	assert.Equal(t, 200, cfg.Deps.HistoryLimit)
	assert.True(t, cfg.Deps.AssumeDependentOnFailure)
	assert.True(t, cfg.Report.HTML)
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releaseagent.toml")
	content := `
[general]
log_level = "debug"

[hosting]
owner = "acme"
repo = "firmware"
token = "tok"

[resolve]
min_confidence = "high"
parallelism = 8

[reasoner]
enabled = true
provider = "openai"
api_key = "sk-test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "acme", cfg.Hosting.Owner)
	assert.Equal(t, "high", cfg.Resolve.MinConfidence)
	assert.Equal(t, 8, cfg.Resolve.Parallelism)
	assert.Equal(t, "openai", cfg.Reasoner.Provider)
	// Untouched keys keep their defaults.
	assert.Equal(t, "more-lines", cfg.Resolve.BracePreference)
	assert.Equal(t, 50, cfg.Reasoner.MaxCalls)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RELEASEAGENT_HOSTING_TOKEN", "env-token")
	t.Setenv("RELEASEAGENT_HOSTING_OWNER", "env-org")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Hosting.Token)
	assert.Equal(t, "env-org", cfg.Hosting.Owner)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releaseagent.toml")
	require.NoError(t, InitConfig(path))

	// The sample must itself be loadable and valid.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Error(t, InitConfig(path), "refuses to overwrite an existing file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("defaults pass", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("bad confidence", func(t *testing.T) {
		cfg := valid()
		cfg.Resolve.MinConfidence = "certain"
		assert.Error(t, Validate(cfg))
	})

	t.Run("bad brace preference", func(t *testing.T) {
		cfg := valid()
		cfg.Resolve.BracePreference = "k&r"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unsupported hosting provider", func(t *testing.T) {
		cfg := valid()
		cfg.Hosting.Provider = "gitlab"
		assert.Error(t, Validate(cfg))
	})

	t.Run("reasoner requires api key", func(t *testing.T) {
		cfg := valid()
		cfg.Reasoner.Enabled = true
		cfg.Reasoner.APIKey = ""
		assert.Error(t, Validate(cfg))
	})

	t.Run("ollama needs no api key", func(t *testing.T) {
		cfg := valid()
		cfg.Reasoner.Enabled = true
		cfg.Reasoner.Provider = "ollama"
		cfg.Reasoner.APIKey = ""
		assert.NoError(t, Validate(cfg))
	})

	t.Run("negative call budget", func(t *testing.T) {
		cfg := valid()
		cfg.Reasoner.Enabled = true
		cfg.Reasoner.Provider = "ollama"
		cfg.Reasoner.MaxCalls = -1
		assert.Error(t, Validate(cfg))
	})
}
