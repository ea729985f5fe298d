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

	"github.com/releaseagent/pkg/models"
)

// Config represents the application configuration.
type Config struct {
	General struct {
		RepoDir  string `koanf:"repo_dir"`
		LogDir   string `koanf:"log_dir"`
		LogLevel string `koanf:"log_level"`
	} `koanf:"general"`

	Hosting struct {
		Provider string `koanf:"provider"`
		BaseURL  string `koanf:"base_url"`
		Token    string `koanf:"token"`
		Owner    string `koanf:"owner"`
		Repo     string `koanf:"repo"`
	} `koanf:"hosting"`

	Resolve struct {
		MinConfidence   string `koanf:"min_confidence"`
		SafetyPrefer    bool   `koanf:"safety_prefer"`
		BracePreference string `koanf:"brace_preference"`
		Parallelism     int    `koanf:"parallelism"`
		AlwaysFallback  bool   `koanf:"always_fallback"`
	} `koanf:"resolve"`

	Reasoner struct {
		Enabled           bool    `koanf:"enabled"`
		Provider          string  `koanf:"provider"`
		APIKey            string  `koanf:"api_key"`
		BaseURL           string  `koanf:"base_url"`
		Model             string  `koanf:"model"`
		Temperature       float64 `koanf:"temperature"`
		MaxTokens         int     `koanf:"max_tokens"`
		MaxCalls          int     `koanf:"max_calls"`
		CallTimeoutSecs   int     `koanf:"call_timeout_secs"`
		RequestsPerMinute int     `koanf:"requests_per_minute"`
		AuditLog          string  `koanf:"audit_log"`
	} `koanf:"reasoner"`

	Deps struct {
		HistoryLimit             int  `koanf:"history_limit"`
		AssumeDependentOnFailure bool `koanf:"assume_dependent_on_failure"`
	} `koanf:"deps"`

	Report struct {
		Dir  string `koanf:"dir"`
		HTML bool   `koanf:"html"`
	} `koanf:"report"`
}

// LoadConfig loads the configuration: built-in defaults, then an optional
// TOML file, then RELEASEAGENT_-prefixed environment variables.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"general.repo_dir":                 ".",
		"general.log_dir":                  "resolution_logs",
		"general.log_level":                "info",
		"hosting.provider":                 "github",
		"resolve.min_confidence":           "medium",
		"resolve.safety_prefer":            true,
		"resolve.brace_preference":         "more-lines",
		"resolve.parallelism":              4,
		"reasoner.provider":                "gemini",
		"reasoner.model":                   "gemini-2.5-flash",
		"reasoner.temperature":             0.2,
		"reasoner.max_tokens":              2048,
		"reasoner.max_calls":               50,
		"reasoner.call_timeout_secs":       60,
		"reasoner.requests_per_minute":     20,
		"reasoner.audit_log":               "resolution_logs/reasoner_audit.jsonl",
		"deps.history_limit":               200,
		"deps.assume_dependent_on_failure": true,
		"report.dir":                       "reports",
		"report.html":                      true,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./releaseagent.toml", "$HOME/.releaseagent.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("RELEASEAGENT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELEASEAGENT_")), "_", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# ReleaseAgent Configuration

[general]
repo_dir = "."
log_dir = "resolution_logs"
log_level = "info"

[hosting]
provider = "github"
token = "your-github-token"
owner = "your-org"
repo = "your-repo"

[resolve]
min_confidence = "medium"
safety_prefer = true
brace_preference = "more-lines"
parallelism = 4
always_fallback = false

[reasoner]
enabled = true
provider = "gemini"
api_key = "your-gemini-api-key"
model = "gemini-2.5-flash"
temperature = 0.2
max_calls = 50
call_timeout_secs = 60
requests_per_minute = 20
audit_log = "resolution_logs/reasoner_audit.jsonl"

[deps]
history_limit = 200
assume_dependent_on_failure = true

[report]
dir = "reports"
html = true
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks the configuration for values that would fail mid-run.
func Validate(config *Config) error {
	if _, err := models.ParseConfidence(config.Resolve.MinConfidence); err != nil {
		return fmt.Errorf("resolve.min_confidence: %w", err)
	}

	switch config.Resolve.BracePreference {
	case "more-lines", "mode-side":
	default:
		return fmt.Errorf("resolve.brace_preference must be \"more-lines\" or \"mode-side\", got %q", config.Resolve.BracePreference)
	}

	if config.Hosting.Provider != "" && config.Hosting.Provider != "github" {
		return fmt.Errorf("unsupported hosting provider %q", config.Hosting.Provider)
	}

	if config.Reasoner.Enabled {
		switch config.Reasoner.Provider {
		case "openai", "gemini", "claude", "cohere", "ollama":
		default:
			return fmt.Errorf("unsupported reasoner provider %q", config.Reasoner.Provider)
		}
		if config.Reasoner.Provider != "ollama" && config.Reasoner.APIKey == "" {
			return fmt.Errorf("reasoner.api_key is required for provider %s", config.Reasoner.Provider)
		}
		if config.Reasoner.MaxCalls < 0 {
			return fmt.Errorf("reasoner.max_calls must not be negative")
		}
	}

	return nil
}
