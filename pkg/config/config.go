// Package config loads the service configuration from YAML with environment
// variable expansion. Secrets never live in the file: they are referenced as
// ${VAR} (or ${VAR:-default}) and resolved at load time, after an optional
// .env file has been applied.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/salonkit/concierge/pkg/stage"
)

// Duration decodes YAML duration strings ("45s", "500ms") as well as plain
// integers, which are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Model      ModelConfig            `yaml:"model"`
	Classifier ClassifierConfig       `yaml:"classifier"`
	Agents     map[string]AgentConfig `yaml:"agents"`
	YClients   YClientsConfig         `yaml:"yclients"`
	Store      StoreConfig            `yaml:"store"`
	Server     ServerConfig           `yaml:"server"`
	Retry      RetryConfig            `yaml:"retry"`
	Logging    LoggingConfig          `yaml:"logging"`
}

// ModelConfig is the Responses API endpoint shared by every agent.
type ModelConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Project         string        `yaml:"project"`
	Name            string        `yaml:"name"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         Duration      `yaml:"timeout"`
}

// ClassifierConfig drives the stage-detection turn. A nil Temperature
// inherits the model default; classification usually wants 0.
type ClassifierConfig struct {
	Instructions  string   `yaml:"instructions"`
	FallbackStage string   `yaml:"fallback_stage"`
	Temperature   *float64 `yaml:"temperature"`
}

// AgentConfig is one stage persona. The map key in Config.Agents is the
// stage name. Temperature and MaxOutputTokens override the model defaults
// when set.
type AgentConfig struct {
	Instructions    string   `yaml:"instructions"`
	MaxRounds       int      `yaml:"max_rounds"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	Temperature     *float64 `yaml:"temperature"`
	Tools           []string `yaml:"tools"`
}

type YClientsConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PartnerToken string        `yaml:"partner_token"`
	UserToken    string        `yaml:"user_token"`
	CompanyID    string        `yaml:"company_id"`
	Timeout      Duration      `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// AuthHeader assembles the backend's composite Authorization value.
func (c YClientsConfig) AuthHeader() string {
	return fmt.Sprintf("Bearer %s, User %s", c.PartnerToken, c.UserToken)
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  Duration      `yaml:"read_timeout"`
	WriteTimeout Duration      `yaml:"write_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   Duration      `yaml:"base_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "simple" or "verbose"
}

// Load reads the YAML file at path, expands environment references and
// applies defaults. A .env file next to the working directory is loaded
// first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes with env expansion, defaulting and validation.
func Parse(raw []byte) (*Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	expanded := expandValue(tree)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("re-encode config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(reencoded, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Model.MaxOutputTokens == 0 {
		c.Model.MaxOutputTokens = 1024
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = Duration(120 * time.Second)
	}
	if c.Classifier.FallbackStage == "" {
		c.Classifier.FallbackStage = string(stage.DefaultFallback)
	}
	for name, agent := range c.Agents {
		if agent.MaxRounds == 0 {
			agent.MaxRounds = 10
			c.Agents[name] = agent
		}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(150 * time.Second)
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = Duration(2 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

func (c *Config) Validate() error {
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config: model.base_url is required")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("config: model.api_key is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("config: model.name is required")
	}
	if c.Classifier.Instructions == "" {
		return fmt.Errorf("config: classifier.instructions is required")
	}
	if !stage.Valid(stage.Stage(c.Classifier.FallbackStage)) {
		return fmt.Errorf("config: classifier.fallback_stage %q is not a known stage", c.Classifier.FallbackStage)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}
	for name, agent := range c.Agents {
		if !stage.Valid(stage.Stage(name)) {
			return fmt.Errorf("config: agent %q is not a known stage", name)
		}
		if agent.Instructions == "" {
			return fmt.Errorf("config: agent %q needs instructions", name)
		}
	}
	if _, ok := c.Agents[c.Classifier.FallbackStage]; !ok {
		return fmt.Errorf("config: fallback stage %q has no agent", c.Classifier.FallbackStage)
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// envVarPattern matches ${VAR}, ${VAR:-default} and $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = expandValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if idx := strings.Index(inner, ":-"); idx != -1 {
				if val := os.Getenv(inner[:idx]); val != "" {
					return val
				}
				return inner[idx+2:]
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}
