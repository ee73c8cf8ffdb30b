// Copyright 2026 The Majordomo Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the conversation service's YAML configuration.
//
// Configuration comes from a single file specified by the
// MAJORDOMO_CONFIG environment variable or a --config flag. There are
// no fallbacks or automatic discovery: deterministic, auditable
// configuration with no hidden overrides. The only expansion
// performed is ${VAR} and ${VAR:-default} substitution, so secrets
// like the hub token can live in the environment instead of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/majordomo-home/majordomo/lib/hub"
)

// Config is the conversation service's configuration.
type Config struct {
	// Hub connects to the smart-home control plane.
	Hub HubConfig `yaml:"hub"`

	// Bedrock selects the model endpoint and credentials.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Paths configures filesystem locations.
	Paths PathsConfig `yaml:"paths"`

	// Sessions configures session lifecycle.
	Sessions SessionsConfig `yaml:"sessions"`

	// Transcripts configures turn recording.
	Transcripts TranscriptsConfig `yaml:"transcripts"`

	// Agents are the conversation agents the daemon attaches. At
	// least one is required.
	Agents []AgentConfig `yaml:"agents"`
}

// HubConfig points at the hub's REST API.
type HubConfig struct {
	// BaseURL is the hub's API root, e.g. "http://homeassistant.local:8123".
	BaseURL string `yaml:"base_url"`

	// Token is the long-lived access token. Usually "${HUB_TOKEN}".
	Token string `yaml:"token"`

	// Expose selects which entities the assistant sees and controls.
	Expose hub.ExposeFilter `yaml:"expose"`
}

// BedrockConfig selects the model endpoint. Exactly one of Region or
// BaseURL must be set; BaseURL wins when both are (it exists for
// tests and private endpoints).
type BedrockConfig struct {
	// Region is the AWS region hosting the Bedrock runtime.
	Region string `yaml:"region"`

	// BaseURL overrides the regional endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is the Bedrock API key sent as a bearer token. Usually
	// "${BEDROCK_API_KEY}". Empty is valid when the HTTP transport
	// handles signing instead.
	APIKey string `yaml:"api_key"`
}

// PathsConfig configures filesystem locations.
type PathsConfig struct {
	// State is the directory for the session database. Created if
	// missing.
	State string `yaml:"state"`

	// Transcripts is the directory for transcript files. Defaults to
	// State/transcripts.
	Transcripts string `yaml:"transcripts"`

	// Tools is an optional directory of declared-tool JSONC files.
	Tools string `yaml:"tools"`

	// Socket is the Unix socket path the daemon serves on.
	Socket string `yaml:"socket"`
}

// SessionsConfig configures session lifecycle.
type SessionsConfig struct {
	// IdleTimeout is how long a session may sit idle before it is
	// expired and its transcript archived, as a Go duration string.
	// Empty disables expiry.
	IdleTimeout string `yaml:"idle_timeout"`

	// SweepInterval is how often the expiry sweep runs. Defaults to
	// a tenth of IdleTimeout, clamped to [1m, 15m].
	SweepInterval string `yaml:"sweep_interval"`
}

// TranscriptsConfig configures turn recording.
type TranscriptsConfig struct {
	// Enabled turns transcript recording on.
	Enabled bool `yaml:"enabled"`

	// Recipient is an optional age public key (age1...); archives
	// are encrypted to it.
	Recipient string `yaml:"recipient"`
}

// AgentConfig is one conversation agent. The option names mirror the
// service protocol and the stored settings surface.
type AgentConfig struct {
	// Name identifies the agent to clients. Required, unique.
	Name string `yaml:"name"`

	// Model is the Bedrock model identifier. Required.
	Model string `yaml:"model"`

	// Temperature, TopP, and TopK steer sampling. Unset means the
	// model's default; TopK is model-family dependent.
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`

	// MaxTokens bounds the model's output per invocation.
	MaxTokens int `yaml:"max_tokens"`

	// RememberConversation includes prior exchanges in the model's
	// context. nil defaults to true.
	RememberConversation *bool `yaml:"remember_conversation"`

	// RememberNumInteractions is how many complete user/assistant
	// interactions are retained when RememberConversation is true.
	RememberNumInteractions int `yaml:"remember_num_interactions"`

	// MaxToolCallIterations bounds model invocations per turn.
	MaxToolCallIterations int `yaml:"max_tool_call_iterations"`

	// RefreshSystemPromptEachTurn re-renders the system prompt when
	// the device context changes. nil defaults to true.
	RefreshSystemPromptEachTurn *bool `yaml:"refresh_system_prompt_each_turn"`

	// ExtraExposedAttributes extends the default attribute subset
	// shown per entity in the system prompt.
	ExtraExposedAttributes []string `yaml:"extra_exposed_attributes"`

	// Persona is the leading prompt text. Empty selects the built-in
	// persona.
	Persona string `yaml:"persona"`

	// ContextWindow overrides the model's context window in tokens.
	// Zero selects the known window for the model.
	ContextWindow int `yaml:"context_window"`
}

// Agent defaults, applied by Load for fields left unset.
const (
	DefaultMaxTokens               = 1024
	DefaultRememberNumInteractions = 20
	DefaultMaxToolCallIterations   = 10
)

// Load loads configuration from the MAJORDOMO_CONFIG environment
// variable. Fails when the variable is not set: there is no implicit
// config location.
func Load() (*Config, error) {
	configPath := os.Getenv("MAJORDOMO_CONFIG")
	if configPath == "" {
		return nil, errors.New("MAJORDOMO_CONFIG environment variable not set; " +
			"set it to the path of your majordomo.yaml config file, or use the --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, expands
// ${VAR} references, applies defaults, and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	config.expandVariables()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// applyDefaults fills unset fields.
func (config *Config) applyDefaults() {
	if config.Paths.State == "" {
		home, _ := os.UserHomeDir()
		config.Paths.State = filepath.Join(home, ".local", "share", "majordomo")
	}
	if config.Paths.Transcripts == "" {
		config.Paths.Transcripts = filepath.Join(config.Paths.State, "transcripts")
	}
	if config.Paths.Socket == "" {
		config.Paths.Socket = filepath.Join(config.Paths.State, "conversation.sock")
	}

	enabled := true
	for index := range config.Agents {
		agent := &config.Agents[index]
		if agent.MaxTokens == 0 {
			agent.MaxTokens = DefaultMaxTokens
		}
		if agent.RememberNumInteractions == 0 {
			agent.RememberNumInteractions = DefaultRememberNumInteractions
		}
		if agent.MaxToolCallIterations == 0 {
			agent.MaxToolCallIterations = DefaultMaxToolCallIterations
		}
		if agent.RememberConversation == nil {
			agent.RememberConversation = &enabled
		}
		if agent.RefreshSystemPromptEachTurn == nil {
			agent.RefreshSystemPromptEachTurn = &enabled
		}
	}
}

// ParseIdleTimeout parses the configured idle timeout. Zero means expiry
// is disabled.
func (config *SessionsConfig) ParseIdleTimeout() (time.Duration, error) {
	if config.IdleTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(config.IdleTimeout)
}

// ParseSweepInterval returns the expiry sweep interval: the
// configured value, or a tenth of the idle timeout clamped to
// [1m, 15m].
func (config *SessionsConfig) ParseSweepInterval(idleTimeout time.Duration) (time.Duration, error) {
	if config.SweepInterval != "" {
		return time.ParseDuration(config.SweepInterval)
	}
	interval := idleTimeout / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	if interval > 15*time.Minute {
		interval = 15 * time.Minute
	}
	return interval, nil
}

// Validate checks the configuration. All problems are reported at
// once, joined.
func (config *Config) Validate() error {
	var problems []error

	if config.Hub.BaseURL == "" {
		problems = append(problems, errors.New("hub.base_url is required"))
	}
	if config.Hub.Token == "" {
		problems = append(problems, errors.New("hub.token is required"))
	}
	if config.Bedrock.Region == "" && config.Bedrock.BaseURL == "" {
		problems = append(problems, errors.New("bedrock.region or bedrock.base_url is required"))
	}
	if len(config.Agents) == 0 {
		problems = append(problems, errors.New("at least one agent is required"))
	}

	seen := make(map[string]bool)
	for index, agent := range config.Agents {
		where := fmt.Sprintf("agents[%d]", index)
		if agent.Name == "" {
			problems = append(problems, fmt.Errorf("%s: name is required", where))
		} else if !agentNamePattern.MatchString(agent.Name) {
			// Names become filenames (per-agent session database,
			// transcript directory).
			problems = append(problems, fmt.Errorf("%s: name %q must contain only letters, digits, - and _", where, agent.Name))
		} else if seen[agent.Name] {
			problems = append(problems, fmt.Errorf("%s: duplicate agent name %q", where, agent.Name))
		} else {
			seen[agent.Name] = true
		}
		if agent.Model == "" {
			problems = append(problems, fmt.Errorf("%s: model is required", where))
		}
		if agent.MaxTokens < 0 {
			problems = append(problems, fmt.Errorf("%s: max_tokens must not be negative", where))
		}
		if agent.MaxToolCallIterations < 0 {
			problems = append(problems, fmt.Errorf("%s: max_tool_call_iterations must not be negative", where))
		}
		if agent.RememberNumInteractions < 0 {
			problems = append(problems, fmt.Errorf("%s: remember_num_interactions must not be negative", where))
		}
	}

	if _, err := config.Sessions.ParseIdleTimeout(); err != nil {
		problems = append(problems, fmt.Errorf("sessions.idle_timeout: %w", err))
	}
	if config.Sessions.SweepInterval != "" {
		if _, err := time.ParseDuration(config.Sessions.SweepInterval); err != nil {
			problems = append(problems, fmt.Errorf("sessions.sweep_interval: %w", err))
		}
	}

	return errors.Join(problems...)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// fields that plausibly carry secrets or host-specific paths.
func (config *Config) expandVariables() {
	config.Hub.BaseURL = expandVars(config.Hub.BaseURL)
	config.Hub.Token = expandVars(config.Hub.Token)
	config.Bedrock.BaseURL = expandVars(config.Bedrock.BaseURL)
	config.Bedrock.APIKey = expandVars(config.Bedrock.APIKey)
	config.Paths.State = expandVars(config.Paths.State)
	config.Paths.Transcripts = expandVars(config.Paths.Transcripts)
	config.Paths.Tools = expandVars(config.Paths.Tools)
	config.Paths.Socket = expandVars(config.Paths.Socket)
	config.Transcripts.Recipient = expandVars(config.Transcripts.Recipient)
}

var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
