package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ksktechai/livecontext-ai/pkg/icron"
	"github.com/ksktechai/livecontext-ai/pkg/log"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
// Model:
// - OLLAMA_BASE_URL: model backend base URL (default: http://localhost:11434)
// - OLLAMA_MODEL: model name (default: llama3.1)
// - OLLAMA_MOCK_MODE: bypass the model and answer with the fallback shape (default: false)
// - OLLAMA_TIMEOUT: model call timeout, Go duration (default: 60s)
//
// Agent:
// - AGENT_MAX_ITERATIONS: model calls per chat session (default: 5)
// - AGENT_SUMMARY_LIMIT: characters of tool output kept in evidence (default: 100)
//
// Tool endpoints (one pair per service: MARKET, NEWS, WEATHER, SYSTEM):
// - MCP_<SERVICE>_URL: base URL; empty leaves the service unconfigured
// - MCP_<SERVICE>_TIMEOUT: round trip cap, Go duration (default: 10s)
//
// System:
// - HTTP_ADDR (default: :8080), DATA_DIR (default: ./data), AUDIT_ENABLED (default: true)
// - PROBE_ENABLED (default: true), PROBE_CRON (default: 0 */1 * * * *)
// - LOG_LEVEL (default: info), TRACE_STDOUT (default: false)
type Config struct {
	LLM    LLMConfig    `json:"llm"`
	Agent  AgentConfig  `json:"agent"`
	Tools  ToolsConfig  `json:"tools"`
	HTTP   HTTPConfig   `json:"http"`
	Probe  ProbeConfig  `json:"probe"`
	System SystemConfig `json:"system"`
}

// LLMConfig describes the chat model backend.
type LLMConfig struct {
	BaseURL  string        `json:"base_url"`
	Model    string        `json:"model"`
	MockMode bool          `json:"mock_mode"`
	Timeout  time.Duration `json:"timeout"`
}

// AgentConfig bounds one chat session.
type AgentConfig struct {
	MaxIterations int `json:"max_iterations"`
	SummaryLimit  int `json:"summary_limit"`
}

// Endpoint is one tool service as seen from the gateway.
type Endpoint struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

// ToolsConfig maps each service key to its endpoint.
type ToolsConfig struct {
	Market  Endpoint `json:"market"`
	News    Endpoint `json:"news"`
	Weather Endpoint `json:"weather"`
	System  Endpoint `json:"system"`
}

// Endpoints returns the configured (non-empty URL) services keyed by service name.
func (c ToolsConfig) Endpoints() map[string]Endpoint {
	ret := make(map[string]Endpoint, 4)
	for key, ep := range map[string]Endpoint{
		"market":  c.Market,
		"news":    c.News,
		"weather": c.Weather,
		"system":  c.System,
	} {
		if strings.TrimSpace(ep.URL) != "" {
			ret[key] = ep
		}
	}
	return ret
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

// ProbeConfig controls the scheduled endpoint health probe.
type ProbeConfig struct {
	Enabled  bool   `json:"enabled"`
	CronExpr string `json:"cron_expr"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	AuditEnabled bool   `json:"audit_enabled"`
	LogLevel     string `json:"log_level"`

	// TraceStdout exports finished spans as JSON on stdout.
	TraceStdout bool `json:"trace_stdout"`
}

// DBPath is the SQLite file holding the chat audit trail.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "livecontext.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

const defaultToolTimeout = 10 * time.Second

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			BaseURL:  getEnvString("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:    getEnvString("OLLAMA_MODEL", "llama3.1"),
			MockMode: getEnvBool("OLLAMA_MOCK_MODE", false),
			Timeout:  getEnvDuration("OLLAMA_TIMEOUT", 60*time.Second),
		},
		Agent: AgentConfig{
			MaxIterations: getEnvInt("AGENT_MAX_ITERATIONS", 5),
			SummaryLimit:  getEnvInt("AGENT_SUMMARY_LIMIT", 100),
		},
		Tools: ToolsConfig{
			Market:  endpointFromEnv("MARKET"),
			News:    endpointFromEnv("NEWS"),
			Weather: endpointFromEnv("WEATHER"),
			System:  endpointFromEnv("SYSTEM"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		Probe: ProbeConfig{
			Enabled:  getEnvBool("PROBE_ENABLED", true),
			CronExpr: getEnvString("PROBE_CRON", "0 */1 * * * *"),
		},
		System: SystemConfig{
			DataDir:      getEnvString("DATA_DIR", "./data"),
			AuditEnabled: getEnvBool("AUDIT_ENABLED", true),
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
			TraceStdout:  getEnvBool("TRACE_STDOUT", false),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

func endpointFromEnv(service string) Endpoint {
	return Endpoint{
		URL:     strings.TrimRight(getEnvString("MCP_"+service+"_URL", ""), "/"),
		Timeout: getEnvDuration("MCP_"+service+"_TIMEOUT", defaultToolTimeout),
	}
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if !c.LLM.MockMode {
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("OLLAMA_BASE_URL is required unless OLLAMA_MOCK_MODE is set")
		}
		if c.LLM.Model == "" {
			return fmt.Errorf("OLLAMA_MODEL is required unless OLLAMA_MOCK_MODE is set")
		}
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("OLLAMA_TIMEOUT must be positive")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS must be at least 1")
	}
	if c.Agent.SummaryLimit < 1 {
		return fmt.Errorf("AGENT_SUMMARY_LIMIT must be at least 1")
	}
	for key, ep := range c.Tools.Endpoints() {
		if ep.Timeout <= 0 {
			return fmt.Errorf("MCP_%s_TIMEOUT must be positive", strings.ToUpper(key))
		}
	}
	if c.Probe.Enabled {
		if err := icron.Validate(c.Probe.CronExpr); err != nil {
			return fmt.Errorf("PROBE_CRON: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or bare integers as milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
