package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the uniqa resolution service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Memory    MemoryConfig    `yaml:"memory"`
	Agent     AgentConfig     `yaml:"agent"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Tools     ToolsConfig     `yaml:"tools"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds one LLM provider endpoint and its credential pool.
type ProviderConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Keys     []string `yaml:"keys"`
	Model    string   `yaml:"model"`
	RPMLimit int      `yaml:"rpm_limit"` // 0 = unlimited
}

// LLMConfig holds LLM gateway settings.
type LLMConfig struct {
	Providers        map[string]ProviderConfig `yaml:"providers"`
	GenerateProvider string                    `yaml:"generate_provider"`
	EmbedProvider    string                    `yaml:"embed_provider"`
	EmbedModel       string                    `yaml:"embed_model"`
	EmbedDimensions  int                       `yaml:"embed_dimensions"`
	MaxAttempts      int                       `yaml:"max_attempts"`
	BackoffInitialMS int                       `yaml:"backoff_initial_ms"`
	BackoffMaxMS     int                       `yaml:"backoff_max_ms"`
	KeyCooldownSec   int                       `yaml:"key_cooldown_sec"`
	TokenBudget      int                       `yaml:"token_budget"`
	Temperature      float32                   `yaml:"temperature"`
	RequestTimeout   int                       `yaml:"request_timeout_sec"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	TTLSec              int     `yaml:"ttl_sec"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinConfidence       float64 `yaml:"min_confidence"`
	MinAnswerLen        int     `yaml:"min_answer_len"`
}

// RetrieverConfig holds retrieval and re-ranking settings.
type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	MinScore       float64 `yaml:"min_score"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	Window          int `yaml:"window"`
	SessionTTLSec   int `yaml:"session_ttl_sec"`
	MaxSummaryChars int `yaml:"max_summary_chars"`
}

// AgentConfig holds agent resolver settings.
type AgentConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxIterations  int  `yaml:"max_iterations"`
	ToolTimeoutSec int  `yaml:"tool_timeout_sec"`
}

// ResolverConfig holds decision engine settings.
type ResolverConfig struct {
	WallClockBudgetSec int `yaml:"wall_clock_budget_sec"`
}

// ToolsConfig holds external tool endpoint settings.
type ToolsConfig struct {
	StudentAPIBaseURL string `yaml:"student_api_base_url"`
	TimeoutSec        int    `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = 3
	}
	if c.LLM.BackoffInitialMS <= 0 {
		c.LLM.BackoffInitialMS = 200
	}
	if c.LLM.BackoffMaxMS <= 0 {
		c.LLM.BackoffMaxMS = 5000
	}
	if c.LLM.KeyCooldownSec <= 0 {
		c.LLM.KeyCooldownSec = 61
	}
	if c.LLM.TokenBudget <= 0 {
		c.LLM.TokenBudget = 6000
	}
	if c.LLM.RequestTimeout <= 0 {
		c.LLM.RequestTimeout = 30
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.SimilarityThreshold <= 0 {
		c.Cache.SimilarityThreshold = 0.92
	}
	if c.Cache.MinConfidence <= 0 {
		c.Cache.MinConfidence = 0.6
	}
	if c.Cache.MinAnswerLen <= 0 {
		c.Cache.MinAnswerLen = 10
	}
	if c.Retriever.TopK <= 0 {
		c.Retriever.TopK = 5
	}
	if c.Retriever.MinScore <= 0 {
		c.Retriever.MinScore = 0.2
	}
	if c.Retriever.SemanticWeight <= 0 {
		c.Retriever.SemanticWeight = 0.8
	}
	if c.Retriever.KeywordWeight <= 0 {
		c.Retriever.KeywordWeight = 0.2
	}
	if c.Memory.Window <= 0 {
		c.Memory.Window = 10
	}
	if c.Memory.SessionTTLSec <= 0 {
		c.Memory.SessionTTLSec = 3600
	}
	if c.Memory.MaxSummaryChars <= 0 {
		c.Memory.MaxSummaryChars = 4000
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 6
	}
	if c.Agent.ToolTimeoutSec <= 0 {
		c.Agent.ToolTimeoutSec = 15
	}
	if c.Resolver.WallClockBudgetSec <= 0 {
		c.Resolver.WallClockBudgetSec = 60
	}
	if c.Tools.TimeoutSec <= 0 {
		c.Tools.TimeoutSec = 15
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers is required")
	}
	for _, name := range []string{c.LLM.GenerateProvider, c.LLM.EmbedProvider} {
		if name == "" {
			return fmt.Errorf("llm.generate_provider and llm.embed_provider are required")
		}
		p, ok := c.LLM.Providers[name]
		if !ok {
			return fmt.Errorf("llm provider %q is not defined", name)
		}
		if p.Endpoint == "" {
			return fmt.Errorf("llm.providers.%s.endpoint is required", name)
		}
		if len(p.Keys) == 0 {
			return fmt.Errorf("llm.providers.%s.keys is required", name)
		}
	}
	if c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in (0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
