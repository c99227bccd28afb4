package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Model providers.
const (
	ProviderDeepSeek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Memory backends.
const (
	BackendHeySol   = "heysol"
	BackendPostgres = "postgres"
	BackendInMemory = "inmemory"
)

// Memory failure policies.
const (
	PolicyDegrade = "degrade"
	PolicyFail    = "fail"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "mammochat.toml"

// Config is the full application configuration.
type Config struct {
	Model  ModelConfig  `toml:"model"`
	Memory MemoryConfig `toml:"memory"`
	Agent  AgentConfig  `toml:"agent"`
	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`
}

type ModelConfig struct {
	Provider    string   `toml:"provider"`
	Name        string   `toml:"name"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Temperature float32  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	Timeout     Duration `toml:"timeout"`
	MaxRetries  int      `toml:"max_retries"`
}

var (
	defaultModels = map[string]string{
		ProviderDeepSeek:  "deepseek-chat",
		ProviderOpenAI:    "gpt-4o-mini",
		ProviderAnthropic: "claude-sonnet-4-5",
	}
	defaultEndpoints = map[string]string{
		ProviderDeepSeek: "https://api.deepseek.com",
	}
)

// ModelName is Name, or the provider's default model when Name is empty.
func (m ModelConfig) ModelName() string {
	if m.Name != "" {
		return m.Name
	}
	return defaultModels[m.Provider]
}

// Endpoint is BaseURL, or the provider's endpoint when BaseURL is empty. An
// empty result leaves the choice to the provider client.
func (m ModelConfig) Endpoint() string {
	if m.BaseURL != "" {
		return m.BaseURL
	}
	return defaultEndpoints[m.Provider]
}

type MemoryConfig struct {
	Backend       string   `toml:"backend"`
	APIKey        string   `toml:"api_key"`
	BaseURL       string   `toml:"base_url"`
	DatabaseURL   string   `toml:"database_url"`
	SpaceIDs      []string `toml:"space_ids"`
	RateLimit     float64  `toml:"rate_limit"`
	RateBurst     int      `toml:"rate_burst"`
	FailurePolicy string   `toml:"failure_policy"`
}

type AgentConfig struct {
	MaxToolRounds     int    `toml:"max_tool_rounds"`
	MaxParallelTools  int    `toml:"max_parallel_tools"`
	MemorySearchLimit int    `toml:"memory_search_limit"`
	HistoryWindow     int    `toml:"history_window"`
	PromptFile        string `toml:"prompt_file"`
}

type StoreConfig struct {
	Path        string `toml:"path"`
	HistoryFile string `toml:"history_file"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string such as "60s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    ProviderDeepSeek,
			Temperature: 0.7,
			Timeout:     Duration{60 * time.Second},
			MaxRetries:  2,
		},
		Memory: MemoryConfig{
			Backend:       BackendHeySol,
			BaseURL:       "https://core.heysol.ai/api/v1",
			RateLimit:     5,
			RateBurst:     10,
			FailurePolicy: PolicyDegrade,
		},
		Agent: AgentConfig{
			MaxToolRounds:     8,
			MaxParallelTools:  4,
			MemorySearchLimit: 5,
			HistoryWindow:     20,
		},
		Store: StoreConfig{
			Path:        "mammochat.db",
			HistoryFile: ".mammochat_history",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "compact",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file, then the
// environment (after loading .env files). path may be empty, in which case
// DefaultFile is used if present. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	cfg := Default()
	if path == "" {
		if env := os.Getenv("MAMMOCHAT_CONFIG"); env != "" {
			path = env
		} else if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadTOML decodes path over cfg. Keys absent from the file keep their value.
func LoadTOML(cfg *Config, path string) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from environment variables. Empty values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	get := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value), true
			}
		}
		return "", false
	}

	if v, ok := get("MAMMOCHAT_MODEL_PROVIDER"); ok {
		c.Model.Provider = strings.ToLower(v)
	}
	if v, ok := get("MAMMOCHAT_MODEL"); ok {
		c.Model.Name = v
	}
	switch c.Model.Provider {
	case ProviderAnthropic:
		if v, ok := get("ANTHROPIC_API_KEY"); ok {
			c.Model.APIKey = v
		}
		if v, ok := get("ANTHROPIC_BASE_URL"); ok {
			c.Model.BaseURL = v
		}
	case ProviderOpenAI:
		if v, ok := get("OPENAI_API_KEY"); ok {
			c.Model.APIKey = v
		}
		if v, ok := get("OPENAI_BASE_URL"); ok {
			c.Model.BaseURL = v
		}
	default:
		if v, ok := get("DEEPSEEK_API_KEY"); ok {
			c.Model.APIKey = v
		}
		if v, ok := get("DEEPSEEK_BASE_URL"); ok {
			c.Model.BaseURL = v
		}
	}
	if v, ok := get("MAMMOCHAT_MODEL_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Model.Timeout = Duration{d}
		}
	}

	if v, ok := get("MAMMOCHAT_MEMORY_BACKEND"); ok {
		c.Memory.Backend = strings.ToLower(v)
	}
	if v, ok := get("HEYSOL_API_KEY"); ok {
		c.Memory.APIKey = v
	}
	if v, ok := get("HEYSOL_BASE_URL"); ok {
		c.Memory.BaseURL = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.Memory.DatabaseURL = v
	}
	if v, ok := get("MAMMOCHAT_MEMORY_SPACES"); ok {
		c.Memory.SpaceIDs = splitList(v)
	}
	if v, ok := get("MAMMOCHAT_MEMORY_POLICY"); ok {
		c.Memory.FailurePolicy = strings.ToLower(v)
	}
	if v, ok := get("MAMMOCHAT_MEMORY_RATE_LIMIT"); ok {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Memory.RateLimit = rate
		}
	}

	if v, ok := get("MAMMOCHAT_PROMPT_FILE"); ok {
		c.Agent.PromptFile = v
	}
	if v, ok := get("MAMMOCHAT_STORE_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := get("MAMMOCHAT_LOG_LEVEL", "LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("MAMMOCHAT_LOG_FORMAT", "LOG_FORMAT"); ok {
		c.Log.Format = v
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return "invalid configuration: " + strings.Join(messages, "; ")
}

// Validate reports every invalid field at once. A missing HeySol key is not
// an error: the memory gateway reports it on first use and the memory
// failure policy decides what happens.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains([]string{ProviderDeepSeek, ProviderOpenAI, ProviderAnthropic}, c.Model.Provider) {
		add("model.provider", "unknown provider %q, want deepseek, openai or anthropic", c.Model.Provider)
	}
	if strings.TrimSpace(c.Model.APIKey) == "" {
		add("model.api_key", "is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add("model.temperature", "must be between 0 and 2, got %v", c.Model.Temperature)
	}
	if c.Model.Timeout.Duration < 0 {
		add("model.timeout", "must not be negative")
	}
	if c.Model.MaxRetries < 0 {
		add("model.max_retries", "must not be negative")
	}

	switch c.Memory.Backend {
	case BackendHeySol, BackendInMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Memory.DatabaseURL) == "" {
			add("memory.database_url", "is required for the postgres backend")
		}
	default:
		add("memory.backend", "unknown backend %q, want heysol, postgres or inmemory", c.Memory.Backend)
	}
	if c.Memory.FailurePolicy != PolicyDegrade && c.Memory.FailurePolicy != PolicyFail {
		add("memory.failure_policy", "unknown policy %q, want degrade or fail", c.Memory.FailurePolicy)
	}
	if c.Memory.RateLimit < 0 {
		add("memory.rate_limit", "must not be negative")
	}

	if c.Agent.MaxToolRounds < 1 {
		add("agent.max_tool_rounds", "must be at least 1")
	}
	if c.Agent.MaxParallelTools < 1 {
		add("agent.max_parallel_tools", "must be at least 1")
	}
	if c.Agent.MemorySearchLimit < 1 || c.Agent.MemorySearchLimit > 100 {
		add("agent.memory_search_limit", "must be between 1 and 100")
	}
	if c.Agent.HistoryWindow < 1 {
		add("agent.history_window", "must be at least 1")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Redacted returns a copy safe to print, with credentials masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Model.APIKey = mask(c.Model.APIKey)
	out.Memory.APIKey = mask(c.Memory.APIKey)
	if c.Memory.DatabaseURL != "" {
		out.Memory.DatabaseURL = "***"
	}
	out.Memory.SpaceIDs = slices.Clone(c.Memory.SpaceIDs)
	return out
}

func mask(secret string) string {
	if len(secret) <= 8 {
		if secret == "" {
			return ""
		}
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
