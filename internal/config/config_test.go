package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_ValidOnceKeyed(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderDeepSeek, cfg.Model.Provider)
	assert.Equal(t, PolicyDegrade, cfg.Memory.FailurePolicy)
	assert.Equal(t, 60*time.Second, cfg.Model.Timeout.Duration)
	assert.Equal(t, "deepseek-chat", cfg.Model.ModelName())
	assert.Equal(t, "https://api.deepseek.com", cfg.Model.Endpoint())
}

func TestModelConfig_ProviderDefaults(t *testing.T) {
	model := ModelConfig{Provider: ProviderAnthropic}
	assert.Equal(t, "claude-sonnet-4-5", model.ModelName())
	assert.Empty(t, model.Endpoint())

	model.Name = "claude-opus-4-1"
	model.BaseURL = "http://localhost:8080"
	assert.Equal(t, "claude-opus-4-1", model.ModelName())
	assert.Equal(t, "http://localhost:8080", model.Endpoint())
}

func TestLoadTOML_OverridesOnlyPresentKeys(t *testing.T) {
	path := writeFile(t, "mammochat.toml", `
[model]
name = "deepseek-reasoner"
timeout = "90s"

[memory]
backend = "inmemory"
space_ids = ["space-a", "space-b"]

[agent]
max_tool_rounds = 3
`)
	cfg := Default()
	require.NoError(t, LoadTOML(cfg, path))

	assert.Equal(t, "deepseek-reasoner", cfg.Model.Name)
	assert.Equal(t, 90*time.Second, cfg.Model.Timeout.Duration)
	assert.Equal(t, ProviderDeepSeek, cfg.Model.Provider)
	assert.Equal(t, BackendInMemory, cfg.Memory.Backend)
	assert.Equal(t, []string{"space-a", "space-b"}, cfg.Memory.SpaceIDs)
	assert.Equal(t, 3, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 4, cfg.Agent.MaxParallelTools)
}

func TestLoadTOML_UnknownKey(t *testing.T) {
	path := writeFile(t, "bad.toml", "[model]\nmodle = \"x\"\n")
	err := LoadTOML(Default(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.modle")
}

func TestLoadTOML_BadDuration(t *testing.T) {
	path := writeFile(t, "bad.toml", "[model]\ntimeout = \"soon\"\n")
	require.Error(t, LoadTOML(Default(), path))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(lookupMap(map[string]string{
		"DEEPSEEK_API_KEY":         " sk-deep ",
		"ANTHROPIC_API_KEY":        "sk-ant",
		"HEYSOL_API_KEY":           "hs-key",
		"MAMMOCHAT_MEMORY_SPACES":  "a, b,,c",
		"MAMMOCHAT_MEMORY_POLICY":  "FAIL",
		"MAMMOCHAT_MODEL_TIMEOUT":  "5s",
		"MAMMOCHAT_LOG_LEVEL":      "",
		"LOG_LEVEL":                "debug",
		"MAMMOCHAT_MEMORY_BACKEND": "Postgres",
		"DATABASE_URL":             "postgres://localhost/mammo",
	}))

	assert.Equal(t, "sk-deep", cfg.Model.APIKey)
	assert.Equal(t, "hs-key", cfg.Memory.APIKey)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Memory.SpaceIDs)
	assert.Equal(t, PolicyFail, cfg.Memory.FailurePolicy)
	assert.Equal(t, 5*time.Second, cfg.Model.Timeout.Duration)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendPostgres, cfg.Memory.Backend)
	assert.Equal(t, "postgres://localhost/mammo", cfg.Memory.DatabaseURL)
}

func TestApplyEnv_ProviderSelectsKey(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(lookupMap(map[string]string{
		"MAMMOCHAT_MODEL_PROVIDER": "anthropic",
		"MAMMOCHAT_MODEL":          "claude-sonnet-4-5",
		"DEEPSEEK_API_KEY":         "sk-deep",
		"ANTHROPIC_API_KEY":        "sk-ant",
	}))
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model.Name)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "gemini"
	cfg.Memory.Backend = BackendPostgres
	cfg.Memory.FailurePolicy = "ignore"
	cfg.Agent.MaxToolRounds = 0
	cfg.Agent.MemorySearchLimit = 500

	err := cfg.Validate()
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"model.provider",
		"model.api_key",
		"memory.database_url",
		"memory.failure_policy",
		"agent.max_tool_rounds",
		"agent.memory_search_limit",
	}, fields)
	assert.Contains(t, err.Error(), "invalid configuration: ")
}

func TestValidate_MissingHeySolKeyAllowed(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "sk-test"
	cfg.Memory.APIKey = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mammochat.toml")
	require.NoError(t, os.WriteFile(path, []byte("[agent]\nhistory_window = 6\n"), 0o600))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEEPSEEK_API_KEY=sk-from-dotenv\n"), 0o600))

	t.Setenv("DEEPSEEK_API_KEY", "")
	require.NoError(t, os.Unsetenv("DEEPSEEK_API_KEY"))
	t.Setenv("MAMMOCHAT_STORE_PATH", filepath.Join(dir, "chat.db"))

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Agent.HistoryWindow)
	assert.Equal(t, "sk-from-dotenv", cfg.Model.APIKey)
	assert.Equal(t, filepath.Join(dir, "chat.db"), cfg.Store.Path)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("MAMMOCHAT_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "sk-1234567890abcdef"
	cfg.Memory.APIKey = "short"
	cfg.Memory.DatabaseURL = "postgres://user:pw@host/db"

	redacted := cfg.Redacted()
	assert.Equal(t, "sk-1...cdef", redacted.Model.APIKey)
	assert.Equal(t, "***", redacted.Memory.APIKey)
	assert.Equal(t, "***", redacted.Memory.DatabaseURL)
	assert.Equal(t, "sk-1234567890abcdef", cfg.Model.APIKey)
}
