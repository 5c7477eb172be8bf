package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_ReadsEveryKeyFromViper(t *testing.T) {
	resetViper(t)
	viper.Set("host", "0.0.0.0")
	viper.Set("port", 9000)
	viper.Set("log-level", "debug")
	viper.Set("config", "mcp_config.json")
	viper.Set("profiles", "profiles.json")
	viper.Set("prompts-dir", "/prompts")
	viper.Set("data-dir", "/data")
	viper.Set("security-sandbox", true)

	cfg := Load()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mcp_config.json", cfg.ConfigFile)
	assert.Equal(t, "profiles.json", cfg.ProfileFile)
	assert.Equal(t, "/prompts", cfg.PromptsDir)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.True(t, cfg.SecuritySandbox)
}

func TestBindEnv_OverridesFromEnvironmentVariables(t *testing.T) {
	resetViper(t)
	require.NoError(t, BindEnv())

	t.Setenv("MCP_PROXY_PORT", "7777")
	t.Setenv("MCP_PROXY_HOST", "10.0.0.1")
	t.Setenv("MCP_PROXY_LOG_LEVEL", "warn")

	cfg := Load()
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	t.Parallel()

	cfg := &Config{Host: "localhost", Port: 70000}
	assert.Error(t, cfg.Validate())

	cfg.Port = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyHost(t *testing.T) {
	t.Parallel()

	cfg := &Config{Host: "", Port: 8844}
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{Host: "127.0.0.1", Port: 8844}
	assert.NoError(t, cfg.Validate())
}
