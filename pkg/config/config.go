// Package config loads process-wide configuration for mcp-aggregator
// from flags and environment variables via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the fully resolved process configuration.
type Config struct {
	Host            string
	Port            int
	LogLevel        string
	ConfigFile      string
	ProfileFile     string
	PromptsDir      string
	DataDir         string
	SecuritySandbox bool
}

// Load reads configuration from viper, which is expected to already have
// its flags and environment variables bound by the caller (see BindEnv).
func Load() *Config {
	return &Config{
		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		LogLevel:        viper.GetString("log-level"),
		ConfigFile:      viper.GetString("config"),
		ProfileFile:     viper.GetString("profiles"),
		PromptsDir:      viper.GetString("prompts-dir"),
		DataDir:         viper.GetString("data-dir"),
		SecuritySandbox: viper.GetBool("security-sandbox"),
	}
}

// BindEnv wires the MCP_PROXY_* environment variables onto their
// matching viper keys: MCP_PROXY_PORT, MCP_PROXY_HOST, and
// MCP_PROXY_LOG_LEVEL.
func BindEnv() error {
	bindings := map[string]string{
		"port":      "MCP_PROXY_PORT",
		"host":      "MCP_PROXY_HOST",
		"log-level": "MCP_PROXY_LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks invariants that flag parsing alone cannot enforce.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	return nil
}
