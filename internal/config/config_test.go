// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "mai-ui", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 25, cfg.Session.MaxSteps)
	assert.Equal(t, 3, cfg.Session.HistoryWindow)
	assert.Equal(t, 3, cfg.Session.MaxConsecutiveFailures)
	assert.True(t, cfg.Session.BlockDuplicates)
	assert.Equal(t, "127.0.0.1:3359", cfg.Server.Addr())
	assert.Equal(t, 250*time.Millisecond, cfg.Input.Pause)
	assert.NotEmpty(t, cfg.Launcher.Aliases)
}

func TestNewFromViper_OverridesApply(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("llm.model", "custom-model")
	v.Set("session.max_steps", 5)
	v.Set("server.port", 8080)

	cfg, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "custom-model", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Session.MaxSteps)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestNewFromViper_APIKeyFromEnv(t *testing.T) {
	t.Setenv("DESKPILOT_LLM_API_KEY", "secret-key")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestValidate_Failures(t *testing.T) {
	mutations := map[string]func(*Config){
		"empty base url":        func(c *Config) { c.LLM.BaseURL = "" },
		"empty model":           func(c *Config) { c.LLM.Model = "" },
		"zero max tokens":       func(c *Config) { c.LLM.MaxTokens = 0 },
		"zero timeout":          func(c *Config) { c.LLM.Timeout = 0 },
		"negative screen":       func(c *Config) { c.Screen.Width = -1 },
		"zero max steps":        func(c *Config) { c.Session.MaxSteps = 0 },
		"negative window":       func(c *Config) { c.Session.HistoryWindow = -1 },
		"zero failure budget":   func(c *Config) { c.Session.MaxConsecutiveFailures = 0 },
		"port out of range":     func(c *Config) { c.Server.Port = 70000 },
		"empty launcher target": func(c *Config) { c.Launcher.Aliases = map[string]string{"editor": ""} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
