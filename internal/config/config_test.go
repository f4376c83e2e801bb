package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ollamagate/internal/ollama"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.Equal(t, ollama.DefaultBaseURL, cfg.Ollama.BaseURL)
	require.Equal(t, ollama.SystemMessageModeSystem, cfg.Conversion.SystemMessageMode)
	require.False(t, cfg.Conversion.UseLegacyFunctionCalling)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
cache:
  backend: redis
  ttl: 10m
ollama:
  base_url: http://ollama:11434
conversion:
  system_message_mode: developer
  use_legacy_function_calling: true
`), 0o600))

	t.Setenv("PORT", "9191")
	t.Setenv("OLLAMA_TIMEOUT", "2m")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000, https://app.example.com,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9191", cfg.Server.Port)
	require.Equal(t, "redis", cfg.Cache.Backend)
	require.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	require.Equal(t, "http://ollama:11434", cfg.Ollama.BaseURL)
	require.Equal(t, 2*time.Minute, cfg.Ollama.Timeout)
	require.Equal(t, ollama.SystemMessageModeDeveloper, cfg.Conversion.SystemMessageMode)
	require.True(t, cfg.Conversion.UseLegacyFunctionCalling)
	require.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.Server.CORSOrigins)

	// untouched keys keep their defaults
	require.Equal(t, "ollamagate", cfg.Cache.Prefix)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"backend": {"CACHE_BACKEND": "memcached"},
		"mode":    {"SYSTEM_MESSAGE_MODE": "loud"},
		"legacy":  {"LEGACY_FUNCTION_CALLING": "sometimes"},
		"ttl":     {"CACHE_TTL": "forever"},
		"port":    {"PORT": "http"},
		"timeout": {"OLLAMA_TIMEOUT": "soon"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateNormalizesMode(t *testing.T) {
	cfg := Default()
	cfg.Conversion.SystemMessageMode = "Developer"
	require.NoError(t, cfg.Validate())
	require.Equal(t, ollama.SystemMessageModeDeveloper, cfg.Conversion.SystemMessageMode)
}
