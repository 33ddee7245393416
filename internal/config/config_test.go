package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "ai:\n  gemini:\n    api_key: abc\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "abc", cfg.AI.Gemini.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  apiKey: sekret
ai:
  provider: openai
  targetLanguage: German
  openai:
    api_key: sk-test
    model: gpt-4o-2024-08-06
session:
  ttlMinutes: 5
database:
  driver: postgres
  host: db.local
  port: 5432
  user: app
  password: pw
  name: papers
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sekret", cfg.Server.APIKey)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "German", cfg.AI.TargetLanguage)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Contains(t, cfg.PostgresDSN(), "host=db.local")
	assert.Contains(t, cfg.PostgresDSN(), "dbname=papers")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PAPERLENS_GEMINI_API_KEY", "from-env")
	path := writeConfig(t, "ai:\n  gemini:\n    api_key: from-file\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AI.Gemini.APIKey)
}

func TestLoadUnknownProvider(t *testing.T) {
	path := writeConfig(t, "ai:\n  provider: cohere\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  host: 127.0.0.1
  port: 3306
  user: u
  password: p
  name: papers
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(127.0.0.1:3306)/papers?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}
