package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "")
	t.Setenv("REALTIME_MODEL", "")
	t.Setenv("CHAT_MODEL", "")
	t.Setenv("VOICE", "")
	t.Setenv("PUBLIC_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "sk-test", cfg.OpenAIKey)
	assert.Equal(t, "gpt-4o-realtime-preview-2025-06-03", cfg.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, "coral", cfg.Voice)
	assert.Empty(t, cfg.PublicURL)
}

func TestLoadShortKeyWinsOverLong(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-short")
	t.Setenv("OPENAI_API_KEY", "sk-long")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-short", cfg.OpenAIKey)
}

func TestLoadBadPortFallsBack(t *testing.T) {
	t.Setenv("OPENAI_KEY", "sk-test")
	t.Setenv("PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Port)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# local development
OPENAI_API_KEY=sk-from-file
export PUBLIC_URL="https://example.ngrok.io"
VOICE='ash'

BROKEN LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("PUBLIC_URL", "")
	os.Unsetenv("PUBLIC_URL")
	t.Setenv("VOICE", "")
	os.Unsetenv("VOICE")

	require.NoError(t, LoadEnvFile(path))

	assert.Equal(t, "sk-from-file", os.Getenv("OPENAI_API_KEY"))
	assert.Equal(t, "https://example.ngrok.io", os.Getenv("PUBLIC_URL"))
	assert.Equal(t, "ash", os.Getenv("VOICE"))
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOICE=from-file\n"), 0o600))

	t.Setenv("VOICE", "from-env")
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("VOICE"))
}

func TestLoadEnvFileMissingIsNotAnError(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "does-not-exist.env")))
}
