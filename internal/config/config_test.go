package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/intranet-sector-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOC_STORE_DRIVER", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0, cfg.MaxRetries, "external calls are attempt-once by default")
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentResyncs)
	assert.Equal(t, config.DocStoreSupabase, cfg.DocStoreDriver)
	assert.Equal(t, "gemini", cfg.LLM.DefaultProvider)
	assert.Contains(t, cfg.UnitTokens, "poa")
	assert.Contains(t, cfg.UnitTokens, "sp")
}

func TestLoad_UnitTokensFromEnv(t *testing.T) {
	t.Setenv("HOLDPRINT_TOKEN_POA", "tok-poa")
	t.Setenv("HOLDPRINT_TOKEN_SP", "tok-sp")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "tok-poa", cfg.UnitTokens["poa"])
	assert.Equal(t, "tok-sp", cfg.UnitTokens["sp"])
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DOC_STORE_DRIVER", "mongo")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DOC_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KANBAN_URL=http://from-file\nSECTOR_AGENT_DOTENV_ONLY=yes\n"), 0o600))

	t.Setenv("KANBAN_URL", "http://from-env")
	t.Cleanup(func() { os.Unsetenv("SECTOR_AGENT_DOTENV_ONLY") })

	require.NoError(t, config.LoadDotEnv(path))

	assert.Equal(t, "http://from-env", os.Getenv("KANBAN_URL"))
	assert.Equal(t, "yes", os.Getenv("SECTOR_AGENT_DOTENV_ONLY"))
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}
