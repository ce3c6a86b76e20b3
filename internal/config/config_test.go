package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DatabasePostgres, cfg.Database.Type)
	require.Equal(t, 1536, cfg.API.Embedding.Dimension)

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults should be written on first load")
}

func TestSaveReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := Default()
	original.DataDir = "/tmp/test-data"
	original.Logging.Level = "debug"
	original.Database.Type = DatabaseSQLite
	original.Database.Path = ":memory:"
	original.API.Embedding.Provider = EmbeddingOllama
	original.API.Embedding.Model = "nomic-embed-text"
	original.API.Embedding.Dimension = 768
	original.API.Telegram.ReceiveMessage = true

	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, original.DataDir, loaded.DataDir)
	require.Equal(t, original.Database, loaded.Database)
	require.Equal(t, original.API.Embedding.Model, loaded.API.Embedding.Model)
	require.Equal(t, 768, loaded.API.Embedding.Dimension)
	require.True(t, loaded.API.Telegram.ReceiveMessage)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := tempConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: sqlite\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DatabaseSQLite, cfg.Database.Type)
	require.Equal(t, "https://r.jina.ai/", cfg.Scraper.BaseURL)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("TGSEARCH_DATABASE_URL", "postgres://env@db/x")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://env@db/x", cfg.DatabaseDSN())
	require.Equal(t, "123:abc", cfg.API.Telegram.BotToken)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TGSEARCH_TEST_DOTENV=from-file\n"), 0600))
	t.Setenv("TGSEARCH_TEST_DOTENV", "")
	os.Unsetenv("TGSEARCH_TEST_DOTENV")

	require.NoError(t, LoadDotenv(filepath.Join(dir, "missing.env"), envPath))
	require.Equal(t, "from-file", os.Getenv("TGSEARCH_TEST_DOTENV"))
}

func TestDatabaseDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.User = "u"
	cfg.Database.Password = "p"
	cfg.Database.Host = "h"
	cfg.Database.Port = 1
	cfg.Database.Database = "d"
	require.Equal(t, "postgres://u:p@h:1/d", cfg.DatabaseDSN())

	cfg.Database.URL = "postgres://explicit"
	require.Equal(t, "postgres://explicit", cfg.DatabaseDSN())

	cfg.Database.Type = DatabaseSQLite
	cfg.DataDir = "/data"
	require.Equal(t, "/data/tgsearch.db", cfg.DatabaseDSN())
}

func TestMergeKeepsUnsetFields(t *testing.T) {
	base := Default()
	base.API.Embedding.APIKey = "keep-me"

	merged, err := Merge(base, []byte(`{"api":{"embedding":{"model":"text-embedding-3-large"}}}`))
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-large", merged.API.Embedding.Model)
	require.Equal(t, "keep-me", merged.API.Embedding.APIKey)
	require.Equal(t, "text-embedding-3-small", base.API.Embedding.Model, "base must not change")
}

func TestMergeRejectsInvalid(t *testing.T) {
	base := Default()
	_, err := Merge(base, []byte(`{"api":{"embedding":{"dimension":42}}}`))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Merge(base, []byte(`{not json`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestProviderRejectedUpdateKeepsPrevious(t *testing.T) {
	path := tempConfigPath(t)
	p := NewFileProvider(path, Default())

	_, err := p.Update([]byte(`{"database":{"type":"oracle"}}`))
	require.Error(t, err)
	require.Equal(t, DatabasePostgres, p.Get().Database.Type)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "rejected update must not be persisted")

	cfg, err := p.Update([]byte(`{"logging":{"level":"debug"}}`))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.NotEmpty(t, cfg.Database.URL, "postgres url is derived on update")

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", reloaded.Logging.Level)
}

func TestMemoryProviderUpdate(t *testing.T) {
	p := NewMemoryProvider(Default())
	got, err := p.Update([]byte(`{"api":{"telegram":{"receive_message":true}}}`))
	require.NoError(t, err)
	require.True(t, got.API.Telegram.ReceiveMessage)
	require.True(t, p.Get().API.Telegram.ReceiveMessage)
}

func TestApplyFlags(t *testing.T) {
	base := Default()
	out := ApplyFlags(base, Flags{
		DBProvider:         DatabaseSQLite,
		EmbeddingDimension: 1024,
		ProxyIP:            "10.0.0.1",
		ProxyPort:          1080,
		ProxySocksType:     5,
	})
	require.Equal(t, DatabaseSQLite, out.Database.Type)
	require.Equal(t, 1024, out.API.Embedding.Dimension)
	require.Equal(t, "socks5://10.0.0.1:1080", out.ProxyURL().String())
	require.Equal(t, DatabasePostgres, base.Database.Type)

	pg := ApplyFlags(base, Flags{})
	require.Equal(t, base.DatabaseDSN(), pg.Database.URL)

	noProxy := ApplyFlags(base, Flags{ProxyUsername: "only-user"})
	require.Nil(t, noProxy.ProxyURL())
}
