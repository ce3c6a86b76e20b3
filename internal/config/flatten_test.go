package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenNested(t *testing.T) {
	m := map[string]any{
		"database": map[string]any{
			"type": "sqlite",
			"port": 5432,
		},
		"data_dir": "/tmp/x",
	}
	got := Flatten(m)
	require.Len(t, got, 3)
	require.Equal(t, "sqlite", got["database.type"])
	require.Equal(t, 5432, got["database.port"])
	require.Equal(t, "/tmp/x", got["data_dir"])
}

func TestFlattenEmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"a": map[string]any{}})
	require.Empty(t, got)
}

func TestUnflattenRoundTrip(t *testing.T) {
	flat := map[string]any{
		"api.embedding.model":     "m",
		"api.embedding.dimension": 768,
		"logging.level":           "debug",
	}
	nested := Unflatten(flat)
	require.Equal(t, flat, Flatten(nested))

	api := nested["api"].(map[string]any)
	emb := api["embedding"].(map[string]any)
	require.Equal(t, "m", emb["model"])
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"api.embedding.api_key":  "sk-abcdef1234",
		"api.telegram.bot_token": "abc",
		"database.password":      "",
		"database.host":          "localhost",
	}
	got := MaskSecrets(flat)
	require.Equal(t, "***1234", got["api.embedding.api_key"])
	require.Equal(t, "***abc", got["api.telegram.bot_token"])
	require.Equal(t, "", got["database.password"])
	require.Equal(t, "localhost", got["database.host"])
}

func TestSetValueTypedScalar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, SetValue(path, "database.port", "6543"))
	require.NoError(t, SetValue(path, "api.telegram.receive_message", "true"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 6543, cfg.Database.Port)
	require.True(t, cfg.API.Telegram.ReceiveMessage)
}

func TestSetValueRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := SetValue(path, "database.type", "mysql")
	require.ErrorIs(t, err, ErrInvalid)

	err = SetValue(path, "no.such.key", "1")
	require.Error(t, err)

	v, err := GetValue(path, "database.type")
	require.NoError(t, err)
	require.Equal(t, DatabasePostgres, v)
}

func TestListValuesMasked(t *testing.T) {
	cfg := Default()
	cfg.API.Embedding.APIKey = "sk-secret-9999"
	values, err := ListValues(cfg, true)
	require.NoError(t, err)
	require.Equal(t, "***9999", values["api.embedding.api_key"])
	require.Equal(t, "info", values["logging.level"])
}
