package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	cfg := Get()

	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, "retain", cfg.OverpaymentPolicy)
	require.Equal(t, "8080", cfg.HttpPort)
	require.Empty(t, cfg.ApiKeys)
}

func TestGetFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("REGISTRY_TIMEOUT", "12")
	t.Setenv("DEBUG", "true")
	t.Setenv("API_KEYS", "tokenA:0xaaa, tokenB:0xbbb,broken")
	t.Setenv("ELASTIC_SEARCH_HOSTS", "http://es1:9200,http://es2:9200")

	cfg := Get()

	require.Equal(t, "sqlite", cfg.Store.Driver)
	require.Equal(t, 12, cfg.Registry.Timeout)
	require.True(t, cfg.Debug)
	require.Equal(t, map[string]string{"tokenA": "0xaaa", "tokenB": "0xbbb"}, cfg.ApiKeys)
	require.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ElasticSearch.Hosts)
}

func TestGetFromConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	file := filepath.Join(t.TempDir(), "marketplace.yaml")
	require.NoError(t, os.WriteFile(file, []byte("HTTP_PORT: \"9090\"\nOVERPAYMENT_POLICY: refund\n"), 0o644))

	viper.SetConfigFile(file)
	require.NoError(t, viper.ReadInConfig())

	t.Setenv("HTTP_PORT", "7070")

	cfg := Get()
	require.Equal(t, "refund", cfg.OverpaymentPolicy)
	require.Equal(t, "7070", cfg.HttpPort, "environment wins over the config file")
}
