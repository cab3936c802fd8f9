package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/persistence/kvstore"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	require.Equal(t, "http://localhost:3001", s.BaseURL)
	require.Equal(t, 30*time.Second, s.RequestTimeout)
	require.Equal(t, kvstore.KindSQLite, s.Store.Kind)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	s := Default()
	err := Parse([]byte(`
base_url: https://summarizer.internal:8443
request_timeout: 5s
store:
  kind: redis
  redis_addr: cache:6379
examples: ["1", "2"]
`), &s)
	require.NoError(t, err)
	require.Equal(t, "https://summarizer.internal:8443", s.BaseURL)
	require.Equal(t, 5*time.Second, s.RequestTimeout)
	require.Equal(t, kvstore.KindRedis, s.Store.Kind)
	require.Equal(t, "cache:6379", s.Store.RedisAddr)
	require.Equal(t, []string{"1", "2"}, s.Examples)
	require.Equal(t, DefaultSession, s.SessionKey)
	require.NoError(t, s.Validate())
}

func TestParse_Errors(t *testing.T) {
	s := Default()
	require.Error(t, Parse([]byte("base_url: [unclosed"), &s))
	require.Error(t, Parse(nil, nil))
	require.NoError(t, Parse([]byte("  \n"), &s))
}

func TestApplyEnv(t *testing.T) {
	s := Default()
	err := ApplyEnv(&s, envMap(map[string]string{
		"SUMMARIZER_BASE_URL":    "http://10.0.0.5:3001",
		"SUMMARIZER_SESSION_KEY": "kiosk-1",
		"SUMMARIZER_STORE":       "memory",
		"SUMMARIZER_TIMEOUT":     "2s",
		"SUMMARIZER_BRIDGE_ADDR": " ",
	}))
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:3001", s.BaseURL)
	require.Equal(t, "kiosk-1", s.SessionKey)
	require.Equal(t, kvstore.KindMemory, s.Store.Kind)
	require.Equal(t, 2*time.Second, s.RequestTimeout)
	require.Equal(t, DefaultBridge, s.Bridge.Addr)

	err = ApplyEnv(&s, envMap(map[string]string{"SUMMARIZER_TIMEOUT": "soon"}))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad scheme", func(s *Settings) { s.BaseURL = "ftp://host" }},
		{"no host", func(s *Settings) { s.BaseURL = "http://" }},
		{"zero timeout", func(s *Settings) { s.RequestTimeout = 0 }},
		{"unknown store", func(s *Settings) { s.Store.Kind = "etcd" }},
		{"sqlite without path", func(s *Settings) { s.Store.Path = "" }},
		{"unknown transport", func(s *Settings) { s.Events.Transport = "kafka" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			require.Error(t, s.Validate())
		})
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	_, err := Load(path)
	require.Error(t, err)

	s := Default()
	s.BaseURL = "http://backend:9000"
	s.RequestTimeout = 7 * time.Second
	require.NoError(t, s.Write(path))

	t.Setenv("SUMMARIZER_SESSION_KEY", "from-env")
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://backend:9000", loaded.BaseURL)
	require.Equal(t, 7*time.Second, loaded.RequestTimeout)
	require.Equal(t, "from-env", loaded.SessionKey)
}

func TestLoad_MissingDefaultIsFine(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	s, err := Load("")
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	_, statErr := os.Stat(DefaultPath())
	require.True(t, os.IsNotExist(statErr))
}
