// Package config loads the client settings from an optional YAML file,
// environment variables and command line flags, in that order of precedence
// (flags win).
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/backend"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/events"
	"github.com/felipeimp22/POC-SUMMARIZER-FE/pkg/persistence/kvstore"
)

const (
	AppName        = "summarizer"
	DefaultTimeout = 30 * time.Second
	DefaultBridge  = "127.0.0.1:8090"
	DefaultSession = "web-session"
	configFileName = "config.yaml"
	storeFileName  = "recent.db"
	envPrefix      = "SUMMARIZER_"
)

type BridgeSettings struct {
	Addr string `yaml:"addr"`
}

type Settings struct {
	BaseURL        string           `yaml:"base_url"`
	SessionKey     string           `yaml:"session_key"`
	RequestTimeout time.Duration    `yaml:"request_timeout"`
	Examples       []string         `yaml:"examples,omitempty"`
	Store          kvstore.Settings `yaml:"store"`
	Events         events.Settings  `yaml:"events"`
	Bridge         BridgeSettings   `yaml:"bridge"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		BaseURL:        backend.DefaultBaseURL,
		SessionKey:     DefaultSession,
		RequestTimeout: DefaultTimeout,
		Store: kvstore.Settings{
			Kind: kvstore.KindSQLite,
			Path: defaultStorePath(),
		},
		Events: events.Settings{
			Transport: events.TransportGoChannel,
			Topic:     events.DefaultTopic,
		},
		Bridge: BridgeSettings{Addr: DefaultBridge},
	}
}

func appDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "." + AppName
	}
	return filepath.Join(dir, AppName)
}

// DefaultPath is where Load looks when no file is given.
func DefaultPath() string {
	return filepath.Join(appDir(), configFileName)
}

func defaultStorePath() string {
	return filepath.Join(appDir(), storeFileName)
}

// Load builds the settings from defaults, the YAML file at path and the
// process environment. An empty path means DefaultPath, which may be absent;
// an explicit path must exist.
func Load(path string) (Settings, error) {
	s := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, &s); err != nil {
			return Settings{}, errors.Wrapf(err, "config %s", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return Settings{}, errors.Wrapf(err, "read config %s", path)
	}

	if err := ApplyEnv(&s, os.LookupEnv); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Parse overlays the YAML document onto s. Keys absent from the document keep
// their current values.
func Parse(data []byte, s *Settings) error {
	if s == nil {
		return errors.New("settings is nil")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return errors.Wrap(err, "parse yaml")
	}
	return nil
}

// ApplyEnv overrides s from SUMMARIZER_* variables.
func ApplyEnv(s *Settings, lookup func(string) (string, bool)) error {
	if s == nil {
		return errors.New("settings is nil")
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BASE_URL", &s.BaseURL)
	str("SESSION_KEY", &s.SessionKey)
	str("STORE", &s.Store.Kind)
	str("STORE_PATH", &s.Store.Path)
	str("REDIS_ADDR", &s.Store.RedisAddr)
	str("REDIS_PREFIX", &s.Store.RedisPrefix)
	str("EVENTS", &s.Events.Transport)
	str("EVENTS_REDIS_ADDR", &s.Events.RedisAddr)
	str("BRIDGE_ADDR", &s.Bridge.Addr)

	if v, ok := lookup(envPrefix + "TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "%sTIMEOUT", envPrefix)
		}
		s.RequestTimeout = d
	}
	return nil
}

func (s Settings) Validate() error {
	u, err := url.Parse(strings.TrimSpace(s.BaseURL))
	if err != nil {
		return errors.Wrapf(err, "base_url %q", s.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("base_url %q: scheme must be http or https", s.BaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("base_url %q: missing host", s.BaseURL)
	}
	if s.RequestTimeout <= 0 {
		return errors.Errorf("request_timeout must be positive, got %s", s.RequestTimeout)
	}
	switch strings.ToLower(s.Store.Kind) {
	case "", kvstore.KindSQLite:
		if strings.TrimSpace(s.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite store")
		}
	case kvstore.KindMemory, kvstore.KindRedis:
	default:
		return errors.Errorf("unknown store kind %q", s.Store.Kind)
	}
	switch strings.ToLower(s.Events.Transport) {
	case "", events.TransportGoChannel, events.TransportRedis:
	default:
		return errors.Errorf("unknown events transport %q", s.Events.Transport)
	}
	return nil
}

// Marshal renders s as YAML.
func (s Settings) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal settings")
	}
	return b, nil
}

// Write saves s to path, creating parent directories.
func (s Settings) Write(path string) error {
	b, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", path)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
