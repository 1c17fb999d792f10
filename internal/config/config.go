package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	RemoteDriverRedis    = "redis"
	RemoteDriverPostgres = "postgres"
)

type Config struct {
	Addr          string
	ProfilePath   string
	CORSOrigin    string
	AdminHashCost int
	MigrationsDir string
	LogLevel      string
	LogFile       string
	// Remote is nil when no remote store is configured; the board then runs in local mode.
	Remote *RemoteSettings
}

// RemoteSettings carries the connection parameters of the shared document store.
type RemoteSettings struct {
	Driver    string `yaml:"driver"`
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

func Load() Config {
	cfg := Config{
		Addr:          getenv("API_ADDR", "127.0.0.1:8790"),
		ProfilePath:   getenv("FORMBOARD_PROFILE_PATH", "./data/profile.db"),
		CORSOrigin:    getenv("FORMBOARD_CORS_ORIGIN", "*"),
		AdminHashCost: getenvInt("FORMBOARD_ADMIN_HASH_COST", 10),
		MigrationsDir: getenv("FORMBOARD_MIGRATIONS_DIR", "./db/migrations"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFile:       getenv("LOG_FILE", ""),
	}
	remote, err := loadRemoteSettings()
	if err != nil {
		// An unreadable settings object is treated like an absent one.
		fmt.Fprintf(os.Stderr, "formboard: ignoring remote settings: %v\n", err)
	}
	cfg.Remote = remote
	return cfg
}

func loadRemoteSettings() (*RemoteSettings, error) {
	if path := strings.TrimSpace(os.Getenv("FORMBOARD_REMOTE_CONFIG")); path != "" {
		return LoadRemoteSettingsFile(path)
	}
	url := strings.TrimSpace(os.Getenv("FORMBOARD_REMOTE_URL"))
	if url == "" {
		return nil, nil
	}
	settings := &RemoteSettings{
		Driver:    getenv("FORMBOARD_REMOTE_DRIVER", ""),
		URL:       url,
		KeyPrefix: getenv("FORMBOARD_REMOTE_KEY_PREFIX", ""),
	}
	return settings.normalize()
}

// LoadRemoteSettingsFile reads the remote settings object from a YAML file.
// A file whose remote section is null or empty yields nil settings.
func LoadRemoteSettingsFile(path string) (*RemoteSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read remote settings: %w", err)
	}
	var doc struct {
		Remote *RemoteSettings `yaml:"remote"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse remote settings: %w", err)
	}
	if doc.Remote == nil || strings.TrimSpace(doc.Remote.URL) == "" {
		return nil, nil
	}
	return doc.Remote.normalize()
}

func (s *RemoteSettings) normalize() (*RemoteSettings, error) {
	out := *s
	out.URL = strings.TrimSpace(out.URL)
	out.Driver = strings.ToLower(strings.TrimSpace(out.Driver))
	if out.Driver == "" {
		out.Driver = driverFromURL(out.URL)
	}
	switch out.Driver {
	case RemoteDriverRedis, RemoteDriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", out.Driver)
	}
	if out.KeyPrefix == "" {
		out.KeyPrefix = "formboard"
	}
	return &out, nil
}

func driverFromURL(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return RemoteDriverRedis
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return RemoteDriverPostgres
	default:
		return ""
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
