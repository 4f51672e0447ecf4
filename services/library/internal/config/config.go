package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
)

// ConfigPath is the default config file location, overridable via LIBRARY_CONFIG.
const ConfigPath = "config.yaml"

const (
	defaultPort    = "3000"
	defaultLockTTL = 10 * time.Second
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	StoreDriver               string   `yaml:"storeDriver"`
	DatabaseURL               string   `yaml:"databaseURL"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	DefaultCustodianID        string   `yaml:"defaultCustodianID"`
	LockTTL                   string   `yaml:"lockTTL"`
	LendingRateLimitPerMinute int      `yaml:"lendingRateLimitPerMinute"`
	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path. A missing file is not an error; defaults and
// environment overrides still apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("LIBRARY_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LIBRARY_DEFAULT_CUSTODIAN_ID"); v != "" {
		cfg.DefaultCustodianID = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_LOCK_TTL"); v != "" {
		cfg.LockTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_LENDING_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LendingRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LIBRARY_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "postgres"
	}
	if cfg.DefaultCustodianID == "" {
		cfg.DefaultCustodianID = domain.AdminCustodianID
	}
}

func validateConfig(cfg FileConfig) error {
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: port must be numeric, got %q", cfg.Port)
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storeDriver %q (want postgres or memory)", cfg.StoreDriver)
	}
	if !util.IsValidID(cfg.DefaultCustodianID) {
		return fmt.Errorf("config: defaultCustodianID must be a 24-character hex id, got %q", cfg.DefaultCustodianID)
	}
	if _, err := ParseLockTTL(cfg.LockTTL); err != nil {
		return err
	}
	if cfg.LendingRateLimitPerMinute < 0 {
		return errors.New("config: lendingRateLimitPerMinute must be >= 0")
	}
	if cfg.LendingRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: lendingRateLimitPerMinute requires redisAddr")
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("config: trustedProxyCidrs: %w", err)
	}
	return nil
}

// ParseLockTTL parses the optional lock TTL duration string.
func ParseLockTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLockTTL, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid lockTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("config: lockTTL must be positive")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
