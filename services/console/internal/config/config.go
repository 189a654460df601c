package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is used when Load is called with an empty path and CONSOLE_CONFIG is unset.
var ConfigPath = "config.yaml"

const (
	DefaultRefreshInterval    = 10 * time.Minute
	DefaultRefreshLookahead   = 5 * time.Minute
	DefaultPartSearchDebounce = 300 * time.Millisecond
	DefaultAPITimeout         = 15 * time.Second
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	APIBaseURL              string   `yaml:"apiBaseURL"`
	APITimeout              string   `yaml:"apiTimeout"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	SessionKeyPrefix        string   `yaml:"sessionKeyPrefix"`
	RefreshInterval         string   `yaml:"refreshInterval"`
	RefreshLookahead        string   `yaml:"refreshLookahead"`
	PartSearchDebounce      string   `yaml:"partSearchDebounce"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	MinioEndpoint           string   `yaml:"minioEndpoint"`
	MinioAccessKey          string   `yaml:"minioAccessKey"`
	MinioSecretKey          string   `yaml:"minioSecretKey"`
	MinioBucket             string   `yaml:"minioBucket"`
	MinioUseSSL             bool     `yaml:"minioUseSSL"`
	AMQPURL                 string   `yaml:"amqpURL"`
	EventsExchange          string   `yaml:"eventsExchange"`
	TrustedProxies          []string `yaml:"trustedProxies"`
	AllowedOrigins          []string `yaml:"allowedOrigins"`
}

// Load reads config from path (defaults to CONSOLE_CONFIG, then config.yaml)
// and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONSOLE_CONFIG"))
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("CONSOLE_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_API_TIMEOUT"); v != "" {
		cfg.APITimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CONSOLE_SESSION_KEY_PREFIX"); v != "" {
		cfg.SessionKeyPrefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_REFRESH_INTERVAL"); v != "" {
		cfg.RefreshInterval = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_REFRESH_LOOKAHEAD"); v != "" {
		cfg.RefreshLookahead = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_PART_SEARCH_DEBOUNCE"); v != "" {
		cfg.PartSearchDebounce = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONSOLE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("CONSOLE_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("CONSOLE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("CONSOLE_MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("CONSOLE_AMQP_URL"); v != "" {
		cfg.AMQPURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_EVENTS_EXCHANGE"); v != "" {
		cfg.EventsExchange = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONSOLE_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("CONSOLE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or CONSOLE_PORT)")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or CONSOLE_API_BASE_URL)")
	}
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL %q is not an absolute URL", cfg.APIBaseURL)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for the session store and login rate limiting")
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.MinioEndpoint != "" && strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	for name, value := range map[string]string{
		"apiTimeout":         cfg.APITimeout,
		"refreshInterval":    cfg.RefreshInterval,
		"refreshLookahead":   cfg.RefreshLookahead,
		"partSearchDebounce": cfg.PartSearchDebounce,
	} {
		if _, err := ParseDuration(name, value, 0); err != nil {
			return err
		}
	}
	return nil
}

// ParseDuration parses an optional duration string. Empty input yields fallback.
func ParseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", name)
	}
	return dur, nil
}

// Durations holds the parsed timing settings.
type Durations struct {
	APITimeout         time.Duration
	RefreshInterval    time.Duration
	RefreshLookahead   time.Duration
	PartSearchDebounce time.Duration
}

// Durations parses every duration field, substituting defaults for empty or zero values.
func (c FileConfig) Durations() (Durations, error) {
	var d Durations
	var err error
	if d.APITimeout, err = ParseDuration("apiTimeout", c.APITimeout, DefaultAPITimeout); err != nil {
		return d, err
	}
	if d.RefreshInterval, err = ParseDuration("refreshInterval", c.RefreshInterval, DefaultRefreshInterval); err != nil {
		return d, err
	}
	if d.RefreshLookahead, err = ParseDuration("refreshLookahead", c.RefreshLookahead, DefaultRefreshLookahead); err != nil {
		return d, err
	}
	if d.PartSearchDebounce, err = ParseDuration("partSearchDebounce", c.PartSearchDebounce, DefaultPartSearchDebounce); err != nil {
		return d, err
	}
	if d.APITimeout == 0 {
		d.APITimeout = DefaultAPITimeout
	}
	if d.RefreshInterval == 0 {
		d.RefreshInterval = DefaultRefreshInterval
	}
	if d.PartSearchDebounce == 0 {
		d.PartSearchDebounce = DefaultPartSearchDebounce
	}
	return d, nil
}
