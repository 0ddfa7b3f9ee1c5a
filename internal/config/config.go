package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/cdr-recordings/pkg/history"
	"github.com/Sternrassler/cdr-recordings/pkg/logging"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Log formats.
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Config defines configuration for the cdr-download CLI.
type Config struct {
	URL                 string        `yaml:"url"`
	Token               string        `yaml:"token"`
	StartDate           string        `yaml:"start_date"`
	EndDate             string        `yaml:"end_date"`
	Output              string        `yaml:"output"`
	Bucket              string        `yaml:"bucket"`
	FetchConcurrency    int           `yaml:"fetch_concurrency"`
	DownloadConcurrency int           `yaml:"download_concurrency"`
	Timeout             time.Duration `yaml:"timeout"`
	MetricsFile         string        `yaml:"metrics_file"`
	Strict              bool          `yaml:"strict"`
	Log                 LogConfig     `yaml:"log"`
	Cache               CacheConfig   `yaml:"cache"`
}

// LogConfig defines log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig defines the optional Redis page cache. An empty RedisURL
// disables it.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns a Config with the default output, concurrency and timeouts.
func Default() Config {
	return Config{
		Output:              "./downloads",
		FetchConcurrency:    4,
		DownloadConcurrency: 4,
		Timeout:             50 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: FormatJSON,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	URL                 string          `yaml:"url"`
	Token               string          `yaml:"token"`
	StartDate           string          `yaml:"start_date"`
	EndDate             string          `yaml:"end_date"`
	Output              string          `yaml:"output"`
	Bucket              string          `yaml:"bucket"`
	FetchConcurrency    int             `yaml:"fetch_concurrency"`
	DownloadConcurrency int             `yaml:"download_concurrency"`
	Timeout             string          `yaml:"timeout"`
	MetricsFile         string          `yaml:"metrics_file"`
	Strict              bool            `yaml:"strict"`
	Log                 LogConfig       `yaml:"log"`
	Cache               yamlCacheConfig `yaml:"cache"`
}

type yamlCacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		URL:                 yc.URL,
		Token:               yc.Token,
		StartDate:           yc.StartDate,
		EndDate:             yc.EndDate,
		Output:              yc.Output,
		Bucket:              yc.Bucket,
		FetchConcurrency:    yc.FetchConcurrency,
		DownloadConcurrency: yc.DownloadConcurrency,
		MetricsFile:         yc.MetricsFile,
		Strict:              yc.Strict,
		Log:                 yc.Log,
		Cache:               CacheConfig{RedisURL: yc.Cache.RedisURL},
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		override.Timeout = d
	}
	if yc.Cache.TTL != "" {
		d, err := time.ParseDuration(yc.Cache.TTL)
		if err != nil {
			return Config{}, fmt.Errorf("parse cache.ttl: %w", err)
		}
		override.Cache.TTL = d
	}

	return Default().Merge(override), nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CDR_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"CDR_URL":          &c.URL,
		"CDR_TOKEN":        &c.Token,
		"CDR_START_DATE":   &c.StartDate,
		"CDR_END_DATE":     &c.EndDate,
		"CDR_OUTPUT":       &c.Output,
		"CDR_BUCKET":       &c.Bucket,
		"CDR_METRICS_FILE": &c.MetricsFile,
		"CDR_LOG_LEVEL":    &c.Log.Level,
		"CDR_LOG_FORMAT":   &c.Log.Format,
		"CDR_REDIS_URL":    &c.Cache.RedisURL,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CDR_FETCH_CONCURRENCY":    &c.FetchConcurrency,
		"CDR_DOWNLOAD_CONCURRENCY": &c.DownloadConcurrency,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"CDR_TIMEOUT":   &c.Timeout,
		"CDR_CACHE_TTL": &c.Cache.TTL,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("CDR_STRICT"); v != "" {
		c.Strict = v == "true" || v == "1"
	}

	return nil
}

// Validate checks required fields, the date range and numeric limits.
func (c *Config) Validate() error {
	if c.URL == "" {
		return invalid("url is required")
	}
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("url must be an absolute URL, got %q", c.URL)
	}
	if c.Token == "" {
		return invalid("token is required")
	}
	if c.StartDate == "" {
		return invalid("start date is required")
	}
	if c.EndDate == "" {
		return invalid("end date is required")
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	if c.Output == "" {
		return invalid("output is required")
	}
	if c.FetchConcurrency <= 0 {
		return invalid("fetch concurrency must be positive")
	}
	if c.DownloadConcurrency <= 0 {
		return invalid("download concurrency must be positive")
	}
	if c.Timeout <= 0 {
		return invalid("timeout must be positive")
	}
	if !logging.ValidLevel(logging.LogLevel(c.Log.Level)) {
		return invalid("unknown log level %q", c.Log.Level)
	}
	if c.Log.Format != FormatJSON && c.Log.Format != FormatPretty {
		return invalid("log format must be %q or %q, got %q", FormatJSON, FormatPretty, c.Log.Format)
	}
	if c.Cache.RedisURL != "" && c.Cache.TTL <= 0 {
		return invalid("cache ttl must be positive")
	}
	return nil
}

// DateRange parses StartDate and EndDate and checks start <= end.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = ParseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("start date: %v", err)
	}
	end, err = ParseDate(c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("end date: %v", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, invalid("start date %s is after end date %s", c.StartDate, c.EndDate)
	}
	return start, end, nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(history.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Token != "" {
		c.Token = override.Token
	}
	if override.StartDate != "" {
		c.StartDate = override.StartDate
	}
	if override.EndDate != "" {
		c.EndDate = override.EndDate
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.FetchConcurrency != 0 {
		c.FetchConcurrency = override.FetchConcurrency
	}
	if override.DownloadConcurrency != 0 {
		c.DownloadConcurrency = override.DownloadConcurrency
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.MetricsFile != "" {
		c.MetricsFile = override.MetricsFile
	}
	if override.Strict {
		c.Strict = true
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Cache.RedisURL != "" {
		c.Cache.RedisURL = override.Cache.RedisURL
	}
	if override.Cache.TTL != 0 {
		c.Cache.TTL = override.Cache.TTL
	}
	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
