// Package config loads runtime configuration from the environment, with an
// optional .env file for development. Validation collects every problem
// instead of stopping at the first, so a bad deploy reports all of its
// mistakes in one pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/logsieve/logsieve/internal/attack"
	"github.com/logsieve/logsieve/internal/policy"
)

// Config is the full runtime configuration.
type Config struct {
	Addr     string
	LogLevel string

	ModelDir    string
	PatternFile string
	DatabaseURL string

	Thresholds policy.Thresholds
	Flags      policy.Flags
	Factors    policy.Factors

	CacheSize int
	Workers   int
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:        envOr("LOGSIEVE_ADDR", ":8080"),
		LogLevel:    envOr("LOGSIEVE_LOG_LEVEL", "info"),
		ModelDir:    envOr("LOGSIEVE_MODEL_DIR", "models"),
		PatternFile: os.Getenv("LOGSIEVE_PATTERN_FILE"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Thresholds: policy.Thresholds{
			Binary: policy.DefaultBinaryThreshold,
			ByType: policy.DefaultTypeThresholds(),
		},
		Flags:     policy.DefaultFlags(),
		Factors:   policy.DefaultFactors(),
		CacheSize: 4096,
		Workers:   8,
	}

	var errs []string
	parseFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}
	parseBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	parseInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}

	parseFloat("LOGSIEVE_BINARY_THRESHOLD", &cfg.Thresholds.Binary)
	if v := os.Getenv("LOGSIEVE_TYPE_THRESHOLDS"); v != "" {
		overrides, err := parseTypeThresholds(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("LOGSIEVE_TYPE_THRESHOLDS: %v", err))
		}
		for label, th := range overrides {
			cfg.Thresholds.ByType[label] = th
		}
	}

	parseBool("LOGSIEVE_WEBSHELL_BOOST", &cfg.Flags.WebshellBoost)
	parseBool("LOGSIEVE_DEVOPS_DAMPENING", &cfg.Flags.DevOpsDampening)
	parseBool("LOGSIEVE_STATIC_FILTER", &cfg.Flags.StaticFilter)
	parseBool("LOGSIEVE_AUTO_THRESHOLD", &cfg.Flags.AutoThreshold)
	parseBool("LOGSIEVE_POST_UPLOAD_FILTER", &cfg.Flags.PostUploadFilter)
	cfg.Thresholds.AutoThreshold = cfg.Flags.AutoThreshold

	parseFloat("LOGSIEVE_WEBSHELL_BOOST_FACTOR", &cfg.Factors.WebshellBoost)
	parseFloat("LOGSIEVE_DEVOPS_REDUCTION", &cfg.Factors.DevOpsReduction)
	parseFloat("LOGSIEVE_SEARCH_REDUCTION", &cfg.Factors.SearchReduction)

	parseInt("LOGSIEVE_CACHE_SIZE", &cfg.CacheSize)
	parseInt("LOGSIEVE_WORKERS", &cfg.Workers)

	errs = append(errs, cfg.problems()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// problems reports every validation failure in the loaded values.
func (c *Config) problems() []string {
	var errs []string
	if c.Addr == "" {
		errs = append(errs, "listen address must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.LogLevel))
	}
	if c.ModelDir == "" {
		errs = append(errs, "model directory must not be empty")
	}
	if c.CacheSize <= 0 {
		errs = append(errs, "cache size must be positive")
	}
	if c.Workers <= 0 {
		errs = append(errs, "worker count must be positive")
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Factors.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// parseTypeThresholds parses "sql_injection=0.35,xss=0.45" style overrides.
func parseTypeThresholds(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		label, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		label = strings.TrimSpace(label)
		if !attack.Known(label) {
			return nil, fmt.Errorf("unknown attack type %q", label)
		}
		th, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		out[label] = th
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
