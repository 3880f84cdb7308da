package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognised by ApplyEnv.
const (
	EnvConfigPath   = "PROMPTBOT_CONFIG"
	EnvTemplatesDir = "PROMPTBOT_TEMPLATES_DIR"
	EnvInputMethod  = "PROMPTBOT_INPUT_METHOD"
	EnvMetricsAddr  = "PROMPTBOT_METRICS_ADDR"
	EnvDebug        = "PROMPTBOT_DEBUG"
	EnvSpamEnabled  = "PROMPTBOT_SPAM_ENABLED"
	EnvHoldEnabled  = "PROMPTBOT_HOLD_ENABLED"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already present in the environment. Missing
// files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	present := files[:0:0]
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ConfigPathFromEnv returns PROMPTBOT_CONFIG or def when unset.
func ConfigPathFromEnv(def string) string {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return def
}

// ApplyEnv overrides fields from PROMPTBOT_* environment variables and
// re-validates the result.
func (c *Config) ApplyEnv() {
	if v, ok := lookup(EnvTemplatesDir); ok {
		c.TemplatesDir = v
	}
	if v, ok := lookup(EnvInputMethod); ok {
		c.InputMethod = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookupBool(EnvDebug); ok {
		c.Debug = v
	}
	if v, ok := lookupBool(EnvSpamEnabled); ok {
		c.Spam.Enabled = v
	}
	if v, ok := lookupBool(EnvHoldEnabled); ok {
		c.Hold.Enabled = v
	}
	_ = c.Validate()
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func lookupBool(key string) (bool, bool) {
	v, ok := lookup(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
