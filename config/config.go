package config

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Region is a screen rectangle in global pixel coordinates.
type Region struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Rect converts the region to an image.Rectangle. A zero-area region yields
// an empty rectangle.
func (r Region) Rect() image.Rectangle {
	if r.Width <= 0 || r.Height <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// MatchConfig tunes the NCC search.
type MatchConfig struct {
	Stride int  `json:"stride" yaml:"stride"`
	Refine bool `json:"refine" yaml:"refine"`
}

// SpamConfig configures the multi-key repeat-press engine.
type SpamConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Keys           []string `json:"keys" yaml:"keys"`
	Region         Region   `json:"region" yaml:"region"`
	FullScreen     bool     `json:"full_screen" yaml:"full_screen"`
	Threshold      float64  `json:"threshold" yaml:"threshold"`
	ScanIntervalMS float64  `json:"scan_interval_ms" yaml:"scan_interval_ms"`
	SpamIntervalMS float64  `json:"spam_interval_ms" yaml:"spam_interval_ms"`
	CacheTTLMS     float64  `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
}

// HoldConfig configures the single-key hold engine.
type HoldConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Key            string   `json:"key" yaml:"key"`
	Templates      []string `json:"templates" yaml:"templates"`
	UseRegion      bool     `json:"use_region" yaml:"use_region"`
	Region         Region   `json:"region" yaml:"region"`
	Threshold      float64  `json:"threshold" yaml:"threshold"`
	ScanIntervalMS float64  `json:"scan_interval_ms" yaml:"scan_interval_ms"`
	ReleaseDelay   int      `json:"release_delay" yaml:"release_delay"`
	FastMode       bool     `json:"fast_mode" yaml:"fast_mode"`
	Scale          float64  `json:"scale" yaml:"scale"`
	CacheTTLMS     float64  `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
}

// Config holds runtime configuration for both engines and the process.
// Fields may be loaded from a JSON or YAML file and overridden by environment
// variables and command-line flags.
type Config struct {
	Debug        bool    `json:"debug" yaml:"debug"`
	TemplatesDir string  `json:"templates_dir" yaml:"templates_dir"`
	InputMethod  string  `json:"input_method" yaml:"input_method"`
	PressMS      float64 `json:"key_press_duration_ms" yaml:"key_press_duration_ms"`
	CaptureMode  string  `json:"capture_backend" yaml:"capture_backend"`
	MetricsAddr  string  `json:"metrics_addr" yaml:"metrics_addr"`
	MaxErrors    int     `json:"max_errors" yaml:"max_errors"`
	AlertOnHalt  bool    `json:"alert_on_halt" yaml:"alert_on_halt"`
	FocusWindow  string  `json:"focus_window" yaml:"focus_window"`

	Match MatchConfig `json:"match" yaml:"match"`
	Spam  SpamConfig  `json:"spam" yaml:"spam"`
	Hold  HoldConfig  `json:"hold" yaml:"hold"`
}

// Input method names.
const (
	InputRobotgo     = "robotgo"
	InputDirectInput = "directinput"
	InputWin32       = "win32"
	InputSendInput   = "sendinput"
)

// Capture backend names.
const (
	CaptureScreenshot = "screenshot"
	CaptureGDI        = "gdi"
	CaptureRobotgo    = "robotgo"
)

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:        false,
		TemplatesDir: "images",
		InputMethod:  InputWin32,
		PressMS:      50,
		CaptureMode:  CaptureScreenshot,
		MetricsAddr:  "",
		MaxErrors:    10,
		AlertOnHalt:  true,
		Match: MatchConfig{
			Stride: 1,
			Refine: true,
		},
		Spam: SpamConfig{
			Enabled:        true,
			Keys:           defaultSpamKeys(),
			Region:         Region{Left: 760, Top: 440, Width: 400, Height: 200},
			Threshold:      0.80,
			ScanIntervalMS: 10,
			SpamIntervalMS: 20,
			CacheTTLMS:     5,
		},
		Hold: HoldConfig{
			Enabled:        false,
			Key:            "e",
			Templates:      []string{"chatcay.png", "chatgo.png", "daoda.png"},
			UseRegion:      true,
			Region:         Region{Left: 760, Top: 440, Width: 400, Height: 200},
			Threshold:      0.70,
			ScanIntervalMS: 10,
			ReleaseDelay:   1,
			FastMode:       true,
			Scale:          0.5,
			CacheTTLMS:     5,
		},
	}
}

func defaultSpamKeys() []string {
	keys := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		keys = append(keys, string(c))
	}
	return keys
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	def := DefaultConfig()
	c.InputMethod = strings.ToLower(strings.TrimSpace(c.InputMethod))
	if c.InputMethod == "" {
		c.InputMethod = def.InputMethod
	}
	if c.PressMS < 0 {
		c.PressMS = def.PressMS
	}
	c.CaptureMode = strings.ToLower(strings.TrimSpace(c.CaptureMode))
	switch c.CaptureMode {
	case CaptureGDI, CaptureRobotgo:
	default:
		c.CaptureMode = CaptureScreenshot
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = def.MaxErrors
	}
	if c.Match.Stride <= 0 {
		c.Match.Stride = 1
	}

	if len(c.Spam.Keys) == 0 {
		c.Spam.Keys = def.Spam.Keys
	}
	for i, k := range c.Spam.Keys {
		c.Spam.Keys[i] = strings.ToLower(strings.TrimSpace(k))
	}
	if c.Spam.Threshold <= 0 || c.Spam.Threshold > 1 {
		c.Spam.Threshold = def.Spam.Threshold
	}
	if c.Spam.ScanIntervalMS < 0 {
		c.Spam.ScanIntervalMS = def.Spam.ScanIntervalMS
	}
	if c.Spam.SpamIntervalMS <= 0 {
		c.Spam.SpamIntervalMS = def.Spam.SpamIntervalMS
	}
	if c.Spam.CacheTTLMS < 0 {
		c.Spam.CacheTTLMS = def.Spam.CacheTTLMS
	}
	if !c.Spam.FullScreen && c.Spam.Region.Rect().Empty() {
		c.Spam.FullScreen = true
	}

	c.Hold.Key = strings.ToLower(strings.TrimSpace(c.Hold.Key))
	if c.Hold.Key == "" {
		c.Hold.Key = def.Hold.Key
	}
	if len(c.Hold.Templates) == 0 {
		c.Hold.Templates = def.Hold.Templates
	}
	if c.Hold.Threshold <= 0 || c.Hold.Threshold > 1 {
		c.Hold.Threshold = def.Hold.Threshold
	}
	if c.Hold.ScanIntervalMS < 1 {
		c.Hold.ScanIntervalMS = 1
	}
	if c.Hold.ReleaseDelay < 0 {
		c.Hold.ReleaseDelay = 0
	}
	if c.Hold.Scale <= 0 || c.Hold.Scale > 1 {
		c.Hold.Scale = 1
	}
	if c.Hold.CacheTTLMS < 0 {
		c.Hold.CacheTTLMS = def.Hold.CacheTTLMS
	}
	if c.Hold.UseRegion && c.Hold.Region.Rect().Empty() {
		c.Hold.UseRegion = false
	}
	return nil
}

// Millis converts a millisecond float into a time.Duration.
func Millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// PressDuration is the delay between key down and key up for a press.
func (c *Config) PressDuration() time.Duration { return Millis(c.PressMS) }

// ScanInterval returns the spam coordinator cycle interval.
func (s SpamConfig) ScanInterval() time.Duration { return Millis(s.ScanIntervalMS) }

// SpamInterval returns the per-key repeat interval.
func (s SpamConfig) SpamInterval() time.Duration { return Millis(s.SpamIntervalMS) }

// CacheTTL returns the frame cache validity window.
func (s SpamConfig) CacheTTL() time.Duration { return Millis(s.CacheTTLMS) }

// ScanInterval returns the hold loop interval, floored at 1ms.
func (h HoldConfig) ScanInterval() time.Duration {
	d := Millis(h.ScanIntervalMS)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// CacheTTL returns the frame cache validity window.
func (h HoldConfig) CacheTTL() time.Duration { return Millis(h.CacheTTLMS) }

// EffectiveScale is the downscale factor applied to hold frames and
// templates; 1 when fast mode is off.
func (h HoldConfig) EffectiveScale() float64 {
	if !h.FastMode || h.Scale <= 0 || h.Scale >= 1 {
		return 1
	}
	return h.Scale
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load attempts to read configuration from the given JSON or YAML file path.
// If the file does not exist it returns DefaultConfig(). On decode error it
// returns defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	return Parse(data, isYAML(path))
}

// Parse decodes configuration bytes on top of the defaults.
func Parse(data []byte, asYAML bool) (*Config, error) {
	cfg := DefaultConfig()
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return DefaultConfig(), err
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path, as YAML when the
// extension says so and JSON otherwise.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(c)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
