package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version int           `toml:"version"`
	Browser BrowserConfig `toml:"browser"`
	Extract ExtractConfig `toml:"extract"`
	Send    SendConfig    `toml:"send"`
	Logging LoggingConfig `toml:"logging"`
}

// BrowserConfig controls how the debugged browser is found or launched.
type BrowserConfig struct {
	// ChromePath overrides executable auto-detection when set.
	ChromePath string `toml:"chrome_path"`
	DebugPort  int    `toml:"debug_port"`
	// ProfileDir is the user-data-dir for launched browsers. Empty means
	// a dedicated dir under the user config directory.
	ProfileDir string `toml:"profile_dir"`
	// SeedProfileDir, when set, is copied into a fresh ProfileDir so a
	// previously logged-in profile carries over.
	SeedProfileDir string `toml:"seed_profile_dir"`
	Headless       bool   `toml:"headless"`
}

type ExtractConfig struct {
	FollowerURL string `toml:"follower_url"`
	// MaxScrollRounds bounds the scroll loop. 0 means unbounded; the
	// loop still terminates on stable page height.
	MaxScrollRounds int `toml:"max_scroll_rounds"`
	// SettleSeconds is the pause after each scroll for lazy content.
	SettleSeconds int `toml:"settle_seconds"`
}

type SendConfig struct {
	IntervalMin    int      `toml:"interval_min"`
	IntervalMax    int      `toml:"interval_max"`
	DailyLimit     int      `toml:"daily_limit"`
	Messages       []string `toml:"messages"`
	FollowBeforeDM bool     `toml:"follow_before_dm"`
	SkipExisting   bool     `toml:"skip_existing"`
	// ScheduleTime runs one batch daily at "HH:MM" when set.
	ScheduleTime string `toml:"schedule_time"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Browser: BrowserConfig{
			DebugPort: 9222,
			Headless:  false,
		},
		Extract: ExtractConfig{
			MaxScrollRounds: 0,
			SettleSeconds:   2,
		},
		Send: SendConfig{
			IntervalMin:    300,
			IntervalMax:    600,
			DailyLimit:     50,
			Messages:       []string{"${nick_name}さん、はじめまして！"},
			FollowBeforeDM: true,
			SkipExisting:   true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

var followerURLRe = regexp.MustCompile(`^https?://(x|twitter)\.com/[A-Za-z0-9_]+/followers/?$`)

// Validate checks operator-configured send policy bounds.
func (c *Config) Validate() error {
	s := c.Send
	if s.IntervalMin < 5 || s.IntervalMin > 7200 {
		return fmt.Errorf("interval_min %d out of range [5, 7200]", s.IntervalMin)
	}
	if s.IntervalMax < 5 || s.IntervalMax > 7200 {
		return fmt.Errorf("interval_max %d out of range [5, 7200]", s.IntervalMax)
	}
	if s.IntervalMin > s.IntervalMax {
		return fmt.Errorf("interval_min %d exceeds interval_max %d", s.IntervalMin, s.IntervalMax)
	}
	if s.DailyLimit < 1 || s.DailyLimit > 500 {
		return fmt.Errorf("daily_limit %d out of range [1, 500]", s.DailyLimit)
	}
	if len(s.Messages) == 0 {
		return fmt.Errorf("at least one message template is required")
	}
	if len(s.Messages) > 5 {
		return fmt.Errorf("at most 5 message templates are allowed, got %d", len(s.Messages))
	}
	for i, m := range s.Messages {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("message template %d is empty", i+1)
		}
	}
	if c.Extract.FollowerURL != "" && !followerURLRe.MatchString(c.Extract.FollowerURL) {
		return fmt.Errorf("follower_url %q is not a followers page URL", c.Extract.FollowerURL)
	}
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("debug_port %d out of range", c.Browser.DebugPort)
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "xautodm"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory holding the roster database and exports.
func DataDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
