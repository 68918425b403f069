// Package config loads bot-pm2 settings from viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
	"github.com/Dima2024Alekseev/bot-pm2/internal/parser"
)

var (
	ErrMissingToken  = errors.New("bot_token is not set")
	ErrMissingChatID = errors.New("chat_id is not set")
	ErrMissingApp    = errors.New("pm2_app_name is not set")
)

const DefaultCheckInterval = time.Hour

// Config holds every runtime setting.
type Config struct {
	BotToken string
	ChatID   int64
	AppName  string

	LogFileOut string
	LogFileErr string

	CriticalKeywords []string
	WarningKeywords  []string

	CheckInterval             time.Duration
	CPUThresholdPercent       float64
	MemoryThresholdMB         float64
	DiskSpaceThresholdPercent float64

	PM2Bin          string
	PM2PollInterval time.Duration

	LogFormat   string
	NotifyLevel model.Severity
	HTTPAddr    string
	StateFile   string
	LogLevel    string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("critical_keywords", "error,fatal,exception")
	v.SetDefault("warning_keywords", "warn,deprecated")
	v.SetDefault("cpu_threshold_percent", 80)
	v.SetDefault("memory_threshold_mb", 500)
	v.SetDefault("disk_space_threshold_percent", 10)
	v.SetDefault("pm2_bin", "pm2")
	v.SetDefault("pm2_poll_interval", 5*time.Second)
	v.SetDefault("log_format", "plain")
	v.SetDefault("notify_level", "none")
	v.SetDefault("log_level", "info")
}

// MergeDotEnv merges KEY=value pairs from a dotenv file into v. A missing
// file is not an error. Environment variables still take precedence.
func MergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return v.MergeConfigMap(env.AllSettings())
}

// Load reads a Config from v. It does not validate required keys.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		BotToken:                  strings.TrimSpace(v.GetString("bot_token")),
		AppName:                   strings.TrimSpace(v.GetString("pm2_app_name")),
		LogFileOut:                v.GetString("log_file_out"),
		LogFileErr:                v.GetString("log_file_err"),
		CriticalKeywords:          keywords(v, "critical_keywords"),
		WarningKeywords:           keywords(v, "warning_keywords"),
		CPUThresholdPercent:       v.GetFloat64("cpu_threshold_percent"),
		MemoryThresholdMB:         v.GetFloat64("memory_threshold_mb"),
		DiskSpaceThresholdPercent: v.GetFloat64("disk_space_threshold_percent"),
		PM2Bin:                    v.GetString("pm2_bin"),
		PM2PollInterval:           v.GetDuration("pm2_poll_interval"),
		LogFormat:                 strings.ToLower(v.GetString("log_format")),
		NotifyLevel:               model.ParseSeverity(v.GetString("notify_level")),
		HTTPAddr:                  v.GetString("http_addr"),
		StateFile:                 v.GetString("state_file"),
		LogLevel:                  v.GetString("log_level"),
	}

	if raw := strings.TrimSpace(v.GetString("chat_id")); raw != "" {
		id, err := parseChatID(raw)
		if err != nil {
			return Config{}, err
		}
		c.ChatID = id
	}

	// check_interval wins over the millisecond form kept for old .env files.
	switch {
	case v.IsSet("check_interval"):
		c.CheckInterval = v.GetDuration("check_interval")
	case v.GetInt64("check_interval_ms") > 0:
		c.CheckInterval = time.Duration(v.GetInt64("check_interval_ms")) * time.Millisecond
	default:
		c.CheckInterval = DefaultCheckInterval
	}

	if c.PM2PollInterval <= 0 {
		return Config{}, fmt.Errorf("pm2_poll_interval must be positive, got %s", c.PM2PollInterval)
	}
	if c.CheckInterval < 0 {
		return Config{}, fmt.Errorf("check_interval must not be negative, got %s", c.CheckInterval)
	}
	return c, nil
}

// Validate checks the keys the bot cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, ErrMissingToken)
	}
	if c.ChatID == 0 {
		errs = append(errs, ErrMissingChatID)
	}
	if c.AppName == "" {
		errs = append(errs, ErrMissingApp)
	}
	return errors.Join(errs...)
}

func parseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat_id %q is not a number: %w", raw, err)
	}
	return id, nil
}

// keywords accepts a comma separated string (env, .env) or a YAML list.
func keywords(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	if s, ok := v.Get(key).(string); ok {
		raw = parser.SplitKeywords(s)
	}
	var out []string
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
