package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Dima2024Alekseev/bot-pm2/internal/model"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(newViper())
	if err != nil {
		t.Fatal(err)
	}

	if len(c.CriticalKeywords) != 3 || c.CriticalKeywords[2] != "exception" {
		t.Errorf("unexpected critical keywords %q", c.CriticalKeywords)
	}
	if len(c.WarningKeywords) != 2 {
		t.Errorf("unexpected warning keywords %q", c.WarningKeywords)
	}
	if c.CheckInterval != time.Hour {
		t.Errorf("expected 1h check interval, got %s", c.CheckInterval)
	}
	if c.CPUThresholdPercent != 80 || c.MemoryThresholdMB != 500 || c.DiskSpaceThresholdPercent != 10 {
		t.Errorf("unexpected thresholds %+v", c)
	}
	if c.NotifyLevel != model.SeverityNone || c.PM2Bin != "pm2" || c.LogFormat != "plain" {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHAT_ID", "-100500")
	t.Setenv("PM2_APP_NAME", "api")
	t.Setenv("CRITICAL_KEYWORDS", " panic , oom,")
	t.Setenv("CHECK_INTERVAL_MS", "60000")

	c, err := Load(newViper())
	if err != nil {
		t.Fatal(err)
	}
	if c.BotToken != "123:abc" || c.ChatID != -100500 || c.AppName != "api" {
		t.Errorf("unexpected identity %+v", c)
	}
	if len(c.CriticalKeywords) != 2 || c.CriticalKeywords[0] != "panic" || c.CriticalKeywords[1] != "oom" {
		t.Errorf("unexpected keywords %q", c.CriticalKeywords)
	}
	if c.CheckInterval != time.Minute {
		t.Errorf("expected legacy millisecond interval, got %s", c.CheckInterval)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestCheckIntervalWinsOverMilliseconds(t *testing.T) {
	v := newViper()
	v.Set("check_interval", "10m")
	v.Set("check_interval_ms", 1000)

	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.CheckInterval != 10*time.Minute {
		t.Errorf("expected 10m, got %s", c.CheckInterval)
	}
}

func TestKeywordsFromList(t *testing.T) {
	v := newViper()
	v.Set("warning_keywords", []interface{}{"slow", " retry "})

	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.WarningKeywords) != 2 || c.WarningKeywords[1] != "retry" {
		t.Errorf("unexpected keywords %q", c.WarningKeywords)
	}
}

func TestBadChatID(t *testing.T) {
	v := newViper()
	v.Set("chat_id", "12ab")
	if _, err := Load(v); err == nil {
		t.Error("expected error for non-numeric chat_id")
	}
}

func TestValidate(t *testing.T) {
	err := Config{}.Validate()
	for _, want := range []error{ErrMissingToken, ErrMissingChatID, ErrMissingApp} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in %v", want, err)
		}
	}
}

func TestMergeDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "BOT_TOKEN=from-file\nPM2_APP_NAME=worker\nLOG_FILE_OUT=/var/log/worker-out.log\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PM2_APP_NAME", "from-env")

	v := newViper()
	if err := MergeDotEnv(v, path); err != nil {
		t.Fatal(err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}

	if c.BotToken != "from-file" || c.LogFileOut != "/var/log/worker-out.log" {
		t.Errorf("expected values from .env, got %+v", c)
	}
	if c.AppName != "from-env" {
		t.Errorf("expected environment to win, got %q", c.AppName)
	}
}

func TestMergeDotEnvMissingFile(t *testing.T) {
	if err := MergeDotEnv(newViper(), filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
}
