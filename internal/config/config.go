package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppConfig     *AppConfig
	BrowserConfig *BrowserConfig
	TourConfig    *TourConfig
}

type AppConfig struct {
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	Debug        bool   `envconfig:"DEBUG" default:"false"`
	TraceEnabled bool   `envconfig:"TRACE_ENABLED" default:"false"`
}

type BrowserConfig struct {
	Headless    bool   `envconfig:"BROWSER_HEADLESS" default:"false"`
	SlowMo      int    `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout     int    `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	UserDataDir string `envconfig:"BROWSER_USER_DATA_DIR" default:""`
	EditorURL   string `envconfig:"EDITOR_URL" default:""`
}

type TourConfig struct {
	CanvasFrameName     string        `envconfig:"TOUR_CANVAS_FRAME" default:"editor-canvas"`
	ClickGracePeriod    time.Duration `envconfig:"TOUR_CLICK_GRACE" default:"300ms"`
	PollInterval        time.Duration `envconfig:"TOUR_POLL_INTERVAL" default:"100ms"`
	RecoverySettleDelay time.Duration `envconfig:"TOUR_RECOVERY_SETTLE" default:"100ms"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	return &conf, nil
}

// DefaultTourConfig returns the tour settings used when none are configured.
func DefaultTourConfig() *TourConfig {
	return &TourConfig{
		CanvasFrameName:     "editor-canvas",
		ClickGracePeriod:    300 * time.Millisecond,
		PollInterval:        100 * time.Millisecond,
		RecoverySettleDelay: 100 * time.Millisecond,
	}
}

// Tour returns the tour settings, falling back to DefaultTourConfig.
func (c *Config) Tour() *TourConfig {
	if c == nil || c.TourConfig == nil {
		return DefaultTourConfig()
	}

	return c.TourConfig
}
