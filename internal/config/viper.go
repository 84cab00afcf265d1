package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// viperKeys defines the mapping between config keys and their Viper
// counterparts.
const (
	keyCheckpointInterval   = "settings.checkpoint_interval"
	keyStaleAfter           = "settings.stale_after"
	keyKeeperTimeout        = "settings.keeper_timeout"
	keyStopCmd              = "settings.cmd"
	keyNotificationsEnabled = "notifications.enabled"
	keyTwentyFourHour       = "display.24hr_clock"
	keyDarkTheme            = "display.dark_theme"
)

// WithViperConfig returns an Option that loads configuration from Viper,
// writing a config file with defaults if none exists yet.
func WithViperConfig(configPath string) Option {
	return func(c *Config) error {
		v := viper.New()

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		setupViper(v)

		err := v.ReadInConfig()
		if err == nil {
			return loadViperConfig(v, c)
		}

		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config file failed: %w", err)
		}

		if err := v.WriteConfig(); err != nil {
			return fmt.Errorf("writing default config failed: %w", err)
		}

		return loadViperConfig(v, c)
	}
}

// setupViper configures Viper with default values.
func setupViper(v *viper.Viper) {
	v.SetDefault(keyCheckpointInterval, "30s")
	v.SetDefault(keyStaleAfter, "24h")
	v.SetDefault(keyKeeperTimeout, "1s")
	v.SetDefault(keyStopCmd, "")
	v.SetDefault(keyNotificationsEnabled, true)
	v.SetDefault(keyTwentyFourHour, false)
	v.SetDefault(keyDarkTheme, false)
}

// loadViperConfig copies Viper values into the Config.
func loadViperConfig(v *viper.Viper, c *Config) error {
	checkpoint := v.GetDuration(keyCheckpointInterval)
	if checkpoint <= 0 {
		return errInvalidInterval.Wrap(
			fmt.Errorf("%s: %q", keyCheckpointInterval, v.GetString(keyCheckpointInterval)),
		)
	}

	staleAfter := v.GetDuration(keyStaleAfter)
	if staleAfter <= 0 {
		return errInvalidInterval.Wrap(
			fmt.Errorf("%s: %q", keyStaleAfter, v.GetString(keyStaleAfter)),
		)
	}

	keeperTimeout := v.GetDuration(keyKeeperTimeout)
	if keeperTimeout <= 0 {
		return errInvalidInterval.Wrap(
			fmt.Errorf("%s: %q", keyKeeperTimeout, v.GetString(keyKeeperTimeout)),
		)
	}

	c.Timer.CheckpointInterval = checkpoint
	c.Timer.StaleAfter = staleAfter
	c.Timer.KeeperTimeout = keeperTimeout
	c.System.StopCmd = v.GetString(keyStopCmd)
	c.Notification.Enabled = v.GetBool(keyNotificationsEnabled)
	c.Display.TwentyFourHour = v.GetBool(keyTwentyFourHour)
	c.Display.DarkTheme = v.GetBool(keyDarkTheme)
	c.System.ConfigPath = configFilePath
	c.System.DBPath = dbFilePath

	return nil
}
