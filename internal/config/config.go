// Package config loads and provides access to kanbo's configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pterm/pterm"
)

type (
	// Config holds all configuration settings.
	Config struct {
		Timer        TimerConfig
		Notification NotificationConfig
		Display      DisplayConfig
		System       SystemConfig
	}

	// TimerConfig holds timer core settings.
	TimerConfig struct {
		// CheckpointInterval is how often a running timer rewrites its
		// durable record.
		CheckpointInterval time.Duration
		// StaleAfter is the age past which a recovered timer record is
		// discarded instead of resumed.
		StaleAfter time.Duration
		// KeeperTimeout bounds the wait for a timekeeper state response
		// before falling back to the store.
		KeeperTimeout time.Duration
	}

	// NotificationConfig holds desktop notification settings.
	NotificationConfig struct {
		Enabled bool
	}

	// DisplayConfig holds display-related settings.
	DisplayConfig struct {
		DarkTheme      bool
		TwentyFourHour bool
	}

	// SystemConfig holds system-related settings.
	SystemConfig struct {
		ConfigPath string
		DBPath     string
		// StopCmd is an optional user command executed after a timer is
		// stopped successfully.
		StopCmd string
	}

	// Option is a function that modifies Config.
	Option func(*Config) error
)

const Version = "v0.3.1"

var (
	configDir      = "kanbo"
	configFileName = "config.yml"
	dbFileName     = "kanbo.db"
	statusFileName = "status.json"
	logFileName    = "kanbo.log"
	dbFilePath     string
	configFilePath string
	statusFilePath string
	logFilePath    string
)

var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func Dir() string {
	return configDir
}

func DBFilePath() string {
	return dbFilePath
}

func StatusFilePath() string {
	return statusFilePath
}

func LogFilePath() string {
	return logFilePath
}

func ConfigFilePath() string {
	return configFilePath
}

// InitializePaths resolves the XDG paths for the config, database,
// status, and log files. KANBO_ENV suffixes the file names so that test
// runs never touch real data.
func InitializePaths() {
	kanboEnv := strings.TrimSpace(os.Getenv("KANBO_ENV"))
	if kanboEnv != "" {
		configFileName = fmt.Sprintf("config_%s.yml", kanboEnv)
		dbFileName = fmt.Sprintf("kanbo_%s.db", kanboEnv)
		statusFileName = fmt.Sprintf("status_%s.json", kanboEnv)
		logFileName = fmt.Sprintf("kanbo_%s.log", kanboEnv)
	}

	var err error

	relPath := filepath.Join(configDir, configFileName)

	configFilePath, err = xdg.ConfigFile(relPath)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	dataDir, err := xdg.DataFile(configDir)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	dbFilePath = filepath.Join(dataDir, dbFileName)

	stateDir, err := xdg.StateFile(configDir)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}

	statusFilePath = filepath.Join(stateDir, statusFileName)
	logFilePath = filepath.Join(stateDir, logFileName)
}

// New creates a Config, applying defaults first and the given options
// afterwards.
func New(opts ...Option) (*Config, error) {
	c := defaultConfig()

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func defaultConfig() *Config {
	return &Config{
		Timer: TimerConfig{
			CheckpointInterval: 30 * time.Second,
			StaleAfter:         24 * time.Hour,
			KeeperTimeout:      time.Second,
		},
		Notification: NotificationConfig{
			Enabled: true,
		},
		Display: DisplayConfig{
			TwentyFourHour: false,
		},
		System: SystemConfig{
			ConfigPath: configFilePath,
			DBPath:     dbFilePath,
		},
	}
}
