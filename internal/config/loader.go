package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "otn.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/otn"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "OTN_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// WorkDir is where the project config search starts (default: cwd)
	WorkDir string
	// HomeDir holds the user config (default: os.UserHomeDir)
	HomeDir string
	// LookupEnv reads the environment (default: os.LookupEnv)
	LookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, LookupEnv: os.LookupEnv}
}

// Load loads configuration with layered precedence: defaults, then the
// user config (~/.config/otn/config.yaml), then the project config (explicit
// when set, otherwise otn.yaml in the work directory or a parent), then .env
// next to the project config, then OTN_* environment variables.
func (l *Loader) Load(explicit string) (*Config, error) {
	config := DefaultConfig()

	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if err := config.MergeFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", "path", userConfigPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", "path", userConfigPath, "error", err)
		}
	}

	projectConfigPath := explicit
	if projectConfigPath == "" {
		projectConfigPath = l.findProjectConfig()
	}
	if projectConfigPath != "" {
		if err := config.MergeFile(projectConfigPath); err != nil {
			if explicit != "" {
				return nil, err
			}
			l.logger.Warn("Failed to load project config", "path", projectConfigPath, "error", err)
		} else {
			l.logger.Debug("Loaded project config", "path", projectConfigPath)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	dotenv := l.readDotEnv(projectConfigPath)
	lookup := func(key string) (string, bool) {
		if v, ok := l.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := config.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides fields from OTN_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	float := func(name string, dst *float64) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	if err := float("LAMBDA", &c.Engine.Lambda); err != nil {
		return err
	}
	if err := float("GRID_CELL_SIZE", &c.Engine.GridCellSize); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "INCREMENTAL"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sINCREMENTAL: %w", EnvPrefix, err)
		}
		c.Engine.Incremental = b
	}
	if err := integer("INCREMENTAL_LIMIT", &c.Engine.IncrementalLimit); err != nil {
		return err
	}
	if err := integer("CACHE_SIZE", &c.Checks.CacheSize); err != nil {
		return err
	}
	str("RULES_FILE", &c.Checks.RulesFile)
	if v, ok := lookup(EnvPrefix + "DISABLED_CHECKS"); ok {
		c.Checks.Disabled = nil
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				c.Checks.Disabled = append(c.Checks.Disabled, key)
			}
		}
	}
	str("STATE_FILE", &c.Review.StateFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("no home directory")
	}
	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}
	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}
	l.logger.Info("Created default user config", "path", userConfigPath)
	return userConfigPath, nil
}

func (l *Loader) userConfigPath() string {
	home := l.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) workDir() string {
	if l.WorkDir != "" {
		return l.WorkDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// findProjectConfig searches for otn.yaml in the work directory and its parents
func (l *Loader) findProjectConfig() string {
	dir := l.workDir()
	if dir == "" {
		return ""
	}
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func (l *Loader) readDotEnv(projectConfigPath string) map[string]string {
	dir := l.workDir()
	if projectConfigPath != "" {
		dir = filepath.Dir(projectConfigPath)
	}
	path := filepath.Join(dir, ".env")
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to read .env", "path", path, "error", err)
		}
		return nil
	}
	l.logger.Debug("Loaded .env", "path", path)
	return env
}
