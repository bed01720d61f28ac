// Package config loads routegen settings from defaults, a YAML config file,
// ROUTEGEN_* environment variables and command-line flags.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ROUTEGEN_LOG_LEVEL.
const EnvPrefix = "ROUTEGEN"

// Config represents the complete routegen configuration
type Config struct {
	Database   string           `mapstructure:"database"`
	OutputDir  string           `mapstructure:"output_dir"`
	Log        LogConfig        `mapstructure:"log"`
	Generation GenerationConfig `mapstructure:"generation"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Builder    BuilderConfig    `mapstructure:"builder"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is text or json
	Format string `mapstructure:"format"`
}

// GenerationConfig holds orchestrator policy
type GenerationConfig struct {
	// SeparatePerRoute applies when a request file does not set it
	SeparatePerRoute bool `mapstructure:"separate_per_route"`
	// MaxJobs caps the jobs one request may decompose into (0 disables)
	MaxJobs int `mapstructure:"max_jobs"`
}

// DirectionsConfig tunes the local directions service
type DirectionsConfig struct {
	AverageSpeedKmh float64 `mapstructure:"average_speed_kmh"`
}

// BuilderConfig selects artifact file formats
type BuilderConfig struct {
	Formats FormatsConfig `mapstructure:"formats"`
}

// FormatsConfig maps template kinds to output formats
type FormatsConfig struct {
	// Report is yaml or json
	Report string `mapstructure:"report"`
	// Export is csv or geojson
	Export string `mapstructure:"export"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  "routegen.db",
		OutputDir: "artifacts",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Generation: GenerationConfig{
			SeparatePerRoute: false,
			MaxJobs:          1000,
		},
		Directions: DirectionsConfig{
			AverageSpeedKmh: 40,
		},
		Builder: BuilderConfig{
			Formats: FormatsConfig{
				Report: "yaml",
				Export: "csv",
			},
		},
	}
}

// SetDefaults registers Default() with v so every key resolves even
// without a config file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("database", defaults.Database)
	v.SetDefault("output_dir", defaults.OutputDir)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("generation.separate_per_route", defaults.Generation.SeparatePerRoute)
	v.SetDefault("generation.max_jobs", defaults.Generation.MaxJobs)

	v.SetDefault("directions.average_speed_kmh", defaults.Directions.AverageSpeedKmh)

	v.SetDefault("builder.formats.report", defaults.Builder.Formats.Report)
	v.SetDefault("builder.formats.export", defaults.Builder.Formats.Export)
}

// Init prepares v: defaults, config file lookup and environment binding.
// If cfgFile is empty, config.yaml is searched in ConfigDir() and the
// working directory; a missing file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	// ROUTEGEN_GENERATION_MAX_JOBS for generation.max_jobs
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "routegen")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".routegen"
	}
	return filepath.Join(home, ".config", "routegen")
}

// ConfigFile returns the default config file path
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
