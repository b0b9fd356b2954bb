package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "docreader"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOCREADER"
)

// Loader handles loading configuration from files, environment variables,
// and defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader backed by the global viper
// instance, so flag bindings set up elsewhere keep working.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables, and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is like Load but skips Validate, useful for
// tooling that wants to inspect a possibly-invalid configuration.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load()
}

func (l *Loader) load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")

	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Get returns a raw value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file that was read.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage
// (flag binding from cobra commands).
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}
	l.v.AddConfigPath("/etc/docreader")
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		l.v.AddConfigPath(filepath.Join(configDir, "docreader"))
	} else if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "docreader"))
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("recognizer_model_id", d.RecognizerModelID)
	l.v.SetDefault("layout_model_id", d.LayoutModelID)
	l.v.SetDefault("max_concurrent_recognitions", d.MaxConcurrentRecognitions)
	l.v.SetDefault("enable_layout", d.EnableLayout)

	l.v.SetDefault("recognition_options.max_tokens", d.RecognitionOptions.MaxTokens)
	l.v.SetDefault("recognition_options.temperature", d.RecognitionOptions.Temperature)
	l.v.SetDefault("recognition_options.prefill_step_size", d.RecognitionOptions.PrefillStepSize)
	l.v.SetDefault("recognition_options.top_p", d.RecognitionOptions.TopP)
	l.v.SetDefault("recognition_options.top_k", d.RecognitionOptions.TopK)
	l.v.SetDefault("recognition_options.repetition_penalty", d.RecognitionOptions.RepetitionPenalty)

	l.v.SetDefault("prompts.no_layout", d.Prompts.NoLayout)
	l.v.SetDefault("prompts.text", d.Prompts.Text)
	l.v.SetDefault("prompts.table", d.Prompts.Table)
	l.v.SetDefault("prompts.formula", d.Prompts.Formula)

	l.v.SetDefault("layout.threshold", d.Layout.Threshold)
	l.v.SetDefault("layout.layout_nms", d.Layout.LayoutNMS)
	l.v.SetDefault("layout.unclip_ratio_x", d.Layout.UnclipRatioX)
	l.v.SetDefault("layout.unclip_ratio_y", d.Layout.UnclipRatioY)

	l.v.SetDefault("pdf_dpi", d.PDFDPI)
	l.v.SetDefault("pdf_max_rendered_long_side", d.PDFMaxRenderedLongSide)

	l.v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	l.v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// GetResolvedConfig returns the fully resolved configuration map, for
// debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes out a configuration file populated
// with DefaultConfig's values.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoader()
	loader.setDefaults()
	if filename == "" {
		filename = "docreader.yaml"
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths searched for a configuration file.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	paths = append(paths, "/etc/docreader")
	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "docreader"))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", "docreader"))
	}
	return paths
}
