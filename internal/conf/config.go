// Package conf holds the application settings and viper-backed configuration
// loading for ClassCount.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/classcount/classcount-go/internal/errors"
)

// Settings contains all runtime configuration for the application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version string `yaml:"-"`

	Main struct {
		Name string // name of this ClassCount node
	}

	Detector DetectorConfig // person detection model configuration

	Storage struct {
		ImagePath  string // base directory for stored upload images
		ReportPath string // base directory for generated report artifacts
	}

	WebServer struct {
		Enabled   bool
		Port      string
		Debug     bool
		RateLimit float64 // requests per second per client IP, 0 disables
		RateBurst int     // burst size for the request rate limiter
	}

	Output struct {
		SQLite struct {
			Enabled bool
			Path    string
		}
		MySQL struct {
			Enabled  bool
			Username string
			Password string
			Host     string
			Port     string
			Database string
		}
	}
}

// DetectorConfig holds the person-detection model configuration.
type DetectorConfig struct {
	ModelPath        string        // path to the TFLite detection model file
	LabelPath        string        // path to the label vocabulary file
	TargetLabel      string        // label counted as a person detection
	MinConfidence    float64       // detections below this score are ignored
	Threads          int           // interpreter threads, 0 = auto
	UseXNNPACK       bool          // enable XNNPACK delegate
	InferenceTimeout time.Duration // upper bound for a single Detect call
}

var (
	settingsInstance *Settings
	settingsOnce     sync.Once
	settingsMutex    sync.Mutex
)

// Load reads the configuration file and returns validated settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// Setting returns the loaded settings, loading them on first use.
func Setting() *Settings {
	settingsOnce.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})
	return settingsInstance
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the config search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "classcount-go"))
	}
	return paths, nil
}

// createDefaultConfig writes a default config file to the first config path.
func createDefaultConfig(configPath string) error {
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	target := filepath.Join(configPath, "config.yaml")
	if err := SaveSettings(settings, target); err != nil {
		return err
	}
	return viper.ReadInConfig()
}

// SaveSettings writes the settings to path as YAML.
func SaveSettings(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
