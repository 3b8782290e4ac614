package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/menta2k/ocr-prep/pkg/orientation"
	"github.com/menta2k/ocr-prep/pkg/recognition"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// Recognition backends
const (
	RecognitionNone      = "none"
	RecognitionPaddle    = "paddle"
	RecognitionTesseract = "tesseract"
)

var orientationBackends = []string{
	orientation.BackendNone,
	orientation.BackendEXIF,
	orientation.BackendService,
	orientation.BackendOllama,
	orientation.BackendLlamaCpp,
	orientation.BackendChain,
}

var recognitionBackends = []string{RecognitionNone, RecognitionPaddle, RecognitionTesseract}

// Config holds the application configuration
type Config struct {
	Orientation OrientationConfig `json:"orientation"`
	Recognition RecognitionConfig `json:"recognition"`
	Viewport    ViewportConfig    `json:"viewport"`
	Output      OutputConfig      `json:"output"`
}

// OrientationConfig holds configuration for orientation detection. An empty
// URL selects the backend's default address.
type OrientationConfig struct {
	Enabled       bool    `json:"enabled"`
	Backend       string  `json:"backend"`
	URL           string  `json:"url"`
	Model         string  `json:"model"`
	TimeoutMS     int     `json:"timeout_ms"`
	MinConfidence float64 `json:"min_confidence"`
}

// RecognitionConfig holds configuration for the text recognizer
type RecognitionConfig struct {
	Backend   string   `json:"backend"`
	URL       string   `json:"url"`
	Languages []string `json:"languages"`
}

// ViewportConfig holds the frame used for crop commits and previews
type ViewportConfig struct {
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	PixelRatio  float64 `json:"pixel_ratio"`
	ZoomStep    float64 `json:"zoom_step"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir    string `json:"output_dir"`
	Prefix       string `json:"prefix"`
	Suffix       string `json:"suffix"`
	DebugOverlay bool   `json:"debug_overlay"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Orientation: OrientationConfig{
			Enabled:       true,
			Backend:       orientation.BackendChain,
			URL:           "",
			Model:         "openbmb/minicpm-v4.5",
			TimeoutMS:     int(orientation.DefaultTimeout / time.Millisecond),
			MinConfidence: 0.5,
		},
		Recognition: RecognitionConfig{
			Backend:   RecognitionPaddle,
			URL:       recognition.DefaultURL,
			Languages: []string{"eng"},
		},
		Viewport: ViewportConfig{
			FrameWidth:  800,
			FrameHeight: 600,
			PixelRatio:  1,
			ZoomStep:    1.1,
		},
		Output: OutputConfig{
			OutputDir: "./output",
			Prefix:    "",
			Suffix:    "_prepared",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(orientationBackends, c.Orientation.Backend) {
		return fmt.Errorf("orientation.backend must be one of %v", orientationBackends)
	}

	if c.Orientation.TimeoutMS < 1 {
		return fmt.Errorf("orientation.timeout_ms must be positive")
	}

	if c.Orientation.MinConfidence < 0 || c.Orientation.MinConfidence > 1 {
		return fmt.Errorf("orientation.min_confidence must be between 0 and 1")
	}

	if !slices.Contains(recognitionBackends, c.Recognition.Backend) {
		return fmt.Errorf("recognition.backend must be one of %v", recognitionBackends)
	}

	if c.Recognition.Backend == RecognitionTesseract && len(c.Recognition.Languages) == 0 {
		return fmt.Errorf("recognition.languages cannot be empty for tesseract")
	}

	if c.Viewport.FrameWidth < 1 || c.Viewport.FrameHeight < 1 {
		return fmt.Errorf("viewport frame size must be positive")
	}

	if c.Viewport.PixelRatio < 0 {
		return fmt.Errorf("viewport.pixel_ratio cannot be negative")
	}

	if c.Viewport.ZoomStep != 0 && c.Viewport.ZoomStep <= 1 {
		return fmt.Errorf("viewport.zoom_step must be greater than 1")
	}

	return nil
}

// Timeout returns the orientation timeout as a duration
func (c OrientationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Frame returns the viewport frame
func (c ViewportConfig) Frame() types.Frame {
	return types.Frame{Width: c.FrameWidth, Height: c.FrameHeight, PixelRatio: c.PixelRatio}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "ocr-prep", "config.json")
}
