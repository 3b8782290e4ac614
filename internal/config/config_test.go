package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/ocr-prep/pkg/orientation"
	"github.com/menta2k/ocr-prep/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Orientation.Timeout() != orientation.DefaultTimeout {
		t.Errorf("timeout = %v, want %v", cfg.Orientation.Timeout(), orientation.DefaultTimeout)
	}
	want := types.Frame{Width: 800, Height: 600, PixelRatio: 1}
	if cfg.Viewport.Frame() != want {
		t.Errorf("frame = %+v, want %+v", cfg.Viewport.Frame(), want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown orientation backend", func(c *Config) { c.Orientation.Backend = "magic" }, "orientation.backend"},
		{"zero timeout", func(c *Config) { c.Orientation.TimeoutMS = 0 }, "timeout_ms"},
		{"confidence above one", func(c *Config) { c.Orientation.MinConfidence = 1.5 }, "min_confidence"},
		{"unknown recognition backend", func(c *Config) { c.Recognition.Backend = "cloud" }, "recognition.backend"},
		{"tesseract without languages", func(c *Config) {
			c.Recognition.Backend = RecognitionTesseract
			c.Recognition.Languages = nil
		}, "languages"},
		{"empty frame", func(c *Config) { c.Viewport.FrameWidth = 0 }, "frame size"},
		{"negative pixel ratio", func(c *Config) { c.Viewport.PixelRatio = -1 }, "pixel_ratio"},
		{"zoom step below one", func(c *Config) { c.Viewport.ZoomStep = 0.9 }, "zoom_step"},
		{"zero zoom step uses default", func(c *Config) { c.Viewport.ZoomStep = 0 }, ""},
		{"tesseract with languages", func(c *Config) { c.Recognition.Backend = RecognitionTesseract }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Orientation.Backend = orientation.BackendOllama
	cfg.Orientation.TimeoutMS = 2500
	cfg.Recognition.Languages = []string{"eng", "bul"}
	cfg.Output.DebugOverlay = true

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if loaded.Orientation.Backend != orientation.BackendOllama {
		t.Errorf("backend = %s", loaded.Orientation.Backend)
	}
	if loaded.Orientation.Timeout() != 2500*time.Millisecond {
		t.Errorf("timeout = %v", loaded.Orientation.Timeout())
	}
	if strings.Join(loaded.Recognition.Languages, "+") != "eng+bul" {
		t.Errorf("languages = %v", loaded.Recognition.Languages)
	}
	if !loaded.Output.DebugOverlay {
		t.Error("debug_overlay lost")
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"orientation": {"backend": "exif"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Orientation.Backend != orientation.BackendEXIF {
		t.Errorf("backend = %s, want exif", cfg.Orientation.Backend)
	}
	if cfg.Orientation.MinConfidence != 0.5 || cfg.Viewport.FrameWidth != 800 {
		t.Errorf("defaults not kept: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("partial config invalid: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), "config.json") {
		t.Errorf("unexpected path %s", GetConfigPath())
	}
}
