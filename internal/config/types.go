// Package config provides configuration types for the leaf API.
package config

import (
	"fmt"
	"time"
)

// Config represents the service configuration. It is read once at start.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Model      ModelConfig      `toml:"model"`
	Remote     RemoteConfig     `toml:"remote"`
	Preprocess PreprocessConfig `toml:"preprocess"`
	Present    PresentConfig    `toml:"present"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig contains HTTP settings.
type ServerConfig struct {
	Port            string   `toml:"port"`
	MaxUploadMB     int      `toml:"max_upload_mb"`
	CORSOrigins     []string `toml:"cors_origins"` // empty or "*" allows any origin
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// ModelConfig locates the artifact and selects the classifier variant.
type ModelConfig struct {
	Path           string `toml:"path"`
	Variant        string `toml:"variant"` // multiclass, binary
	RuntimeLibrary string `toml:"runtime_library"`
	Preload        bool   `toml:"preload"`
	Layout         string `toml:"layout"` // nhwc, nchw
	Output         string `toml:"output"` // auto, probabilities, logits
}

// RemoteConfig names the one source the artifact is fetched from when
// it is missing locally.
type RemoteConfig struct {
	GoogleDriveID       string   `toml:"google_drive_id"`
	GoogleAPIKey        string   `toml:"google_api_key"`
	HuggingFaceRepo     string   `toml:"huggingface_repo"`
	HuggingFaceFilename string   `toml:"huggingface_filename"`
	HuggingFaceRevision string   `toml:"huggingface_revision"`
	HuggingFaceToken    string   `toml:"huggingface_token"`
	Timeout             Duration `toml:"timeout"`
}

// PreprocessConfig controls the image pipeline.
type PreprocessConfig struct {
	Resolution    int     `toml:"resolution"` // 0 picks the variant default
	Enhance       bool    `toml:"enhance"`
	ClipLimit     float64 `toml:"clip_limit"`
	TileGrid      int     `toml:"tile_grid"`
	Interpolation string  `toml:"interpolation"` // nearest, bilinear, bicubic, lanczos3
}

// PresentConfig controls the ranked result.
type PresentConfig struct {
	TopK        int  `toml:"top_k"`
	DiseaseInfo bool `toml:"disease_info"`
}

// TelegramConfig enables the bot when Token is set.
type TelegramConfig struct {
	Token       string   `toml:"token"`
	PollTimeout int      `toml:"poll_timeout"` // seconds
	MaxFileMB   int      `toml:"max_file_mb"`
	Timeout     Duration `toml:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // json, text
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
