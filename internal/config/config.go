package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	VariantMulticlass = "multiclass"
	VariantBinary     = "binary"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			MaxUploadMB:     10,
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Model: ModelConfig{
			Path:    "models/best_model.onnx",
			Variant: VariantMulticlass,
			Preload: true,
			Layout:  "nhwc",
			Output:  "auto",
		},
		Remote: RemoteConfig{
			HuggingFaceFilename: "best_model.onnx",
			HuggingFaceRevision: "main",
			Timeout:             Duration{5 * time.Minute},
		},
		Preprocess: PreprocessConfig{
			Enhance:       false,
			ClipLimit:     2.0,
			TileGrid:      8,
			Interpolation: "bicubic",
		},
		Present: PresentConfig{
			TopK:        5,
			DiseaseInfo: true,
		},
		Telegram: TelegramConfig{
			PollTimeout: 60,
			MaxFileMB:   10,
			Timeout:     Duration{30 * time.Second},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Path returns the config file location.
func Path() string {
	return getEnv("CONFIG_PATH", "config.toml")
}

// Load reads the TOML file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.Variant = getEnv("MODEL_VARIANT", c.Model.Variant)
	c.Model.Output = getEnv("MODEL_OUTPUT", c.Model.Output)
	c.Model.RuntimeLibrary = getEnv("ONNXRUNTIME_LIB", c.Model.RuntimeLibrary)
	c.Remote.GoogleDriveID = getEnv("GDRIVE_FILE_ID", c.Remote.GoogleDriveID)
	c.Remote.GoogleAPIKey = getEnv("GOOGLE_API_KEY", c.Remote.GoogleAPIKey)
	c.Remote.HuggingFaceRepo = getEnv("HF_REPO", c.Remote.HuggingFaceRepo)
	c.Remote.HuggingFaceFilename = getEnv("HF_FILENAME", c.Remote.HuggingFaceFilename)
	c.Remote.HuggingFaceRevision = getEnv("HF_REVISION", c.Remote.HuggingFaceRevision)
	c.Remote.HuggingFaceToken = getEnv("HF_TOKEN", c.Remote.HuggingFaceToken)
	c.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	if v := os.Getenv("INPUT_RESOLUTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INPUT_RESOLUTION: %w", err)
		}
		c.Preprocess.Resolution = n
	}
	if v := os.Getenv("ENHANCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENHANCE: %w", err)
		}
		c.Preprocess.Enhance = b
	}
	return nil
}

// Validate checks the values the rest of the service relies on.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if strings.TrimSpace(c.Model.Path) == "" {
		errs = append(errs, errors.New("model.path is empty"))
	}
	switch c.Model.Variant {
	case VariantMulticlass, VariantBinary:
	default:
		errs = append(errs, fmt.Errorf("model.variant %q is not one of multiclass, binary", c.Model.Variant))
	}
	switch c.Model.Layout {
	case "nhwc", "nchw":
	default:
		errs = append(errs, fmt.Errorf("model.layout %q is not one of nhwc, nchw", c.Model.Layout))
	}
	switch c.Model.Output {
	case "auto", "probabilities", "logits":
	default:
		errs = append(errs, fmt.Errorf("model.output %q is not one of auto, probabilities, logits", c.Model.Output))
	}
	if c.Preprocess.Resolution < 0 {
		errs = append(errs, errors.New("preprocess.resolution must not be negative"))
	}
	if c.Preprocess.ClipLimit <= 0 {
		errs = append(errs, errors.New("preprocess.clip_limit must be positive"))
	}
	if c.Preprocess.TileGrid <= 0 {
		errs = append(errs, errors.New("preprocess.tile_grid must be positive"))
	}
	switch c.Preprocess.Interpolation {
	case "nearest", "bilinear", "bicubic", "lanczos3":
	default:
		errs = append(errs, fmt.Errorf("preprocess.interpolation %q is not supported", c.Preprocess.Interpolation))
	}
	if c.Present.TopK <= 0 {
		errs = append(errs, errors.New("present.top_k must be positive"))
	}
	if c.Remote.HuggingFaceRepo != "" && c.Remote.HuggingFaceFilename == "" {
		errs = append(errs, errors.New("remote.huggingface_filename is required with huggingface_repo"))
	}
	if c.Remote.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	return errors.Join(errs...)
}

// InputResolution returns the configured resolution, or the size the
// variant's network was trained at.
func (c *Config) InputResolution() int {
	if c.Preprocess.Resolution > 0 {
		return c.Preprocess.Resolution
	}
	if c.Model.Variant == VariantBinary {
		return 150
	}
	return 224
}

// HasRemoteSource reports whether a fetch source is configured.
func (c *Config) HasRemoteSource() bool {
	return c.Remote.GoogleDriveID != "" || c.Remote.HuggingFaceRepo != ""
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
