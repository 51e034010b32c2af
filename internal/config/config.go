package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/inkwell/internal/util/compression"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

const CurrentVersion = 1

// Config represents the complete configuration structure
type Config struct {
	Version  int            `yaml:"version" default:"1"`
	Server   ServerConfig   `yaml:"server"`
	Editor   EditorConfig   `yaml:"editor"`
	Cache    CacheConfig    `yaml:"cache"`
	Images   ImagesConfig   `yaml:"images"`
	Upload   UploadConfig   `yaml:"upload"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            string        `yaml:"port" default:"12600"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type EditorConfig struct {
	AutosaveInterval time.Duration `yaml:"autosave_interval" default:"30s"`
	// DismissAfter is how long a successful result stays visible.
	DismissAfter   time.Duration `yaml:"dismiss_after" default:"3s"`
	SyntaxTheme    string        `yaml:"syntax_theme" default:"gruvbox"`
	RenderEngine   string        `yaml:"render_engine" default:"mmark"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" default:"33554432"`
}

type CacheConfig struct {
	Backend     string `yaml:"backend" default:"badger"`
	Path        string `yaml:"path" default:"./data/drafts"`
	Compression string `yaml:"compression" default:"zstd"`
}

type ImagesConfig struct {
	Compress     bool    `yaml:"compress" default:"true"`
	Quality      float64 `yaml:"quality" default:"0.8"`
	MaxDimension int     `yaml:"max_dimension" default:"1920"`
}

type UploadConfig struct {
	Backend string     `yaml:"backend" default:"s3"`
	S3      S3Config   `yaml:"s3"`
	HTTP    HTTPConfig `yaml:"http"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint" default:""`
	Region          string `yaml:"region" default:"auto"`
	Bucket          string `yaml:"bucket" default:""`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
	PublicBaseURL   string `yaml:"public_base_url" default:""`
	Prefix          string `yaml:"prefix" default:"uploads"`
}

type HTTPConfig struct {
	Endpoint string        `yaml:"endpoint" default:""`
	Token    string        `yaml:"token" default:""`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" default:"./inkwell.db"`
}

const (
	CacheBadger = "badger"
	CacheMemory = "memory"

	UploadS3   = "s3"
	UploadHTTP = "http"
)

// Secrets that may be left out of the config file.
var envFallbacks = []struct {
	env   string
	field func(*Config) *string
}{
	{"S3_ENDPOINT", func(c *Config) *string { return &c.Upload.S3.Endpoint }},
	{"S3_BUCKET", func(c *Config) *string { return &c.Upload.S3.Bucket }},
	{"S3_ACCESS_KEY_ID", func(c *Config) *string { return &c.Upload.S3.AccessKeyID }},
	{"S3_SECRET_ACCESS_KEY", func(c *Config) *string { return &c.Upload.S3.SecretAccessKey }},
	{"S3_PUBLIC_BASE_URL", func(c *Config) *string { return &c.Upload.S3.PublicBaseURL }},
	{"UPLOAD_ENDPOINT", func(c *Config) *string { return &c.Upload.HTTP.Endpoint }},
	{"UPLOAD_TOKEN", func(c *Config) *string { return &c.Upload.HTTP.Token }},
}

var AppConfig *Config

func LoadConfig(path string) error {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	if err != nil {
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(config)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	AppConfig = config
	return nil
}

func applyEnv(config *Config) {
	for _, f := range envFallbacks {
		field := f.field(config)
		if *field != "" {
			continue
		}
		if v, ok := os.LookupEnv(f.env); ok {
			*field = v
		}
	}
}

func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported configuration version %d", c.Version)
	}
	if c.Images.Quality <= 0 || c.Images.Quality > 1 {
		return fmt.Errorf("images.quality must be in (0, 1], got %v", c.Images.Quality)
	}
	if c.Images.MaxDimension < 0 {
		return fmt.Errorf("images.max_dimension must not be negative, got %d", c.Images.MaxDimension)
	}
	if c.Editor.AutosaveInterval <= 0 {
		return fmt.Errorf("editor.autosave_interval must be positive, got %s", c.Editor.AutosaveInterval)
	}
	if c.Editor.DismissAfter < 0 {
		return fmt.Errorf("editor.dismiss_after must not be negative, got %s", c.Editor.DismissAfter)
	}
	switch c.Editor.RenderEngine {
	case "mmark", "classic":
	default:
		return fmt.Errorf("unknown editor.render_engine %q", c.Editor.RenderEngine)
	}
	switch c.Cache.Backend {
	case CacheBadger, CacheMemory:
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if _, err := compression.New(c.Cache.Compression); err != nil {
		return fmt.Errorf("cache.compression: %w", err)
	}
	switch c.Upload.Backend {
	case UploadS3, UploadHTTP:
	default:
		return fmt.Errorf("unknown upload.backend %q", c.Upload.Backend)
	}
	return nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if val, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(val))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
