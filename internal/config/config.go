// Package config loads the process settings of busrpc. The environment names
// the transport file and the logging setup; the transport file describes how
// to reach the bus.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/RidgeA/pubsub-rpc/internal/logger"
	"github.com/RidgeA/pubsub-rpc/transport"
)

const (
	DriverRedis  = "redis"
	DriverAMQP   = "amqp"
	DriverMemory = "memory"
)

var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Env is read from the process environment and an optional .env file.
	Env struct {
		ConfigFile string `env:"BUSRPC_CONFIG,required"`
		LogLevel   string `env:"BUSRPC_LOG_LEVEL" envDefault:"info"`
		LogFormat  string `env:"BUSRPC_LOG_FORMAT" envDefault:"text"`
		LogFile    string `env:"BUSRPC_LOG_FILE"`
	}

	// File is the transport description.
	File struct {
		Driver   string `json:"driver" yaml:"driver"`
		URL      string `json:"url" yaml:"url"`
		Host     string `json:"host" yaml:"host"`
		Port     int    `json:"port" yaml:"port"`
		Username string `json:"username" yaml:"username"`
		Password string `json:"password" yaml:"password"`
		DB       int    `json:"db" yaml:"db"`
		Exchange string `json:"exchange" yaml:"exchange"`

		RetryAttempts int    `json:"retry_attempts" yaml:"retry_attempts"`
		RetryInterval string `json:"retry_interval" yaml:"retry_interval"`

		retryInterval time.Duration
	}

	Config struct {
		Env
		File
	}
)

// LoadEnv parses the environment. A .env file in the working directory is
// applied first when present; variables already set win. A non-empty
// configFile takes the place of BUSRPC_CONFIG without touching the process
// environment.
func LoadEnv(configFile string) (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("%w: .env: %w", ErrInvalidConfig, err)
	}

	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	if configFile != "" {
		environ["BUSRPC_CONFIG"] = configFile
	}

	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
		if errors.Is(err, env.EnvVarIsNotSetError{}) {
			return Env{}, fmt.Errorf("%w: %w", ErrMissingConfig, err)
		}
		return Env{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return e, nil
}

// LoadFile reads and validates a transport file. Files ending in .yaml or
// .yml are YAML, anything else is JSON. Unknown keys are rejected in both.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, fmt.Errorf("%w: config file %s does not exist", ErrMissingConfig, path)
		}
		return File{}, fmt.Errorf("%w: cannot read %s: %w", ErrInvalidConfig, path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&f)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	}
	if err != nil {
		return File{}, fmt.Errorf("%w: cannot parse %s: %w", ErrInvalidConfig, path, err)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Load reads the environment and the transport file it points to.
// configFile, when set, overrides BUSRPC_CONFIG.
func Load(configFile string) (Config, error) {
	e, err := LoadEnv(configFile)
	if err != nil {
		return Config{}, err
	}
	if _, err := logger.ParseLevel(e.LogLevel); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if e.LogFormat != "text" && e.LogFormat != "json" {
		return Config{}, fmt.Errorf("%w: log format %q", ErrInvalidConfig, e.LogFormat)
	}

	f, err := LoadFile(e.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	return Config{Env: e, File: f}, nil
}

// Validate checks the values and fills in the driver default.
func (f *File) Validate() error {
	var errs []string

	if f.Driver == "" {
		f.Driver = DriverRedis
	}
	switch f.Driver {
	case DriverRedis, DriverAMQP, DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown driver %q", f.Driver))
	}

	if f.Driver == DriverAMQP && f.URL == "" {
		errs = append(errs, "amqp driver requires url")
	}
	if f.Port < 0 || f.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", f.Port))
	}
	if f.DB < 0 {
		errs = append(errs, fmt.Sprintf("db %d must not be negative", f.DB))
	}
	if f.RetryAttempts < 0 {
		errs = append(errs, "retry_attempts must not be negative")
	}
	if f.RetryInterval != "" {
		d, err := time.ParseDuration(f.RetryInterval)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Sprintf("retry_interval %q is not a positive duration", f.RetryInterval))
		}
		f.retryInterval = d
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func (f File) RedisOptions() transport.RedisOptions {
	return transport.RedisOptions{
		URL:           f.URL,
		Host:          f.Host,
		Port:          f.Port,
		Username:      f.Username,
		Password:      f.Password,
		DB:            f.DB,
		RetryAttempts: f.RetryAttempts,
		RetryInterval: f.retryInterval,
	}
}

func (e Env) LoggerOptions() logger.Options {
	return logger.Options{
		Level:  e.LogLevel,
		Format: e.LogFormat,
		File:   e.LogFile,
	}
}
