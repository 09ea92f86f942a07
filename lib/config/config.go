// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/activityq/lib/client"
	"github.com/bureau-foundation/activityq/lib/codec"
	"github.com/bureau-foundation/activityq/lib/compress"
	"github.com/bureau-foundation/activityq/lib/worker"
)

// Config is the server configuration.
type Config struct {
	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int `yaml:"queue_size" validate:"min=1"`

	// Workers is the number of worker processes.
	Workers int `yaml:"workers_num" validate:"min=1"`

	// ReadFileTimeout bounds processing of a single activity.
	ReadFileTimeout Duration `yaml:"read_file_timeout" validate:"gt=0"`

	// VirtualDisplay gives each worker process a private Xvfb display.
	VirtualDisplay bool `yaml:"virtual_display"`

	// XvfbBinary is the Xvfb executable. Empty means Xvfb on PATH.
	XvfbBinary string `yaml:"xvfb_binary"`

	// ResultTTL is how long a completed result stays retrievable.
	ResultTTL Duration `yaml:"result_ttl" validate:"gt=0"`

	// TasksBeforeSessionRestart recycles a worker process after this
	// many tasks. Zero disables counter-based restarts.
	TasksBeforeSessionRestart int `yaml:"tasks_before_session_restart" validate:"min=0"`

	// MaxConnections bounds concurrently open client connections.
	MaxConnections int `yaml:"max_connections" validate:"min=1"`

	// MaxMessageSize bounds one request frame in bytes.
	MaxMessageSize int `yaml:"max_message_size" validate:"min=1024"`

	// UnixSocket is the path the server listens on.
	UnixSocket string `yaml:"unix_socket" validate:"required"`

	// SocketMode is the octal permission applied to the socket file.
	SocketMode string `yaml:"socket_mode" validate:"required"`

	// WorkerBinary is the worker executable. Empty means
	// activityq-worker next to the server binary, then on PATH.
	WorkerBinary string `yaml:"worker_binary"`

	// WorkerStartTimeout bounds how long a worker process may take to
	// report ready.
	WorkerStartTimeout Duration `yaml:"worker_start_timeout" validate:"gt=0"`

	// Processor selects how workers process activities.
	Processor string `yaml:"processor" validate:"oneof=exec scripted"`

	// ProcessorCommand is the command the exec processor runs per
	// activity.
	ProcessorCommand []string `yaml:"processor_command"`

	// PayloadCompression compresses queued payloads: none, lz4 or
	// zstd.
	PayloadCompression string `yaml:"payload_compression" validate:"oneof=none lz4 zstd"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration. The socket path honors
// $ACTIVITYQ_SOCKET.
func Default() *Config {
	return &Config{
		QueueSize:                 100,
		Workers:                   runtime.NumCPU(),
		ReadFileTimeout:           Duration(30 * time.Second),
		ResultTTL:                 Duration(5 * time.Minute),
		TasksBeforeSessionRestart: 10,
		MaxConnections:            100,
		MaxMessageSize:            codec.DefaultMaxFrameSize,
		UnixSocket:                client.SocketPath(""),
		SocketMode:                "0600",
		WorkerStartTimeout:        Duration(30 * time.Second),
		Processor:                 worker.ProcessorExec,
		PayloadCompression:        compress.LZ4.String(),
		LogLevel:                  "info",
	}
}

// LoadFile reads a YAML file over the defaults. Unknown keys are
// errors so a misspelled option does not silently fall back to its
// default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their YAML names, which are also the
// flag names with underscores.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every invalid field, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fieldError := range fieldErrors {
			errs = append(errs, describe(fieldError))
		}
	}

	if _, err := c.FileMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Processor == worker.ProcessorExec && len(c.ProcessorCommand) == 0 {
		errs = append(errs, errors.New("processor_command is required for the exec processor"))
	}

	return errors.Join(errs...)
}

func describe(fieldError validator.FieldError) error {
	switch fieldError.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fieldError.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", fieldError.Field(), fieldError.Param(), fieldError.Value())
	case "min", "gt":
		return fmt.Errorf("%s must be %s %s, got %v", fieldError.Field(), comparison(fieldError.Tag()), fieldError.Param(), fieldError.Value())
	default:
		return fmt.Errorf("%s failed %q validation", fieldError.Field(), fieldError.Tag())
	}
}

func comparison(tag string) string {
	if tag == "gt" {
		return "greater than"
	}
	return "at least"
}

// FileMode parses SocketMode.
func (c *Config) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.SocketMode, 8, 32)
	if err != nil || mode > 0o777 {
		return 0, fmt.Errorf("socket_mode %q is not an octal permission", c.SocketMode)
	}
	return os.FileMode(mode), nil
}

// Compression returns the payload compression tag.
func (c *Config) Compression() (compress.Tag, error) {
	return compress.ParseTag(c.PayloadCompression)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel maps a level name to a slog level. Unknown names map
// to info.
func ParseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
