// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"github.com/spf13/pflag"
)

// FlagBinding holds the server flags registered on a FlagSet. Flags
// are parsed into a private Config; Apply copies only the ones the
// user set, so a config file value survives an unset flag.
type FlagBinding struct {
	flags  *pflag.FlagSet
	values *Config
	apply  map[string]func(dst, src *Config)
}

// BindFlags registers every server option on flags with the built-in
// defaults shown in help output.
func BindFlags(flags *pflag.FlagSet) *FlagBinding {
	values := Default()
	b := &FlagBinding{flags: flags, values: values, apply: map[string]func(dst, src *Config){}}

	flags.IntVar(&values.QueueSize, "queue-size", values.QueueSize, "number of tasks that may wait for a worker")
	b.on("queue-size", func(dst, src *Config) { dst.QueueSize = src.QueueSize })

	flags.IntVar(&values.Workers, "workers-num", values.Workers, "number of worker processes")
	b.on("workers-num", func(dst, src *Config) { dst.Workers = src.Workers })

	flags.Var(&values.ReadFileTimeout, "read-file-timeout", "per-activity processing timeout (seconds or duration)")
	b.on("read-file-timeout", func(dst, src *Config) { dst.ReadFileTimeout = src.ReadFileTimeout })

	flags.BoolVar(&values.VirtualDisplay, "virtual-display", values.VirtualDisplay, "give each worker process a private Xvfb display")
	b.on("virtual-display", func(dst, src *Config) { dst.VirtualDisplay = src.VirtualDisplay })

	flags.StringVar(&values.XvfbBinary, "xvfb-binary", values.XvfbBinary, "Xvfb executable (default: Xvfb on PATH)")
	b.on("xvfb-binary", func(dst, src *Config) { dst.XvfbBinary = src.XvfbBinary })

	flags.Var(&values.ResultTTL, "result-ttl", "how long completed results stay retrievable (seconds or duration)")
	b.on("result-ttl", func(dst, src *Config) { dst.ResultTTL = src.ResultTTL })

	flags.IntVar(&values.TasksBeforeSessionRestart, "tasks-before-session-restart", values.TasksBeforeSessionRestart, "recycle a worker process after this many tasks (0 disables)")
	b.on("tasks-before-session-restart", func(dst, src *Config) { dst.TasksBeforeSessionRestart = src.TasksBeforeSessionRestart })

	flags.IntVar(&values.MaxConnections, "max-connections", values.MaxConnections, "maximum concurrent client connections")
	b.on("max-connections", func(dst, src *Config) { dst.MaxConnections = src.MaxConnections })

	flags.IntVar(&values.MaxMessageSize, "max-message-size", values.MaxMessageSize, "maximum request size in bytes")
	b.on("max-message-size", func(dst, src *Config) { dst.MaxMessageSize = src.MaxMessageSize })

	flags.StringVar(&values.UnixSocket, "unix-socket", values.UnixSocket, "path of the listening socket")
	b.on("unix-socket", func(dst, src *Config) { dst.UnixSocket = src.UnixSocket })

	flags.StringVar(&values.SocketMode, "socket-mode", values.SocketMode, "octal permissions for the socket file")
	b.on("socket-mode", func(dst, src *Config) { dst.SocketMode = src.SocketMode })

	flags.StringVar(&values.WorkerBinary, "worker-binary", values.WorkerBinary, "worker executable (default: activityq-worker next to this binary, then PATH)")
	b.on("worker-binary", func(dst, src *Config) { dst.WorkerBinary = src.WorkerBinary })

	flags.Var(&values.WorkerStartTimeout, "worker-start-timeout", "how long a worker process may take to start (seconds or duration)")
	b.on("worker-start-timeout", func(dst, src *Config) { dst.WorkerStartTimeout = src.WorkerStartTimeout })

	flags.StringVar(&values.Processor, "processor", values.Processor, "activity processor: exec or scripted")
	b.on("processor", func(dst, src *Config) { dst.Processor = src.Processor })

	flags.StringArrayVar(&values.ProcessorCommand, "processor-command", nil, "exec processor command and arguments (repeat per argument)")
	b.on("processor-command", func(dst, src *Config) { dst.ProcessorCommand = src.ProcessorCommand })

	flags.StringVar(&values.PayloadCompression, "payload-compression", values.PayloadCompression, "compression for queued payloads: none, lz4 or zstd")
	b.on("payload-compression", func(dst, src *Config) { dst.PayloadCompression = src.PayloadCompression })

	flags.StringVar(&values.LogLevel, "log-level", values.LogLevel, "log level: debug, info, warn or error")
	b.on("log-level", func(dst, src *Config) { dst.LogLevel = src.LogLevel })

	return b
}

func (b *FlagBinding) on(name string, assign func(dst, src *Config)) {
	b.apply[name] = assign
}

// Apply copies every explicitly set flag into dst.
func (b *FlagBinding) Apply(dst *Config) {
	b.flags.Visit(func(flag *pflag.Flag) {
		if assign, ok := b.apply[flag.Name]; ok {
			assign(dst, b.values)
		}
	})
}

// Resolve builds the effective configuration: defaults, then the file
// at path when path is non-empty, then set flags. The result is
// validated.
func (b *FlagBinding) Resolve(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	b.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
