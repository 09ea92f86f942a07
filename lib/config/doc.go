// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the activityq server configuration.
//
// Values come from three layers, later layers winning: built-in
// defaults from Default, an optional YAML file read by LoadFile, and
// command line flags that were explicitly set (see BindFlags). The
// result is checked by Validate, which reports every problem at once.
//
// Durations accept either a plain number of seconds ("30") or a Go
// duration string ("30s", "5m") both in the file and on the command
// line.
package config
