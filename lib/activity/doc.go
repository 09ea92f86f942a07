// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package activity defines what a worker does with a submitted
// activity file and what comes back.
//
// A [Processor] opens an activity payload (optionally with a
// password), waits for the simulated network to settle, and reports
// a result map whose main entry is "totalPercentage". Failures the
// caller can act on are reported as an [*Error] carrying one of the
// domain [ErrorKind] values. Anything else is treated as a processor
// fault.
//
// [Data] is the completed outcome stored for a task: exactly one of
// a result map or an error kind, plus the wall time spent.
//
// Two processors ship with the package. [ExecProcessor] runs an
// external command per task through a small environment and JSON
// contract. [ScriptedProcessor] interprets payloads built with
// [EncodeScript] and exists so the whole pipeline can be exercised
// without the real desktop application.
package activity
