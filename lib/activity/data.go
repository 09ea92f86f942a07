// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind names an outcome that is not a result. The string values
// travel on the wire and are part of the client contract.
type ErrorKind string

const (
	// WrongPassword: the activity is password protected and the
	// supplied password does not open it.
	WrongPassword ErrorKind = "WrongPassword"

	// FileReadingError: the payload is not a readable activity file.
	FileReadingError ErrorKind = "ActivityFileReadingError"

	// NeedsPassword: the activity is password protected and no
	// password was supplied.
	NeedsPassword ErrorKind = "ActivityNeedsPassword"

	// TopologyNotSupported: the payload is a topology file, which has
	// no completion percentage.
	TopologyNotSupported ErrorKind = "TopologyFilesNotSupported"

	// ProcessingTimeout: the processor did not finish within the
	// server's read-file timeout.
	ProcessingTimeout ErrorKind = "ActivityProcessingTimeout"

	// ProcessorCrashed: the worker process died while handling the
	// task.
	ProcessorCrashed ErrorKind = "ActivityProcessorCrashed"

	// Unexpected: the processor failed in a way that is neither a
	// domain error nor a crash, or produced an invalid outcome.
	Unexpected ErrorKind = "UnexpectedError"
)

// IsDomain reports whether k describes the activity file itself
// rather than a failure of the machinery processing it.
func (k ErrorKind) IsDomain() bool {
	switch k {
	case WrongPassword, FileReadingError, NeedsPassword, TopologyNotSupported:
		return true
	}
	return false
}

// ForcesRestart reports whether a task ending with k leaves the
// session in a state that must not serve another task.
func (k ErrorKind) ForcesRestart() bool {
	switch k {
	case ProcessingTimeout, ProcessorCrashed, Unexpected:
		return true
	}
	return false
}

// Valid reports whether k is one of the defined kinds.
func (k ErrorKind) Valid() bool {
	return k.IsDomain() || k.ForcesRestart()
}

// Error is returned by a Processor for a domain failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Fail returns an *Error of the given kind wrapping cause, which may
// be nil.
func Fail(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err. Errors that are not an
// *Error with a valid kind map to Unexpected.
func KindOf(err error) ErrorKind {
	var activityErr *Error
	if errors.As(err, &activityErr) && activityErr.Kind.Valid() {
		return activityErr.Kind
	}
	return Unexpected
}

// Data is the completed outcome of a task. Exactly one of Data and
// Error is set. ConsumedTime covers the whole processing attempt,
// including time lost to a timeout or crash.
type Data struct {
	Data         map[string]any `cbor:"data"`
	Error        ErrorKind      `cbor:"error,omitempty"`
	ConsumedTime time.Duration  `cbor:"consumed_time"`
}

// Succeeded returns the outcome for a processor result.
func Succeeded(result map[string]any, consumed time.Duration) Data {
	if result == nil {
		result = map[string]any{}
	}
	return Data{Data: result, ConsumedTime: consumed}
}

// Failed returns the outcome for a task that ended with kind.
func Failed(kind ErrorKind, consumed time.Duration) Data {
	return Data{Error: kind, ConsumedTime: consumed}
}

// Validate checks the exactly-one-of invariant.
func (d Data) Validate() error {
	switch {
	case d.Data != nil && d.Error != "":
		return fmt.Errorf("outcome carries both a result and error %q", d.Error)
	case d.Data == nil && d.Error == "":
		return errors.New("outcome carries neither a result nor an error")
	case d.Error != "" && !d.Error.Valid():
		return fmt.Errorf("outcome carries unknown error kind %q", d.Error)
	case d.ConsumedTime < 0:
		return fmt.Errorf("negative consumed time %v", d.ConsumedTime)
	}
	return nil
}

// Percentage returns the "totalPercentage" entry of a successful
// outcome.
func (d Data) Percentage() (float64, bool) {
	value, ok := d.Data[TotalPercentageKey]
	if !ok {
		return 0, false
	}
	return asFloat(value)
}

// TotalPercentageKey is the result entry every processor reports.
const TotalPercentageKey = "totalPercentage"

// asFloat converts the numeric types a CBOR or JSON decoder produces
// for an untyped value.
func asFloat(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint64:
		return float64(number), true
	}
	return 0, false
}
