// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xgt

import "errors"

// Sentinel errors for rejected frames. Decoder errors wrap one of these and
// can be tested with errors.Is.
var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrFieldOutOfRange  = errors.New("field out of range")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// AnomalyType classifies why a frame was rejected
type AnomalyType int

const (
	AnomalyMalformed AnomalyType = iota
	AnomalyChecksum
	AnomalyOutOfRange
)

// String returns the anomaly name used in logs and statistics
func (a AnomalyType) String() string {
	switch a {
	case AnomalyMalformed:
		return "malformed"
	case AnomalyChecksum:
		return "checksum"
	case AnomalyOutOfRange:
		return "out_of_range"
	default:
		return "unknown"
	}
}

// ValidationError represents a frame rejection
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Unwrap returns the sentinel matching the anomaly type
func (v *ValidationError) Unwrap() error {
	switch v.Type {
	case AnomalyChecksum:
		return ErrChecksumMismatch
	case AnomalyOutOfRange:
		return ErrFieldOutOfRange
	default:
		return ErrMalformedFrame
	}
}

// Anomaly returns the anomaly type of a decoder error. ok is false for
// errors that did not come from the decoder.
func Anomaly(err error) (AnomalyType, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Type, true
	}
	return 0, false
}

func outOfRange(message string, details map[string]interface{}) *ValidationError {
	return &ValidationError{Type: AnomalyOutOfRange, Message: message, Details: details}
}

func malformed(message string, details map[string]interface{}) *ValidationError {
	return &ValidationError{Type: AnomalyMalformed, Message: message, Details: details}
}
