// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates that a probe exceeded its deadline.
var ErrTimeout = errors.New("probe timed out")

// ErrInconclusiveBaseline indicates that the reference condition a
// check relies on does not hold, so the check cannot conclude anything.
var ErrInconclusiveBaseline = errors.New("inconclusive baseline")

// TransportError is a network or TLS failure of a probe request.
type TransportError struct {
	// URL is the request URL.
	URL string

	// Class is the errclass classification of Err.
	Class string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %s", e.URL, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResolverError indicates that a DoH query failed.
type ResolverError struct {
	// Server is the DoH server URL.
	Server string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *ResolverError) Error() string {
	return fmt.Sprintf("request to DoH server (%s) failed: %s", e.Server, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *ResolverError) Unwrap() error {
	return e.Err
}

// ResolverTimeoutError indicates that a DoH query timed out.
type ResolverTimeoutError struct {
	// Server is the DoH server URL.
	Server string
}

// Error implements error.
func (e *ResolverTimeoutError) Error() string {
	return fmt.Sprintf("request to DoH server (%s) timed out", e.Server)
}

// Unwrap returns [ErrTimeout].
func (e *ResolverTimeoutError) Unwrap() error {
	return ErrTimeout
}

// Timeout returns true.
func (e *ResolverTimeoutError) Timeout() bool {
	return true
}

// ConfigurationError indicates an invalid input, for example a host
// name that cannot be safely handed to a resolver.
type ConfigurationError struct {
	// Value is the offending value.
	Value string

	// Reason explains what is wrong with Value.
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Value, e.Reason)
}

// OracleError indicates that the reachability oracle failed or
// returned malformed data.
type OracleError struct {
	// URL is the URL we asked the oracle about.
	URL string

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *OracleError) Error() string {
	return fmt.Sprintf("isUp check failed for %s: %s", e.URL, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *OracleError) Unwrap() error {
	return e.Err
}
