// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"bytes"
	"context"
	"net/http"
)

// Request is a probe request sent through the [Platform].
type Request struct {
	// URL is the request URL.
	URL string

	// Method is the request method (e.g., "HEAD").
	Method string

	// Header contains the headers visible to the platform before
	// the pre-send hooks run.
	Header http.Header

	// Origin identifies who issued the request.
	Origin string
}

// Response is the response to a [Request].
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Header contains the response headers.
	Header http.Header

	// Body contains the whole response body.
	Body []byte
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       bytes.Clone(r.Body),
	}
}

// SendHeadersEvent is passed to pre-send hooks. Hooks may modify
// the Header field in place to change what goes on the wire.
type SendHeadersEvent struct {
	// RequestID is the identifier the platform assigned to the request.
	RequestID string

	// URL is the request URL.
	URL string

	// Header contains the headers about to be sent.
	Header http.Header
}

// OutcomeEvent describes how a request ended.
type OutcomeEvent struct {
	// RequestID is the identifier the platform assigned to the request.
	RequestID string

	// URL is the request URL.
	URL string

	// IP is the IP address the request was sent to, if known.
	IP string

	// StatusCode is the HTTP status code, zero on failure.
	StatusCode int

	// Error is the low-level error code, empty on success.
	Error string
}

// Hook is a callback registered with the [Platform]. Each hook
// receives the events whose URL is among the URLs it was registered with.
type Hook[T any] func(ev *T)

// Platform issues probe requests and lets the detector observe and
// modify them as they happen.
type Platform interface {
	// Send sends the request and returns the response. The context
	// bounds the whole operation including reading the body.
	Send(ctx context.Context, req *Request) (*Response, error)

	// OnBeforeSendHeaders registers a hook invoked before the request
	// headers for one of the given URLs are sent. It returns a
	// function to unregister the hook.
	OnBeforeSendHeaders(urls []string, hook Hook[SendHeadersEvent]) func()

	// OnCompleted registers a hook invoked when a request for one of
	// the given URLs completes. It returns a function to unregister it.
	OnCompleted(urls []string, hook Hook[OutcomeEvent]) func()

	// OnErrorOccurred registers a hook invoked when a request for one
	// of the given URLs fails. It returns a function to unregister it.
	OnErrorOccurred(urls []string, hook Hook[OutcomeEvent]) func()

	// OpenSecureSocket attempts to open a TLS connection to the given
	// host, which may be an IP address, on port 443.
	OpenSecureSocket(ctx context.Context, host string) error
}
