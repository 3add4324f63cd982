// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"net/url"
	"time"
)

// EventKind is the kind of platform event that triggers detection.
type EventKind string

const (
	// EventErrorOccurred is emitted when a request fails.
	EventErrorOccurred = EventKind("onErrorOccurred")

	// EventCompleted is emitted when a request completes.
	EventCompleted = EventKind("onCompleted")
)

// FailureEvent is a platform notification that a request failed.
type FailureEvent struct {
	// Kind is the kind of event.
	Kind EventKind

	// URL is the URL of the failed request.
	URL string

	// RequestID is the platform identifier of the failed request.
	RequestID string

	// IP is the optional IP address the request was sent to.
	IP string

	// Error is the optional platform error code (e.g.,
	// "net::ERR_CONNECTION_RESET" or an errclass class).
	Error string

	// Origin identifies who issued the request.
	Origin string

	// Time is when the failure was observed.
	Time time.Time
}

// Host returns the hostname of the event URL, without port and
// brackets, or an empty string if the URL cannot be parsed.
func (ev *FailureEvent) Host() string {
	return HostOf(ev.URL)
}

// HostOf returns the hostname of the given URL, without port and
// brackets, or an empty string if the URL cannot be parsed.
func HostOf(URL string) string {
	parsed, err := url.Parse(URL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// URLFilter selects the URLs whose failures we care about. A nil
// URLFilter selects every URL.
type URLFilter func(URL string) bool

// Match returns whether the filter selects the given URL.
func (f URLFilter) Match(URL string) bool {
	return f == nil || f(URL)
}

// FailureSource surfaces request failures observed by the platform.
type FailureSource interface {
	// OnConnectionFailure returns a channel where the platform posts
	// the failures of the given kinds whose URL matches the filter, and
	// a function to stop receiving them. The channel is closed once the
	// stop function has been called.
	OnConnectionFailure(kinds []EventKind, filter URLFilter) (<-chan FailureEvent, func())
}
