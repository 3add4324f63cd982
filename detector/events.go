// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"time"

	"github.com/rbmk-project/censordetect/model"
)

// EventType is the type of an [*Event].
type EventType string

const (
	// EventListenerRan is emitted for every failure reaching a listener.
	EventListenerRan = EventType("checksListenerRan")

	// EventHostProbation is emitted when a failure is ignored because
	// its host is in probation or the request came from the detector.
	EventHostProbation = EventType("hostProbation")

	// EventChecksStarted is emitted when the checks for a host start.
	EventChecksStarted = EventType("checksStarted")

	// EventCheckStarted is emitted when a check starts.
	EventCheckStarted = EventType("checkStart")

	// EventCheckSucceeded is emitted when a check detects censorship.
	EventCheckSucceeded = EventType("checkSuccess")

	// EventCheckFailed is emitted when a check does not detect
	// censorship or fails to run.
	EventCheckFailed = EventType("checkFail")

	// EventChecksEnded is emitted once all the checks have settled.
	EventChecksEnded = EventType("checksEnded")
)

// Event describes the detector progress.
type Event struct {
	// Type is the event type.
	Type EventType

	// Kind is the kind of the triggering failure.
	Kind model.EventKind

	// Host is the host of the triggering failure.
	Host string

	// URL is the URL of the triggering failure.
	URL string

	// RequestID is the platform identifier of the failed request.
	RequestID string

	// ChecksCount is the number of applicable checks, set
	// for [EventChecksStarted].
	ChecksCount int

	// Check is the check the event refers to, set for
	// [EventCheckStarted], [EventCheckSucceeded], and [EventCheckFailed].
	Check *Meta

	// Successes contains the checks that detected censorship, in
	// completion order, set for [EventChecksEnded].
	Successes []Meta

	// Err is the error that caused [EventCheckFailed], if any.
	Err error

	// Time is when the event was emitted.
	Time time.Time
}

// Observer receives detector events. Events are delivered from
// multiple goroutines, so implementations must be goroutine safe.
type Observer interface {
	OnEvent(ev *Event)
}

// ObserverFunc adapts a func to [Observer].
type ObserverFunc func(ev *Event)

var _ Observer = ObserverFunc(nil)

// OnEvent implements [Observer].
func (fx ObserverFunc) OnEvent(ev *Event) {
	fx(ev)
}
