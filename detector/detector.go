// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/probation"
)

// Detector dispatches failure events to the checks.
//
// Construct using [New].
type Detector struct {
	checks    []*Descriptor
	config    *Config
	mu        sync.Mutex
	observers []Observer
	probation *probation.Table
	wg        sync.WaitGroup
}

// Option is an option for [New].
type Option func(d *Detector)

// WithObserver subscribes the given [Observer].
func WithObserver(obs Observer) Option {
	return func(d *Detector) {
		d.observers = append(d.observers, obs)
	}
}

// WithProbation uses the given probation table, which allows
// sharing probation across detectors.
func WithProbation(table *probation.Table) Option {
	return func(d *Detector) {
		d.probation = table
	}
}

// New creates a new [*Detector] running the given checks.
func New(cfg *Config, checks []*Descriptor, options ...Option) *Detector {
	d := &Detector{
		checks: checks,
		config: cfg,
	}
	for _, option := range options {
		option(d)
	}
	if d.probation == nil {
		d.probation = probation.New(cfg.ProbationCapacity, cfg.ProbationTTL)
		d.probation.TimeNow = cfg.TimeNow
	}
	return d
}

// Subscribe adds an [Observer] receiving the events emitted from now on.
func (d *Detector) Subscribe(obs Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, obs)
	d.mu.Unlock()
}

// Start subscribes to the failures of the configured kinds and
// dispatches them until ctx is done. Use [*Detector.Wait] to wait
// for the subscription and the pending checks to terminate.
func (d *Detector) Start(ctx context.Context, src model.FailureSource) {
	events, stop := src.OnConnectionFailure(d.config.Kinds, d.config.Filter)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-ctx.Done()
		stop()
	}()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range events {
			d.Listener(ev.Kind)(ev)
		}
	}()
}

// Wait blocks until the subscription started by [*Detector.Start]
// has stopped and all the started checks have settled.
func (d *Detector) Wait() {
	d.wg.Wait()
}

// Listener returns the function handling failures of the given kind.
//
// The returned function applies the probation gate synchronously and
// runs the checks in the background.
func (d *Detector) Listener(kind model.EventKind) func(ev model.FailureEvent) {
	return func(ev model.FailureEvent) {
		ev.Kind = kind
		d.handle(ev)
	}
}

func (d *Detector) handle(ev model.FailureEvent) {
	d.emit(d.newEvent(EventListenerRan, &ev))

	host := ev.Host()
	selfOrigin := d.config.SelfOrigin != "" && ev.Origin == d.config.SelfOrigin
	if host == "" || selfOrigin || !d.probation.TryAcquire(host) {
		d.emit(d.newEvent(EventHostProbation, &ev))
		return
	}

	var checks []*Descriptor
	for _, check := range d.checks {
		if check.AppliesTo(ev.Kind) {
			checks = append(checks, check)
		}
	}
	started := d.newEvent(EventChecksStarted, &ev)
	started.ChecksCount = len(checks)
	d.emit(started)

	sess := NewSession(d.config, ev)
	for _, check := range checks {
		checkStarted := d.newEvent(EventCheckStarted, &ev)
		checkStarted.Check = &check.Meta
		d.emit(checkStarted)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer sess.Close()
		d.run(sess, checks)
	}()
}

// run runs the checks concurrently and emits their outcome.
func (d *Detector) run(sess *Session, checks []*Descriptor) {
	ev := &sess.Event
	ctx := sess.Context()
	d.logInfo(ctx, "sessionStart", ev, slog.Int("checksCount", len(checks)))

	var (
		mu        sync.Mutex
		successes []Meta
		wg        sync.WaitGroup
	)
	for _, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detected, err := sess.Checker.Check(ctx, check, ev.Kind, false)
			if !detected {
				failed := d.newEvent(EventCheckFailed, ev)
				failed.Check = &check.Meta
				failed.Err = err
				d.emit(failed)
				return
			}
			mu.Lock()
			successes = append(successes, check.Meta)
			mu.Unlock()
			succeeded := d.newEvent(EventCheckSucceeded, ev)
			succeeded.Check = &check.Meta
			d.emit(succeeded)
		}()
	}
	wg.Wait()

	ended := d.newEvent(EventChecksEnded, ev)
	ended.Successes = successes
	d.emit(ended)

	names := make([]string, 0, len(successes))
	for _, meta := range successes {
		names = append(names, meta.Name)
	}
	d.logInfo(ctx, "sessionDone", ev, slog.Any("successes", names))
}

func (d *Detector) newEvent(etype EventType, ev *model.FailureEvent) *Event {
	return &Event{
		Type:      etype,
		Kind:      ev.Kind,
		Host:      ev.Host(),
		URL:       ev.URL,
		RequestID: ev.RequestID,
		Time:      d.config.timeNow(),
	}
}

// emit delivers the event to the observers outside the lock, so
// that observers may call [*Detector.Subscribe].
func (d *Detector) emit(ev *Event) {
	d.mu.Lock()
	observers := slices.Clone(d.observers)
	d.mu.Unlock()
	for _, obs := range observers {
		obs.OnEvent(ev)
	}
}

func (d *Detector) logInfo(ctx context.Context, msg string, ev *model.FailureEvent, attrs ...slog.Attr) {
	if d.config.Logger == nil {
		return
	}
	attrs = append(attrs,
		slog.String("eventKind", string(ev.Kind)),
		slog.String("host", ev.Host()),
		slog.String("requestId", ev.RequestID),
		slog.Time("t", d.config.timeNow()),
	)
	d.config.Logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}
