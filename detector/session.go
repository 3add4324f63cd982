// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/rbmk-project/censordetect/closepool"
	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/localresolver"
	"github.com/rbmk-project/censordetect/model"
)

// Session is the state shared by the checks run for a failure event.
//
// The fetcher and DoH resolver caches live as long as the session, so
// checks issuing identical requests share a single network exchange.
//
// Construct using [NewSession].
type Session struct {
	// Checker runs and memoizes the session checks.
	Checker *Checker

	// Config is the detector configuration.
	Config *Config

	// DoH is the session DoH resolver.
	DoH *doh.Resolver

	// Event is the failure event that triggered the session.
	Event model.FailureEvent

	// Fetcher is the session correlation layer.
	Fetcher *fetcher.Fetcher

	// LocalResolver is the shared local resolver.
	LocalResolver localresolver.Resolver

	cancel       context.CancelFunc
	ctx          context.Context
	pool         closepool.Pool
	referenceURL string
}

// NewSession creates a new [*Session] for the given event.
func NewSession(cfg *Config, ev model.FailureEvent) *Session {
	fx := fetcher.New(cfg.Platform, cfg.SelfOrigin)
	fx.Logger = cfg.Logger
	fx.TimeNow = cfg.TimeNow

	dnsReso := doh.New(fx)
	dnsReso.Logger = cfg.Logger
	dnsReso.TimeNow = cfg.TimeNow

	localReso := cfg.LocalResolver
	if localReso == nil {
		localReso = &localresolver.System{Logger: cfg.Logger}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		Config:        cfg,
		DoH:           dnsReso,
		Event:         ev,
		Fetcher:       fx,
		LocalResolver: localReso,
		cancel:        cancel,
		ctx:           ctx,
	}
	sess.Checker = &Checker{sess: sess}
	sess.referenceURL = cacheBusted(cfg.ReferenceURL, cfg.timeNow().UnixMilli())
	sess.pool.AddFunc(cancel)
	return sess
}

// cacheBusted adds a cache-busting query parameter to the URL.
func cacheBusted(URL string, value int64) string {
	parsed, err := url.Parse(URL)
	if err != nil {
		return URL
	}
	query := parsed.Query()
	query.Set("v", strconv.FormatInt(value, 10))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Context returns the session context, which is canceled by Close.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Host returns the host of the event URL.
func (s *Session) Host() string {
	return s.Event.Host()
}

// Kind returns the kind of the event.
func (s *Session) Kind() model.EventKind {
	return s.Event.Kind
}

// ReferenceURL returns the cache-busted reference URL. The value is
// computed once per session so that all checks share its probes.
func (s *Session) ReferenceURL() string {
	return s.referenceURL
}

// AddCloser registers a resource to release when the session is closed.
func (s *Session) AddCloser(closer io.Closer) {
	s.pool.Add(closer)
}

// Close releases the session resources.
func (s *Session) Close() error {
	return s.pool.Close()
}
