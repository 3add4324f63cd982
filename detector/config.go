// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/localresolver"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/probation"
)

// DefaultReferenceURL is the always-up address used as the
// baseline of the checks sending plain HTTP requests.
const DefaultReferenceURL = "http://foobar.com/"

// DefaultOracleURL is the default reachability oracle endpoint.
const DefaultOracleURL = "http://127.0.0.1:8338/api/isup"

// DefaultSelfOrigin is the default origin of the detector requests.
const DefaultSelfOrigin = "censordetect"

// DefaultSocketTimeout is the default timeout of raw secure sockets.
const DefaultSocketTimeout = 10 * time.Second

// Config contains the detector configuration.
type Config struct {
	// Platform sends probe requests. It must be set.
	Platform model.Platform

	// LocalResolver resolves names on the local network path.
	LocalResolver localresolver.Resolver

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// SelfOrigin identifies the requests sent by the detector, so
	// that their failures do not trigger further detection.
	SelfOrigin string

	// Resolvers contains the DoH servers compared by the DNS check.
	Resolvers []string

	// ReferenceURL is the always-up baseline address.
	ReferenceURL string

	// OracleURL is the reachability oracle endpoint.
	OracleURL string

	// FetchTimeout is the timeout of probe requests.
	FetchTimeout time.Duration

	// DNSTimeout is the timeout of DoH queries.
	DNSTimeout time.Duration

	// LocalResolveTimeout is the timeout of local resolutions.
	LocalResolveTimeout time.Duration

	// SocketTimeout is the timeout of raw secure socket probes.
	SocketTimeout time.Duration

	// ProbationTTL is how long a probed host stays in probation.
	ProbationTTL time.Duration

	// ProbationCapacity bounds the number of hosts in probation.
	ProbationCapacity int

	// Kinds contains the event kinds to listen to.
	Kinds []model.EventKind

	// Filter optionally selects the URLs to listen to.
	Filter model.URLFilter

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time
}

// DefaultConfig returns the default configuration using the operating
// system resolver. The caller must set the Platform field.
func DefaultConfig() *Config {
	return &Config{
		LocalResolver:       &localresolver.System{},
		SelfOrigin:          DefaultSelfOrigin,
		Resolvers:           append([]string{}, doh.DefaultServers...),
		ReferenceURL:        DefaultReferenceURL,
		OracleURL:           DefaultOracleURL,
		FetchTimeout:        fetcher.DefaultTimeout,
		DNSTimeout:          doh.DefaultTimeout,
		LocalResolveTimeout: localresolver.DefaultTimeout,
		SocketTimeout:       DefaultSocketTimeout,
		ProbationTTL:        probation.DefaultTTL,
		ProbationCapacity:   probation.DefaultCapacity,
		Kinds:               []model.EventKind{model.EventErrorOccurred},
	}
}

func (c *Config) timeNow() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}
