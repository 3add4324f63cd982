// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"time"
)

// Network allows dialing TCP/UDP/TLS connections and resolving
// domain names while emitting structured logs.
//
// The zero value is ready to use.
//
// A [*Network] is safe for concurrent use by multiple goroutines as long as
// you don't modify its fields after construction and the functions you
// may set (e.g., DialContextFunc) are also safe.
type Network struct {
	// DialContextFunc is the optional dialer for creating new
	// TCP and UDP connections. If this field is nil, we use a
	// [*net.Dialer] with Multipath TCP disabled.
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

	// DialContextTimeout is the optional timeout to use for limiting
	// the maximum time spent creating a single connection.
	DialContextTimeout time.Duration

	// Logger is the optional structured logger for emitting
	// structured diagnostic events. If this field is nil, we
	// will not be emitting structured logs.
	Logger *slog.Logger

	// LookupHostFunc is the optional function to resolve a domain
	// name to IP addresses. If this field is nil, we use the
	// default [*net.Resolver] from the [net] package.
	LookupHostFunc func(ctx context.Context, domain string) ([]string, error)

	// LookupHostTimeout is the optional timeout to use for limiting
	// the maximum time spent resolving a domain name.
	LookupHostTimeout time.Duration

	// RootCAs contains the optional [*x509.CertPool] used when
	// creating TLS connections. If it is not set, we use the system's
	// root CAs. This field is only used when the TLSConfig field is nil.
	RootCAs *x509.CertPool

	// TLSConfig is the TLS client config to use. If this field is nil, we
	// create a suitable config based on the network and address
	// that are passed to the DialTLSContext method.
	TLSConfig *tls.Config

	// TLSEngine is the optional [TLSEngine] to use for creating a new
	// instance of [TLSConn]. If this field is nil, we use [TLSEngineStdlib].
	TLSEngine TLSEngine

	// TimeNow is an optional function that returns the current time.
	// If this field is nil, the [time.Now] function will be used.
	TimeNow func() time.Time

	// WrapConn is an optional function to wrap a connection to emit
	// structured logs. [WrapConn] is the default wrapper to use.
	WrapConn func(ctx context.Context, netx *Network, conn net.Conn) net.Conn
}

// NewNetwork returns a [*Network] that wraps connections using [WrapConn]
// and bounds lookups and dials with reasonable timeouts.
func NewNetwork() *Network {
	return &Network{
		DialContextTimeout: 15 * time.Second,
		LookupHostTimeout:  6 * time.Second,
		WrapConn:           WrapConn,
	}
}

// timeNow is a function that returns the current time.
func (nx *Network) timeNow() time.Time {
	if nx.TimeNow != nil {
		return nx.TimeNow()
	}
	return time.Now()
}

// logInfo emits an info-level structured event when there is a logger.
func (nx *Network) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	if nx.Logger != nil {
		nx.Logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
	}
}

// withOptionalTimeout returns a context bounded by timeout when positive.
func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
