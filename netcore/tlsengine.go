// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/tls.go
//

package netcore

import (
	"context"
	"crypto/tls"
	"net"
)

// TLSConn is the interface implementing [*tls.Conn] as well as
// the conn exported by alternative TLS libraries.
type TLSConn interface {
	ConnectionState() tls.ConnectionState
	HandshakeContext(ctx context.Context) error
	net.Conn
}

// TLSEngine provides methods to create and describe [TLSConn] instances.
type TLSEngine interface {
	// Name returns the TLS engine name (e.g., "stdlib").
	Name() string

	// NewClientConn creates a new [TLSConn] instance.
	NewClientConn(conn net.Conn, config *tls.Config) TLSConn
}

// tlsEngine returns the [TLSEngine] to use.
func (nx *Network) tlsEngine() TLSEngine {
	if nx.TLSEngine != nil {
		return nx.TLSEngine
	}
	return TLSEngineStdlib{}
}

// TLSEngineStdlib is a [TLSEngine] using the Go standard library.
type TLSEngineStdlib struct{}

// Ensure that [TLSEngineStdlib] implements [TLSEngine].
var _ TLSEngine = TLSEngineStdlib{}

// Name implements [TLSEngine] and returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// NewClientConn implements [TLSEngine] and uses the standard
// library [tls.Client] function to create a [TLSConn].
func (TLSEngineStdlib) NewClientConn(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}
