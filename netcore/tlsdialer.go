// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package netcore

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
)

// DialTLSContext establishes a new TLS connection.
func (nx *Network) DialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	config, err := nx.tlsConfig(network, address)
	if err != nil {
		return nil, err
	}

	endpoints, err := nx.maybeLookupEndpoint(ctx, address)
	if err != nil {
		return nil, err
	}

	td := &tlsDialer{config: config, engine: nx.tlsEngine(), netx: nx}
	return nx.sequentialDial(ctx, network, td.dial, endpoints...)
}

// tlsDialer dials a single endpoint and performs the TLS handshake.
type tlsDialer struct {
	config *tls.Config
	engine TLSEngine
	netx   *Network
}

func (td *tlsDialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := td.netx.dialLog(ctx, network, address)
	if err != nil {
		return nil, err
	}

	tconn := td.engine.NewClientConn(conn, td.config)
	laddr := connLocalAddr(conn).String()

	t0 := td.emitTLSHandshakeStart(ctx, laddr, network, address)
	err = tconn.HandshakeContext(ctx)
	td.emitTLSHandshakeDone(ctx, laddr, network, address, t0, err, tconn.ConnectionState())

	if err != nil {
		conn.Close()
		return nil, err
	}
	return tconn, nil
}

// emitTLSHandshakeStart emits a TLS handshake start event.
func (td *tlsDialer) emitTLSHandshakeStart(ctx context.Context,
	localAddr, network, remoteAddr string) time.Time {
	t0 := td.netx.timeNow()
	td.netx.logInfo(
		ctx,
		"tlsHandshakeStart",
		slog.String("localAddr", localAddr),
		slog.String("protocol", network),
		slog.String("remoteAddr", remoteAddr),
		slog.Time("t", t0),
		slog.String("tlsEngineName", td.engine.Name()),
		slog.String("tlsServerName", td.config.ServerName),
		slog.Bool("tlsSkipVerify", td.config.InsecureSkipVerify),
	)
	return t0
}

// emitTLSHandshakeDone emits a TLS handshake done event.
func (td *tlsDialer) emitTLSHandshakeDone(ctx context.Context,
	localAddr, network, remoteAddr string,
	t0 time.Time, err error, state tls.ConnectionState) {
	td.netx.logInfo(
		ctx,
		"tlsHandshakeDone",
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.String("localAddr", localAddr),
		slog.String("protocol", network),
		slog.String("remoteAddr", remoteAddr),
		slog.Time("t0", t0),
		slog.Time("t", td.netx.timeNow()),
		slog.String("tlsCipherSuite", tls.CipherSuiteName(state.CipherSuite)),
		slog.String("tlsEngineName", td.engine.Name()),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.String("tlsServerName", td.config.ServerName),
		slog.Bool("tlsSkipVerify", td.config.InsecureSkipVerify),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)
}
