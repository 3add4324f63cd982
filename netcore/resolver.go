// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/netipx"
)

// LookupHost resolves a domain name to IP addresses using the
// resolver that the local network path would use.
//
// IP address literals are returned unchanged without a lookup.
func (nx *Network) LookupHost(ctx context.Context, domain string) ([]string, error) {
	return nx.maybeLookupHost(ctx, domain)
}

// maybeLookupEndpoint resolves the domain name inside an endpoint into
// a list of TCP/UDP endpoints. If the domain name is already an IP
// address, we short circuit the lookup.
func (nx *Network) maybeLookupEndpoint(ctx context.Context, endpoint string) ([]string, error) {
	domain, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return nil, err
	}

	addrs, err := nx.maybeLookupHost(ctx, domain)
	if err != nil {
		return nil, err
	}

	endpoints := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		endpoints = append(endpoints, net.JoinHostPort(addr, port))
	}
	return endpoints, nil
}

// maybeLookupHost resolves a domain name to IP addresses unless the domain
// is already an IP address, in which case we short circuit the lookup.
func (nx *Network) maybeLookupHost(ctx context.Context, domain string) ([]string, error) {
	if addr, ok := netipx.ParseLiteral(domain); ok {
		return []string{addr.String()}, nil
	}

	ctx, cancel := withOptionalTimeout(ctx, nx.LookupHostTimeout)
	defer cancel()

	t0 := nx.emitLookupHostStart(ctx, domain)
	addrs, err := nx.doLookupHost(ctx, domain)
	nx.emitLookupHostDone(ctx, domain, t0, addrs, err)
	return addrs, err
}

// doLookupHost performs the DNS lookup.
func (nx *Network) doLookupHost(ctx context.Context, domain string) ([]string, error) {
	if nx.LookupHostFunc != nil {
		return nx.LookupHostFunc(ctx, domain)
	}
	reso := &net.Resolver{}
	return reso.LookupHost(ctx, domain)
}

// emitLookupHostStart emits a structured event before the lookup.
func (nx *Network) emitLookupHostStart(ctx context.Context, domain string) time.Time {
	t0 := nx.timeNow()
	nx.logInfo(
		ctx,
		"lookupHostStart",
		slog.String("domain", domain),
		slog.Time("t", t0),
	)
	return t0
}

// emitLookupHostDone emits a structured event after the lookup.
func (nx *Network) emitLookupHostDone(ctx context.Context,
	domain string, t0 time.Time, addrs []string, err error) {
	nx.logInfo(
		ctx,
		"lookupHostDone",
		slog.String("domain", domain),
		slog.Any("addrs", addrs),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.Time("t0", t0),
		slog.Time("t", nx.timeNow()),
	)
}
