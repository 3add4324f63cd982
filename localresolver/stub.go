// SPDX-License-Identifier: GPL-3.0-or-later

package localresolver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/dnscore"
)

// DefaultConfigFile is the default resolver configuration file.
const DefaultConfigFile = "/etc/resolv.conf"

// Stub is a [Resolver] sending A queries over UDP to the locally
// configured DNS server and returning the first answer received.
//
// Because it does not wait for later responses, Stub returns the
// answer a stub resolver on this network path would use, including
// answers injected by a middlebox racing the real server.
//
// The zero value is ready to use.
type Stub struct {
	// ConfigFile is the optional resolv.conf-like file listing the
	// servers to use. If empty, we use [DefaultConfigFile].
	ConfigFile string

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Servers optionally overrides the servers to use, as
	// "address:port" endpoints. Only the first one is queried.
	Servers []string

	// Transport is the optional [*dnscore.Transport] to use.
	Transport *dnscore.Transport

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time
}

// Ensure that [*Stub] implements [Resolver].
var _ Resolver = &Stub{}

// ResolveLocally implements [Resolver].
func (s *Stub) ResolveLocally(ctx context.Context, host string, timeout time.Duration) (string, error) {
	name, err := ValidateHost(host)
	if err != nil {
		return "", err
	}
	if net.ParseIP(name) != nil {
		return name, nil
	}

	servers, err := s.servers()
	if err != nil || len(servers) <= 0 {
		return "", nil
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	t0 := s.emitResolveStart(ctx, servers[0], name)
	addr, err := s.query(ctx, servers[0], name)
	s.emitResolveDone(ctx, servers[0], name, t0, addr, err)
	return addr, nil
}

// query sends the query and returns the first A record of the
// first response, stopping as soon as a response arrives.
func (s *Stub) query(ctx context.Context, server, name string) (string, error) {
	query, err := dnscore.NewQuery(dns.Fqdn(name), dns.TypeA)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverAddr := dnscore.NewServerAddr(dnscore.ProtocolUDP, server)
	results := s.transport().QueryWithDuplicates(ctx, serverAddr, query)

	var (
		addr string
		done bool
	)
	for result := range results {
		if done {
			continue // drain until the transport closes the channel
		}
		if result.Err != nil {
			err = result.Err
			continue
		}
		addr, err, done = firstA(result.Msg), nil, true
		cancel()
	}
	if !done && err == nil {
		err = ctx.Err()
	}
	return addr, err
}

// firstA returns the first A record inside the response.
func firstA(resp *dns.Msg) string {
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A.String()
		}
	}
	return ""
}

// servers returns the servers to query.
func (s *Stub) servers() ([]string, error) {
	if len(s.Servers) > 0 {
		return s.Servers, nil
	}
	filename := s.ConfigFile
	if filename == "" {
		filename = DefaultConfigFile
	}
	config, err := dns.ClientConfigFromFile(filename)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, server := range config.Servers {
		out = append(out, net.JoinHostPort(server, config.Port))
	}
	return out, nil
}

func (s *Stub) transport() *dnscore.Transport {
	if s.Transport != nil {
		return s.Transport
	}
	return &dnscore.Transport{}
}

func (s *Stub) timeNow() time.Time {
	if s.TimeNow != nil {
		return s.TimeNow()
	}
	return time.Now()
}

// emitResolveStart emits a structured event before resolving.
func (s *Stub) emitResolveStart(ctx context.Context, server, name string) time.Time {
	t0 := s.timeNow()
	if s.Logger != nil {
		s.Logger.InfoContext(
			ctx,
			"resolveLocallyStart",
			slog.String("dnsQueryName", name),
			slog.String("serverAddr", server),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitResolveDone emits a structured event after resolving.
func (s *Stub) emitResolveDone(ctx context.Context,
	server, name string, t0 time.Time, addr string, err error) {
	if s.Logger != nil {
		s.Logger.InfoContext(
			ctx,
			"resolveLocallyDone",
			slog.String("addr", addr),
			slog.String("dnsQueryName", name),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("serverAddr", server),
			slog.Time("t0", t0),
			slog.Time("t", s.timeNow()),
		)
	}
}
