// SPDX-License-Identifier: GPL-3.0-or-later

// Package doh implements a DNS-over-HTTPS resolver on top of the
// correlation layer, using the GET method and the DNS wire format
// described in RFC 8484.
package doh

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netipx"
)

// MediaType is the DNS wire format media type.
const MediaType = "application/dns-message"

// DefaultTimeout is the default timeout of a DoH query.
const DefaultTimeout = 5 * time.Second

// DefaultServer is the server used when none is specified.
const DefaultServer = "https://cloudflare-dns.com/dns-query"

// DefaultServers contains the public resolvers queried independently
// when comparing answers across vantage points.
var DefaultServers = []string{
	"https://dns9.quad9.net/dns-query",
	"https://cloudflare-dns.com/dns-query",
	"https://dns.google/dns-query",
}

// Answer is a DNS answer.
type Answer struct {
	// Type is the record type (e.g., "A").
	Type string

	// Data is an IP address for A and AAAA records and
	// a domain name, without the trailing dot, for PTR records.
	Data string
}

// Options contains options for [*Resolver.Resolve].
type Options struct {
	// Server is the optional server URL. If empty, we use [DefaultServer].
	Server string

	// Type is the optional query type. If empty, we use "A".
	Type string

	// Timeout is the optional timeout. If zero, we use [DefaultTimeout].
	Timeout time.Duration
}

// Fetcher is the correlation layer used by [*Resolver].
type Fetcher interface {
	Fetch(ctx context.Context, URL string, opts *fetcher.Options) *fetcher.Result
}

// Resolver is a DoH resolver. Identical queries performed through the
// same [Fetcher] are sent only once.
//
// Construct using [New].
type Resolver struct {
	// Fetcher is the correlation layer to use.
	Fetcher Fetcher

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time
}

// New creates a new [*Resolver] using the given [Fetcher].
func New(fx Fetcher) *Resolver {
	return &Resolver{Fetcher: fx}
}

// Resolve resolves host and returns the answers of the requested type
// in the order in which the server returned them.
//
// When host is an IP address and the type is A or AAAA, we return the
// address itself without querying. For PTR queries, an IP address is
// converted to its reverse name. An empty result means the name does
// not exist or has no records of the requested type.
func (r *Resolver) Resolve(ctx context.Context, host string, opts *Options) ([]Answer, error) {
	if opts == nil {
		opts = &Options{}
	}
	server, qtypeName, timeout := opts.Server, opts.Type, opts.Timeout
	if server == "" {
		server = DefaultServer
	}
	if qtypeName == "" {
		qtypeName = "A"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	qtype, found := dns.StringToType[strings.ToUpper(qtypeName)]
	if !found {
		return nil, &model.ConfigurationError{Value: qtypeName, Reason: "unknown DNS query type"}
	}

	name := dns.Fqdn(host)
	if addr, ok := netipx.ParseLiteral(host); ok {
		switch qtype {
		case dns.TypeA, dns.TypeAAAA:
			return []Answer{{Type: dns.TypeToString[qtype], Data: addr.String()}}, nil
		case dns.TypePTR:
			reverse, err := dns.ReverseAddr(addr.String())
			if err != nil {
				return nil, &model.ConfigurationError{Value: host, Reason: err.Error()}
			}
			name = reverse
		}
	}

	t0 := r.emitQueryStart(ctx, server, name, qtype)
	answers, err := r.query(ctx, server, name, qtype, timeout)
	r.emitQueryDone(ctx, server, name, qtype, t0, answers, err)
	return answers, err
}

// query sends the query and parses the response.
func (r *Resolver) query(ctx context.Context,
	server, name string, qtype uint16, timeout time.Duration) ([]Answer, error) {
	URL, err := NewQueryURL(server, name, qtype)
	if err != nil {
		return nil, &model.ResolverError{Server: server, Err: err}
	}

	res := r.Fetcher.Fetch(ctx, URL, &fetcher.Options{
		Header: http.Header{
			"Accept":       {MediaType},
			"Content-Type": {MediaType},
		},
		Timeout: timeout,
	})
	switch {
	case res.TimedOut:
		return nil, &model.ResolverTimeoutError{Server: server}
	case res.Error:
		return nil, &model.ResolverError{Server: server, Err: res.Err}
	case res.Response.StatusCode != http.StatusOK:
		return nil, &model.ResolverError{
			Server: server,
			Err:    fmt.Errorf("unexpected HTTP status %d", res.Response.StatusCode),
		}
	}

	resp := &dns.Msg{}
	if err := resp.Unpack(res.Response.Body); err != nil {
		return nil, &model.ResolverError{Server: server, Err: err}
	}
	return parseAnswers(resp, qtype), nil
}

// NewQueryURL returns the URL to query the server for name and qtype.
//
// The query ID is zero, which makes responses cacheable by HTTP caches.
func NewQueryURL(server, name string, qtype uint16) (string, error) {
	query := &dns.Msg{}
	query.SetQuestion(dns.Fqdn(name), qtype)
	query.Id = 0
	query.RecursionDesired = true
	rawQuery, err := query.Pack()
	if err != nil {
		return "", err
	}

	URL, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	values := URL.Query()
	values.Set("dns", base64.RawURLEncoding.EncodeToString(rawQuery))
	URL.RawQuery = values.Encode()
	return URL.String(), nil
}

// parseAnswers returns the answers of the given type.
func parseAnswers(resp *dns.Msg, qtype uint16) []Answer {
	answers := []Answer{}
	if resp.Rcode == dns.RcodeNameError {
		return answers
	}
	for _, rr := range resp.Answer {
		header := rr.Header()
		if header.Rrtype != qtype {
			continue
		}
		answers = append(answers, Answer{
			Type: dns.TypeToString[header.Rrtype],
			Data: answerData(rr),
		})
	}
	return answers
}

// answerData returns the data of a resource record.
func answerData(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.PTR:
		return strings.TrimSuffix(v.Ptr, ".")
	case *dns.CNAME:
		return strings.TrimSuffix(v.Target, ".")
	default:
		return strings.TrimPrefix(rr.String(), rr.Header().String())
	}
}

func (r *Resolver) timeNow() time.Time {
	if r.TimeNow != nil {
		return r.TimeNow()
	}
	return time.Now()
}

// emitQueryStart emits a structured event before querying.
func (r *Resolver) emitQueryStart(ctx context.Context, server, name string, qtype uint16) time.Time {
	t0 := r.timeNow()
	if r.Logger != nil {
		r.Logger.InfoContext(
			ctx,
			"dohQueryStart",
			slog.String("dnsQueryName", name),
			slog.String("dnsQueryType", dns.TypeToString[qtype]),
			slog.String("serverURL", server),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitQueryDone emits a structured event after querying.
func (r *Resolver) emitQueryDone(ctx context.Context, server, name string,
	qtype uint16, t0 time.Time, answers []Answer, err error) {
	if r.Logger != nil {
		data := make([]string, 0, len(answers))
		for _, ans := range answers {
			data = append(data, ans.Data)
		}
		r.Logger.InfoContext(
			ctx,
			"dohQueryDone",
			slog.Any("dnsAnswers", data),
			slog.String("dnsQueryName", name),
			slog.String("dnsQueryType", dns.TypeToString[qtype]),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("serverURL", server),
			slog.Time("t0", t0),
			slog.Time("t", r.timeNow()),
		)
	}
}
