// SPDX-License-Identifier: GPL-3.0-or-later

package checks_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/localresolver"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netcore"
	"github.com/rbmk-project/censordetect/platform"
	"github.com/rbmk-project/common/runtimex"
)

const (
	// oracleHost is the host name of the fake oracle.
	oracleHost = "oracle.test"

	// blockReset makes requests fail with a connection reset.
	blockReset = "reset"

	// blockTimeout makes requests hang until their deadline.
	blockTimeout = "timeout"
)

// sentRequest is a request observed by the [*world].
type sentRequest struct {
	URL  string
	Host string
}

// world simulates the network as seen from a censored vantage point.
//
// It is an [http.RoundTripper] serving DoH queries, oracle queries,
// and plain requests, and it provides the dialer used for the raw
// secure socket probes.
type world struct {
	// dnsQueries counts the DoH queries by server and question.
	dnsQueries map[string]int

	// hostBlocks blocks requests by Host header, which defaults
	// to the URL host name.
	hostBlocks map[string]string

	// localAnswer is the address the local resolver returns.
	localAnswer string

	// localQueries counts the local resolutions.
	localQueries int

	// mu protects the mutable fields.
	mu sync.Mutex

	// oracle maps "url|host" to whether the oracle sees it up.
	oracle map[string]bool

	// oracleFails makes the oracle report an error.
	oracleFails bool

	// requests contains the plain requests we observed.
	requests []sentRequest

	// socketsDown contains the addresses whose port 443 hangs.
	socketsDown map[string]bool

	// tcpBlocks blocks requests by URL host name.
	tcpBlocks map[string]string

	// zone maps "TYPE name." to the records the DoH servers return.
	zone map[string][]string
}

func newWorld() *world {
	return &world{
		dnsQueries:  map[string]int{},
		hostBlocks:  map[string]string{},
		oracle:      map[string]bool{},
		socketsDown: map[string]bool{},
		tcpBlocks:   map[string]string{},
		zone:        map[string][]string{},
	}
}

// addA adds A records for name.
func (w *world) addA(name string, addrs ...string) {
	w.zone["A "+dns.Fqdn(name)] = append(w.zone["A "+dns.Fqdn(name)], addrs...)
}

// addPTR adds a PTR record for addr.
func (w *world) addPTR(addr, name string) {
	reverse := runtimex.Try1(dns.ReverseAddr(addr))
	w.zone["PTR "+reverse] = append(w.zone["PTR "+reverse], dns.Fqdn(name))
}

// ptrQueries returns the number of PTR queries for addr sent to server.
func (w *world) ptrQueries(server, addr string) int {
	reverse := runtimex.Try1(dns.ReverseAddr(addr))
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dnsQueries[server+" PTR "+reverse]
}

// sent returns the plain requests observed so far.
func (w *world) sent() []sentRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sentRequest{}, w.requests...)
}

// RoundTrip implements [http.RoundTripper].
func (w *world) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Query().Has("dns") {
		return w.serveDNS(req)
	}
	if req.URL.Hostname() == oracleHost {
		return w.serveOracle(req)
	}

	host := req.Host
	if host == "" {
		host = req.URL.Hostname()
	}
	w.mu.Lock()
	w.requests = append(w.requests, sentRequest{URL: req.URL.String(), Host: host})
	block := w.tcpBlocks[req.URL.Hostname()]
	if block == "" {
		block = w.hostBlocks[host]
	}
	w.mu.Unlock()

	switch block {
	case blockReset:
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	case blockTimeout:
		<-req.Context().Done()
		return nil, req.Context().Err()
	default:
		return newResponse(req, http.StatusOK, "text/html", nil), nil
	}
}

func (w *world) serveDNS(req *http.Request) (*http.Response, error) {
	rawQuery, err := base64.RawURLEncoding.DecodeString(req.URL.Query().Get("dns"))
	if err != nil {
		return newResponse(req, http.StatusBadRequest, "text/plain", nil), nil
	}
	query := &dns.Msg{}
	if err := query.Unpack(rawQuery); err != nil || len(query.Question) != 1 {
		return newResponse(req, http.StatusBadRequest, "text/plain", nil), nil
	}
	question := query.Question[0]
	key := dns.TypeToString[question.Qtype] + " " + question.Name

	w.mu.Lock()
	w.dnsQueries[req.URL.Scheme+"://"+req.URL.Host+req.URL.Path+" "+key]++
	records := w.zone[key]
	w.mu.Unlock()

	resp := &dns.Msg{}
	resp.SetReply(query)
	if len(records) <= 0 {
		resp.Rcode = dns.RcodeNameError
	}
	for _, record := range records {
		rr := runtimex.Try1(dns.NewRR(fmt.Sprintf("%s 60 IN %s %s",
			question.Name, dns.TypeToString[question.Qtype], record)))
		resp.Answer = append(resp.Answer, rr)
	}
	return newResponse(req, http.StatusOK, doh.MediaType, runtimex.Try1(resp.Pack())), nil
}

func (w *world) serveOracle(req *http.Request) (*http.Response, error) {
	values := req.URL.Query()
	w.mu.Lock()
	msg := model.OracleResponse{
		Up:    w.oracle[values.Get("url")+"|"+values.Get("host")],
		Error: w.oracleFails,
	}
	w.mu.Unlock()
	return newResponse(req, http.StatusOK, "application/json", runtimex.Try1(json.Marshal(msg))), nil
}

// dialContext is the dialer of the raw secure socket probes.
func (w *world) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	addr, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	down := w.socketsDown[addr]
	w.mu.Unlock()
	if down {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
}

// resolveLocally implements [localresolver.Func].
func (w *world) resolveLocally(ctx context.Context, host string, timeout time.Duration) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.localQueries++
	return w.localAnswer, nil
}

func newResponse(req *http.Request, status int, ctype string, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {ctype}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// newSession creates a session for a failure of URL in the world.
func (w *world) newSession(t *testing.T, URL string) *detector.Session {
	client := &platform.Client{
		Network:   &netcore.Network{DialContextFunc: w.dialContext},
		Transport: w,
	}
	cfg := detector.DefaultConfig()
	cfg.Platform = client
	cfg.LocalResolver = localresolver.Func(w.resolveLocally)
	cfg.OracleURL = "https://" + oracleHost + "/api/isup"
	cfg.FetchTimeout = 250 * time.Millisecond
	cfg.DNSTimeout = 250 * time.Millisecond
	cfg.SocketTimeout = 100 * time.Millisecond
	sess := detector.NewSession(cfg, model.FailureEvent{
		Kind:      model.EventErrorOccurred,
		URL:       URL,
		RequestID: "1",
		Error:     "net::ERR_CONNECTION_RESET",
	})
	t.Cleanup(func() {
		sess.Close()
	})
	return sess
}
