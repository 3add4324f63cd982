// SPDX-License-Identifier: GPL-3.0-or-later

package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netcore"
	"github.com/rbmk-project/censordetect/netipx"
)

// DefaultMaxBodySize is the default maximum response body size.
const DefaultMaxBodySize = 1 << 20

// errBodyTooLarge indicates that the response body is too large.
var errBodyTooLarge = errors.New("response body too large")

// Client implements [model.Platform] and [model.FailureSource].
//
// The zero value is ready to use.
type Client struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// MaxBodySize is the optional maximum response body size. If
	// zero, we use [DefaultMaxBodySize].
	MaxBodySize int64

	// Network is the optional [*netcore.Network] used for dialing. If
	// nil, we use a [*netcore.Network] logging to Logger.
	Network *netcore.Network

	// SecureSocketPort is the optional port used by OpenSecureSocket.
	// If empty, we use "443".
	SecureSocketPort string

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time

	// Transport is the optional [http.RoundTripper]. If nil, we use
	// an [*http.Transport] dialing through Network.
	Transport http.RoundTripper

	completed hookRegistry[model.OutcomeEvent]
	errored   hookRegistry[model.OutcomeEvent]
	failures  failureStream
	nextID    atomic.Int64
	once      sync.Once
	preSend   hookRegistry[model.SendHeadersEvent]
	transport http.RoundTripper
}

// Ensure that [*Client] implements the platform interfaces.
var (
	_ model.Platform      = &Client{}
	_ model.FailureSource = &Client{}
)

// OnBeforeSendHeaders implements [model.Platform].
func (c *Client) OnBeforeSendHeaders(urls []string, hook model.Hook[model.SendHeadersEvent]) func() {
	return c.preSend.add(urls, hook)
}

// OnCompleted implements [model.Platform].
func (c *Client) OnCompleted(urls []string, hook model.Hook[model.OutcomeEvent]) func() {
	return c.completed.add(urls, hook)
}

// OnErrorOccurred implements [model.Platform].
func (c *Client) OnErrorOccurred(urls []string, hook model.Hook[model.OutcomeEvent]) func() {
	return c.errored.add(urls, hook)
}

// OnConnectionFailure implements [model.FailureSource].
func (c *Client) OnConnectionFailure(kinds []model.EventKind, filter model.URLFilter) (<-chan model.FailureEvent, func()) {
	return c.failures.subscribe(kinds, filter)
}

// HookCount returns the number of registered hooks.
func (c *Client) HookCount() int {
	return c.preSend.len() + c.completed.len() + c.errored.len()
}

// Close closes the idle connections of the default transport.
func (c *Client) Close() error {
	if closer, ok := c.roundTripper().(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	return nil
}

// Send implements [model.Platform].
func (c *Client) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	requestID := strconv.FormatInt(c.nextID.Add(1), 10)

	ev := &model.SendHeadersEvent{
		RequestID: requestID,
		URL:       req.URL,
		Header:    req.Header.Clone(),
	}
	if ev.Header == nil {
		ev.Header = http.Header{}
	}
	c.preSend.fire(req.URL, ev)

	var remoteAddr atomic.Value
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if addr := netipx.AddrToAddrPort(info.Conn.RemoteAddr()).Addr(); !addr.IsUnspecified() {
				remoteAddr.Store(addr.Unmap().String())
			}
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	t0 := c.emitSendStart(ctx, requestID, req)
	resp, err := c.roundTrip(ctx, req, ev.Header)
	outcome := &model.OutcomeEvent{
		RequestID: requestID,
		URL:       req.URL,
	}
	if value, ok := remoteAddr.Load().(string); ok {
		outcome.IP = value
	}
	if err != nil {
		outcome.Error = errclass.New(err)
	} else {
		outcome.StatusCode = resp.StatusCode
	}
	c.emitSendDone(ctx, req, t0, outcome, err)
	c.dispatch(req, outcome)
	return resp, err
}

// roundTrip sends the request using the given headers and reads the body.
func (c *Client) roundTrip(ctx context.Context, req *model.Request, header http.Header) (*model.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header = header.Clone()
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}

	httpResp, err := (&http.Client{Transport: c.roundTripper()}).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	limit := c.maxBodySize()
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return &model.Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// dispatch invokes the outcome hooks and publishes the outcome to
// the subscribers interested in its kind.
func (c *Client) dispatch(req *model.Request, outcome *model.OutcomeEvent) {
	kind := model.EventCompleted
	if outcome.Error != "" {
		kind = model.EventErrorOccurred
		c.errored.fire(req.URL, outcome)
	} else {
		c.completed.fire(req.URL, outcome)
	}
	dropped := c.failures.publish(model.FailureEvent{
		Kind:      kind,
		URL:       req.URL,
		RequestID: outcome.RequestID,
		IP:        outcome.IP,
		Error:     outcome.Error,
		Origin:    req.Origin,
		Time:      c.timeNow(),
	})
	if dropped > 0 && c.Logger != nil {
		c.Logger.Warn("failureDropped", slog.String("httpUrl", req.URL), slog.Int("count", dropped))
	}
}

// OpenSecureSocket implements [model.Platform].
func (c *Client) OpenSecureSocket(ctx context.Context, host string) error {
	port := c.SecureSocketPort
	if port == "" {
		port = "443"
	}
	conn, err := c.network().DialTLSContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) network() *netcore.Network {
	if c.Network != nil {
		return c.Network
	}
	return &netcore.Network{Logger: c.Logger, WrapConn: netcore.WrapConn}
}

func (c *Client) roundTripper() http.RoundTripper {
	c.once.Do(func() {
		if c.Transport != nil {
			c.transport = c.Transport
			return
		}
		netx := c.network()
		c.transport = &http.Transport{
			DialContext:           netx.DialContext,
			DialTLSContext:        netx.DialTLSContext,
			ForceAttemptHTTP2:     true,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			ResponseHeaderTimeout: 15 * time.Second,
		}
	})
	return c.transport
}

func (c *Client) maxBodySize() int64 {
	if c.MaxBodySize > 0 {
		return c.MaxBodySize
	}
	return DefaultMaxBodySize
}

func (c *Client) timeNow() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

func (c *Client) emitSendStart(ctx context.Context, requestID string, req *model.Request) time.Time {
	t0 := c.timeNow()
	if c.Logger != nil {
		c.Logger.InfoContext(
			ctx,
			"httpRoundTripStart",
			slog.String("httpMethod", req.Method),
			slog.String("httpUrl", req.URL),
			slog.String("origin", req.Origin),
			slog.String("requestId", requestID),
			slog.Time("t", t0),
		)
	}
	return t0
}

func (c *Client) emitSendDone(ctx context.Context,
	req *model.Request, t0 time.Time, outcome *model.OutcomeEvent, err error) {
	if c.Logger != nil {
		c.Logger.InfoContext(
			ctx,
			"httpRoundTripDone",
			slog.Any("err", err),
			slog.String("errClass", outcome.Error),
			slog.String("httpMethod", req.Method),
			slog.Int("httpResponseStatusCode", outcome.StatusCode),
			slog.String("httpUrl", req.URL),
			slog.String("remoteAddr", outcome.IP),
			slog.String("requestId", outcome.RequestID),
			slog.Time("t0", t0),
			slog.Time("t", c.timeNow()),
		)
	}
}
