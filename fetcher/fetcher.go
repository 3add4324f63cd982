// SPDX-License-Identifier: GPL-3.0-or-later

// Package fetcher implements the correlation layer through which the
// detector issues probe requests.
//
// A [*Fetcher] deduplicates identical requests and, when asked to,
// correlates each request with the low-level outcome the platform
// observed for it, using a single-use token carried in the
// [CorrelationHeader] request header.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/memo"
	"github.com/rbmk-project/censordetect/model"
)

// CorrelationHeader is the header carrying the correlation token.
const CorrelationHeader = "X-Censorship-Detector"

// DefaultTimeout is the default timeout of a probe request.
const DefaultTimeout = 10 * time.Second

// Options contains options for [*Fetcher.Fetch].
type Options struct {
	// Method is the optional request method. If empty, we use "GET".
	Method string

	// Header contains the optional headers to send, including
	// headers such as "Host" that would otherwise be rewritten.
	Header http.Header

	// Timeout is the optional timeout. If zero, we use [DefaultTimeout].
	Timeout time.Duration

	// CaptureDetails requests capturing the low-level outcome.
	CaptureDetails bool

	// BypassCache forces sending a new request.
	BypassCache bool
}

func (opts *Options) method() string {
	if opts.Method != "" {
		return opts.Method
	}
	return http.MethodGet
}

func (opts *Options) timeout() time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return DefaultTimeout
}

// cacheKey returns the key identifying identical requests.
func cacheKey(URL string, opts *Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n%d\n%t\n", URL, opts.method(), opts.timeout(), opts.CaptureDetails)
	for _, key := range slices.Sorted(maps.Keys(opts.Header)) {
		fmt.Fprintf(&sb, "%s: %s\n", http.CanonicalHeaderKey(key), strings.Join(opts.Header[key], ", "))
	}
	return sb.String()
}

// Fetcher is the correlation layer.
//
// Construct using [New].
type Fetcher struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// NewToken is the optional function generating correlation
	// tokens. If nil, we use random UUIDs.
	NewToken func() string

	// Origin identifies the requests we send.
	Origin string

	// Platform is the platform sending requests.
	Platform model.Platform

	// TimeNow is the optional function returning the current time.
	TimeNow func() time.Time

	// results caches pending-or-completed results.
	results memo.Memo[string, *Result]
}

// New creates a new [*Fetcher] sending requests via the given platform
// and stamping them with the given origin.
func New(platform model.Platform, origin string) *Fetcher {
	return &Fetcher{Origin: origin, Platform: platform}
}

// Fetch fetches the given URL.
//
// Identical requests share the same result unless opts.BypassCache
// is set. Each call receives its own copy of the result. The request
// itself only obeys the timeout and continues even if ctx is canceled,
// in which case Fetch returns early with a failed result.
func (f *Fetcher) Fetch(ctx context.Context, URL string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}
	fut, _ := f.results.Do(cacheKey(URL, opts), opts.BypassCache, func() *Result {
		return f.fetch(context.WithoutCancel(ctx), URL, opts)
	})
	res, err := fut.Wait(ctx)
	if err != nil {
		return &Result{
			Error:    true,
			TimedOut: errors.Is(err, context.DeadlineExceeded),
			Err:      err,
		}
	}
	return res.Clone()
}

// correlation tracks the request identifier assigned by the platform.
type correlation struct {
	mu        sync.Mutex
	requestID string
}

func (c *correlation) set(requestID string) {
	c.mu.Lock()
	c.requestID = requestID
	c.mu.Unlock()
}

func (c *correlation) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// fetch sends the request and possibly captures its outcome.
func (f *Fetcher) fetch(ctx context.Context, URL string, opts *Options) *Result {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	req := &model.Request{
		URL:    URL,
		Method: opts.method(),
		Header: http.Header{},
		Origin: f.Origin,
	}
	targets := []string{URL, URL + "/"}
	corr := &correlation{}

	var unregisterPreSend func()
	if opts.CaptureDetails || len(opts.Header) > 0 {
		token := f.newToken()
		req.Header.Set(CorrelationHeader, token)
		header := opts.Header.Clone()
		unregisterPreSend = f.Platform.OnBeforeSendHeaders(targets, func(ev *model.SendHeadersEvent) {
			if ev.Header.Get(CorrelationHeader) != token {
				return
			}
			ev.Header.Del(CorrelationHeader)
			for key, values := range header {
				ev.Header[http.CanonicalHeaderKey(key)] = slices.Clone(values)
			}
			corr.set(ev.RequestID)
		})
	}

	var (
		outcomes             chan *model.OutcomeEvent
		unregisterOutcomeFns []func()
	)
	if opts.CaptureDetails {
		outcomes = make(chan *model.OutcomeEvent, 1)
		hook := func(ev *model.OutcomeEvent) {
			if id := corr.get(); id == "" || ev.RequestID != id {
				return
			}
			copied := *ev
			select {
			case outcomes <- &copied:
			default:
			}
		}
		unregisterOutcomeFns = append(unregisterOutcomeFns,
			f.Platform.OnCompleted(targets, hook),
			f.Platform.OnErrorOccurred(targets, hook),
		)
	}

	t0 := f.emitFetchStart(ctx, req)
	resp, err := f.Platform.Send(ctx, req)
	if unregisterPreSend != nil {
		unregisterPreSend()
	}

	res := &Result{RequestID: corr.get()}
	switch {
	case err != nil && ctx.Err() != nil:
		res.Error, res.TimedOut = true, true
		res.Err = fmt.Errorf("%w: %s %s", model.ErrTimeout, req.Method, URL)
	case err != nil:
		res.Error = true
		res.Err = &model.TransportError{URL: URL, Class: errclass.New(err), Err: err}
	default:
		res.Response = resp
	}

	if opts.CaptureDetails {
		res.Details = awaitOutcome(ctx, res.RequestID, outcomes)
		for _, unregister := range unregisterOutcomeFns {
			unregister()
		}
	}

	f.emitFetchDone(ctx, req, t0, res)
	return res
}

// awaitOutcome waits for the outcome of the request with the given
// identifier until the context is done. We do not wait at all when
// the platform did not assign an identifier.
func awaitOutcome(ctx context.Context, requestID string, outcomes <-chan *model.OutcomeEvent) *model.OutcomeEvent {
	if requestID == "" {
		return nil
	}
	select {
	case ev := <-outcomes:
		return ev
	default:
	}
	select {
	case ev := <-outcomes:
		return ev
	case <-ctx.Done():
		return nil
	}
}

func (f *Fetcher) newToken() string {
	if f.NewToken != nil {
		return f.NewToken()
	}
	return uuid.NewString()
}

func (f *Fetcher) timeNow() time.Time {
	if f.TimeNow != nil {
		return f.TimeNow()
	}
	return time.Now()
}

// emitFetchStart emits a structured event before sending.
func (f *Fetcher) emitFetchStart(ctx context.Context, req *model.Request) time.Time {
	t0 := f.timeNow()
	if f.Logger != nil {
		f.Logger.InfoContext(
			ctx,
			"fetchStart",
			slog.String("httpMethod", req.Method),
			slog.String("httpUrl", req.URL),
			slog.Bool("correlated", req.Header.Get(CorrelationHeader) != ""),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitFetchDone emits a structured event after the outcome is known.
func (f *Fetcher) emitFetchDone(ctx context.Context, req *model.Request, t0 time.Time, res *Result) {
	if f.Logger != nil {
		var statusCode int
		if res.Response != nil {
			statusCode = res.Response.StatusCode
		}
		f.Logger.InfoContext(
			ctx,
			"fetchDone",
			slog.Any("err", res.Err),
			slog.String("errClass", res.ErrClass()),
			slog.String("httpMethod", req.Method),
			slog.String("httpUrl", req.URL),
			slog.Int("httpResponseStatusCode", statusCode),
			slog.String("requestId", res.RequestID),
			slog.Bool("timedOut", res.TimedOut),
			slog.Time("t0", t0),
			slog.Time("t", f.timeNow()),
		)
	}
}
