// SPDX-License-Identifier: GPL-3.0-or-later

// Package isup implements the reachability oracle HTTP API.
//
// The oracle answers `GET /api/isup?url=<url>[&host=<host>]` with a
// [model.OracleResponse] telling whether it could fetch url, sending
// host as the Host header when present. Clients run the oracle from
// an uncensored vantage point and compare its answers with what
// they observe locally.
package isup

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/localresolver"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netipx"
	"github.com/rbmk-project/common/runtimex"
)

// Path is the path where the oracle is served.
const Path = "/api/isup"

// DefaultTimeout is the default timeout of each probe.
const DefaultTimeout = 10 * time.Second

// Origin identifies the requests sent by the oracle.
const Origin = "isupd"

// Handler is an [http.Handler] implementing the oracle API.
//
// By default, targets whose host is a loopback, private, link-local or
// unspecified address literal are rejected. Pair the handler with a
// platform dialing through [NewDialer] to also reject names resolving
// to such addresses.
//
// Construct using [NewHandler].
type Handler struct {
	// AllowPrivate allows probing non-public addresses.
	AllowPrivate bool

	// Indexer assigns an index to requests.
	Indexer *atomic.Int64

	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Metrics contains the optional metrics to update.
	Metrics *Metrics

	// Platform sends the probe requests.
	Platform model.Platform

	// Timeout is the optional probe timeout. If zero, we
	// use [DefaultTimeout].
	Timeout time.Duration
}

var _ http.Handler = &Handler{}

// NewHandler constructs a [*Handler] probing through the given platform.
func NewHandler(platform model.Platform) *Handler {
	return &Handler{
		Indexer:  &atomic.Int64{},
		Platform: platform,
	}
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.Metrics.inflight(1)
	defer h.Metrics.inflight(-1)

	if req.Method != http.MethodGet {
		h.Metrics.request(http.StatusMethodNotAllowed, "bad_request_method")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	target, host, reason := parseQuery(req.URL.Query(), h.AllowPrivate)
	if reason != "" {
		h.Metrics.request(http.StatusBadRequest, reason)
		writeJSON(w, http.StatusBadRequest, &model.OracleResponse{Error: true})
		return
	}

	started := time.Now()
	up := h.probe(req.Context(), target, host)
	h.Metrics.duration(time.Since(started))

	h.Metrics.request(http.StatusOK, "ok")
	writeJSON(w, http.StatusOK, &model.OracleResponse{Up: up})
}

// parseQuery validates the query and returns the URL to probe, the
// optional Host header, and the reason why the query is invalid.
func parseQuery(values url.Values, allowPrivate bool) (target, host, reason string) {
	target = values.Get("url")
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", "", "invalid_url"
	}
	if addr, ok := netipx.ParseLiteral(parsed.Hostname()); ok && !allowPrivate && !netipx.IsPublic(addr) {
		return "", "", "forbidden_address"
	}
	if host = values.Get("host"); host != "" {
		if _, err := localresolver.ValidateHost(host); err != nil {
			return "", "", "invalid_host"
		}
	}
	return target, host, ""
}

// probe returns whether the target is up. Receiving any HTTP response
// means the target is up, regardless of its status code.
func (h *Handler) probe(ctx context.Context, target, host string) bool {
	index := h.Indexer.Add(1)
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	header := http.Header{}
	if host != "" {
		header.Set("Host", host)
	}
	_, err := h.Platform.Send(ctx, &model.Request{
		URL:    target,
		Method: http.MethodHead,
		Header: header,
		Origin: Origin,
	})

	if h.Logger != nil {
		h.Logger.InfoContext(
			ctx,
			"isupProbeDone",
			slog.Int64("index", index),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("host", host),
			slog.String("httpUrl", target),
			slog.Bool("up", err == nil),
		)
	}
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, msg *model.OracleResponse) {
	// an OracleResponse always marshals
	data := runtimex.Try1(json.Marshal(msg))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
