// SPDX-License-Identifier: GPL-3.0-or-later

package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/model"
)

// errOracleFailed indicates that the oracle reported an error.
var errOracleFailed = errors.New("the oracle could not evaluate the URL")

// IsLocallyUp returns whether URL is reachable from the local network
// path. A HEAD request ending with a connection failure means the URL
// is down. Any other outcome, including HTTP errors and TLS failures,
// means the URL is up.
func IsLocallyUp(ctx context.Context, sess *detector.Session, URL string) bool {
	res := sess.Fetcher.Fetch(ctx, URL, &fetcher.Options{
		Method:         http.MethodHead,
		Timeout:        sess.Config.FetchTimeout,
		CaptureDetails: true,
	})
	return !errclass.IsConnectionFailure(res.ErrClass())
}

// IsIPLocallyUp returns whether we can reach the given address on
// port 443. Either completing or failing the TLS handshake means the
// address is up. Only running out of time means it is down.
func IsIPLocallyUp(ctx context.Context, sess *detector.Session, addr string) bool {
	timeout := sess.Config.SocketTimeout
	if timeout <= 0 {
		timeout = detector.DefaultSocketTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := sess.Config.Platform.OpenSecureSocket(ctx, addr)
	return ctx.Err() == nil && errclass.New(err) != errclass.ETIMEDOUT
}

// IsUp asks the reachability oracle whether URL is up from its vantage
// point. When host is not empty, the oracle sends it as the Host header.
func IsUp(ctx context.Context, sess *detector.Session, URL, host string) (bool, error) {
	reqURL, err := oracleURL(sess.Config.OracleURL, URL, host)
	if err != nil {
		return false, &model.OracleError{URL: URL, Err: err}
	}
	res := sess.Fetcher.Fetch(ctx, reqURL, &fetcher.Options{Timeout: sess.Config.FetchTimeout})
	if res.Error {
		return false, &model.OracleError{URL: URL, Err: res.Err}
	}
	if res.Response.StatusCode != http.StatusOK {
		return false, &model.OracleError{
			URL: URL,
			Err: fmt.Errorf("unexpected status code: %d", res.Response.StatusCode),
		}
	}
	var msg model.OracleResponse
	if err := json.Unmarshal(res.Response.Body, &msg); err != nil {
		return false, &model.OracleError{URL: URL, Err: err}
	}
	if msg.Error {
		return false, &model.OracleError{URL: URL, Err: errOracleFailed}
	}
	return msg.Up, nil
}

// oracleURL builds the URL of an oracle query.
func oracleURL(endpoint, URL, host string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("url", URL)
	if host != "" {
		query.Set("host", host)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// withScheme returns URL using the given scheme.
func withScheme(URL, scheme string) string {
	parsed, err := url.Parse(URL)
	if err != nil {
		return URL
	}
	parsed.Scheme = scheme
	return parsed.String()
}

// inconclusive returns the error reporting that the reference URL
// is not locally up.
func inconclusive(sess *detector.Session) error {
	return fmt.Errorf("%w: %s is locally down", model.ErrInconclusiveBaseline, sess.ReferenceURL())
}
