// SPDX-License-Identifier: GPL-3.0-or-later

package checks

import (
	"context"
	"net/http"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/fetcher"
	"github.com/rbmk-project/censordetect/model"
	"golang.org/x/sync/errgroup"
)

// HTTP detects Host header filtering: a plain HTTP request to an
// always-up server fails when it carries the target name.
var HTTP = &detector.Descriptor{
	Meta: detector.Meta{
		Name: "HTTP Filtering",
		Description: "You're communicating to the website using only HTTP, which sends data " +
			"in plaintext. As such, a censor on your network is detecting the website name " +
			"and is blocking the HTTP request. To access the site, use the HTTPS protocol " +
			"or connect to a VPN.",
		LearnMore: "https://ooni.org/support/glossary/#http-blocking",
	},
	Probes: map[model.EventKind]detector.ProbeFunc{
		model.EventErrorOccurred: probeHTTP,
	},
}

func probeHTTP(ctx context.Context, sess *detector.Session) (bool, error) {
	var (
		baselineUp bool
		group      errgroup.Group
		targetUp   bool
	)
	group.Go(func() error {
		targetUp = IsLocallyUp(ctx, sess, withScheme(sess.Event.URL, "http"))
		return nil
	})
	group.Go(func() error {
		baselineUp = IsLocallyUp(ctx, sess, sess.ReferenceURL())
		return nil
	})
	group.Wait()

	switch {
	case targetUp:
		return false, nil
	case !baselineUp:
		return false, inconclusive(sess)
	}

	probe := sess.Fetcher.Fetch(ctx, sess.ReferenceURL(), &fetcher.Options{
		Method:         http.MethodHead,
		Header:         http.Header{"Host": {sess.Host()}},
		Timeout:        sess.Config.FetchTimeout,
		CaptureDetails: true,
	})
	return errclass.IsConnectionFailure(probe.ErrClass()), nil
}
