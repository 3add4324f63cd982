// SPDX-License-Identifier: GPL-3.0-or-later

package checks

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/model"
	"golang.org/x/sync/errgroup"
)

// HTTPS detects SNI filtering: the target is up over HTTPS according
// to the oracle and down locally, while neither IP nor DNS filtering
// explain the failure.
var HTTPS = &detector.Descriptor{
	Meta: detector.Meta{
		Name: "HTTPS Filtering",
		Description: "A censor on your network is reading the website name from the " +
			"unencrypted part of the HTTPS handshake and is interrupting the connection. " +
			"To access the site, connect to a VPN or use a browser supporting encrypted " +
			"client hello.",
		LearnMore: "https://ooni.org/support/glossary/#sni-blocking",
	},
	Probes: map[model.EventKind]detector.ProbeFunc{
		model.EventErrorOccurred: probeHTTPS,
	},
}

func probeHTTPS(ctx context.Context, sess *detector.Session) (bool, error) {
	URL := withScheme(sess.Event.URL, "https")
	var (
		dnsDetected bool
		group       errgroup.Group
		ipDetected  bool
		locallyUp   bool
		remoteUp    bool
	)
	group.Go(func() error {
		locallyUp = IsLocallyUp(ctx, sess, URL)
		return nil
	})
	group.Go(func() (err error) {
		remoteUp, err = IsUp(ctx, sess, URL, "")
		return
	})
	group.Go(func() (err error) {
		ipDetected, err = dependency(sess.Checker.Check(ctx, IP, sess.Kind(), false))
		return
	})
	group.Go(func() (err error) {
		dnsDetected, err = dependency(sess.Checker.Check(ctx, DNS, sess.Kind(), false))
		return
	})
	if err := group.Wait(); err != nil {
		return false, err
	}
	if !remoteUp || ipDetected || dnsDetected {
		return false, nil
	}
	return !locallyUp, nil
}

// dependency filters the outcome of a check we depend on. An
// inconclusive check did not detect anything.
func dependency(detected bool, err error) (bool, error) {
	if err != nil && !errors.Is(err, model.ErrInconclusiveBaseline) {
		return false, fmt.Errorf("dependent check failed: %w", err)
	}
	return detected, nil
}
