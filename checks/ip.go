// SPDX-License-Identifier: GPL-3.0-or-later

package checks

import (
	"context"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/model"
	"golang.org/x/sync/errgroup"
)

// IP detects IP/TCP blocking: the target is down locally, while one of
// its addresses is up according to the oracle and unreachable locally.
var IP = &detector.Descriptor{
	Meta: detector.Meta{
		Name: "IP/TCP Filtering",
		Description: "A censor on your network is dropping or resetting the connections " +
			"to the addresses of this website, which are reachable from elsewhere. " +
			"Changing the website name does not help. To access the site, connect to a VPN.",
		LearnMore: "https://ooni.org/support/glossary/#ip-blocking",
	},
	Probes: map[model.EventKind]detector.ProbeFunc{
		model.EventErrorOccurred: probeIP,
	},
}

func probeIP(ctx context.Context, sess *detector.Session) (bool, error) {
	var (
		answers    []doh.Answer
		baselineUp bool
		group      errgroup.Group
		targetUp   bool
	)
	group.Go(func() error {
		targetUp = IsLocallyUp(ctx, sess, sess.Event.URL)
		return nil
	})
	group.Go(func() error {
		baselineUp = IsLocallyUp(ctx, sess, sess.ReferenceURL())
		return nil
	})
	group.Go(func() (err error) {
		answers, err = sess.DoH.Resolve(ctx, sess.Host(), &doh.Options{Timeout: sess.Config.DNSTimeout})
		return
	})
	err := group.Wait()

	switch {
	case targetUp:
		return false, nil
	case !baselineUp:
		return false, inconclusive(sess)
	case err != nil:
		return false, err
	}

	for _, answer := range answers {
		if answer.Data == "" {
			continue
		}
		var (
			ipUp     bool
			oracle   errgroup.Group
			remoteUp bool
		)
		oracle.Go(func() (err error) {
			remoteUp, err = IsUp(ctx, sess, "http://"+answer.Data, sess.Host())
			return
		})
		oracle.Go(func() error {
			ipUp = IsIPLocallyUp(ctx, sess, answer.Data)
			return nil
		})
		if err := oracle.Wait(); err != nil {
			return false, err
		}
		if remoteUp && !ipUp {
			return true, nil
		}
	}
	return false, nil
}
