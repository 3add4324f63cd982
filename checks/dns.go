// SPDX-License-Identifier: GPL-3.0-or-later

package checks

import (
	"context"
	"strings"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/doh"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netipx"
	"golang.org/x/sync/errgroup"
)

// DNS detects DNS tampering by comparing the address the local path
// resolves the target to with the answers of the configured resolvers.
// Two addresses are considered consistent when they are equal or
// their PTR records match.
var DNS = &detector.Descriptor{
	Meta: detector.Meta{
		Name: "DNS Filtering",
		Description: "A censor on your network is answering the DNS queries for this website " +
			"with an address different from the one returned by trusted resolvers. " +
			"To access the site, use an encrypted DNS resolver or connect to a VPN.",
		LearnMore: "https://github.com/ooni/spec/blob/master/nettests/ts-002-dns-consistency.md",
	},
	Probes: map[model.EventKind]detector.ProbeFunc{
		model.EventErrorOccurred: probeDNS,
	},
}

func probeDNS(ctx context.Context, sess *detector.Session) (bool, error) {
	var (
		group    errgroup.Group
		targetUp bool
	)
	group.Go(func() error {
		targetUp = IsLocallyUp(ctx, sess, sess.Event.URL)
		return nil
	})

	localIP := sess.Event.IP
	if localIP == "" {
		addr, err := sess.LocalResolver.ResolveLocally(ctx, sess.Host(), sess.Config.LocalResolveTimeout)
		if err != nil {
			group.Wait()
			return false, err
		}
		localIP = addr
	}

	var (
		control  []doh.Answer
		localPTR string
	)
	if localIP != "" {
		group.Go(func() error {
			ptr, err := resolvePTR(ctx, sess, localIP, "")
			localPTR = ptr
			return err
		})
	}
	group.Go(func() (err error) {
		control, err = sess.DoH.Resolve(ctx, sess.Host(), &doh.Options{Timeout: sess.Config.DNSTimeout})
		return
	})
	err := group.Wait()

	switch {
	case targetUp:
		return false, nil
	case err != nil:
		return false, err
	case len(control) <= 0 && localIP == "":
		return false, nil // NXDOMAIN for everyone
	}

	for _, server := range sess.Config.Resolvers {
		for _, answer := range control {
			if answer.Data == "" {
				continue
			}
			if netipx.SameAddr(answer.Data, localIP) {
				return false, nil
			}
			controlPTR, err := resolvePTR(ctx, sess, answer.Data, server)
			if err != nil {
				return false, err
			}
			if localIP != "" && strings.EqualFold(controlPTR, localPTR) {
				return false, nil
			}
		}
	}
	return true, nil
}

// resolvePTR returns the first PTR record of addr or an empty string.
func resolvePTR(ctx context.Context, sess *detector.Session, addr, server string) (string, error) {
	answers, err := sess.DoH.Resolve(ctx, addr, &doh.Options{
		Server:  server,
		Type:    "PTR",
		Timeout: sess.Config.DNSTimeout,
	})
	if err != nil || len(answers) <= 0 {
		return "", err
	}
	return answers[0].Data, nil
}
