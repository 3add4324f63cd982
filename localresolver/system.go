// SPDX-License-Identifier: GPL-3.0-or-later

package localresolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbmk-project/censordetect/netcore"
)

// System is a [Resolver] using the operating system resolver.
//
// The zero value is ready to use.
type System struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// Network is the optional [*netcore.Network] to use. If nil,
	// we use a [*netcore.Network] logging to Logger.
	Network *netcore.Network
}

// Ensure that [*System] implements [Resolver].
var _ Resolver = &System{}

// ResolveLocally implements [Resolver].
func (s *System) ResolveLocally(ctx context.Context, host string, timeout time.Duration) (string, error) {
	name, err := ValidateHost(host)
	if err != nil {
		return "", err
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	addrs, err := s.network().LookupHost(ctx, name)
	if err != nil || len(addrs) <= 0 {
		return "", nil
	}
	return addrs[0], nil
}

func (s *System) network() *netcore.Network {
	if s.Network != nil {
		return s.Network
	}
	return &netcore.Network{Logger: s.Logger}
}
