// SPDX-License-Identifier: GPL-3.0-or-later

// Package localresolver discovers which address a name resolves to
// on the local network path, as opposed to the answers of a trusted
// external resolver.
//
// [*System] asks the operating system resolver. [*Stub] talks directly
// to the configured DNS server and returns the first answer it sees,
// including answers injected on path.
package localresolver

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/censordetect/model"
	"github.com/rbmk-project/censordetect/netipx"
	"golang.org/x/net/idna"
)

// DefaultTimeout is the default resolution timeout.
const DefaultTimeout = 6 * time.Second

// Resolver resolves names using the local network path.
type Resolver interface {
	// ResolveLocally returns the address host resolves to or an
	// empty string on failure, when the name does not exist, or
	// when the timeout expires. It returns an error only when host
	// is not a valid name, in which case the error is a
	// [*model.ConfigurationError].
	ResolveLocally(ctx context.Context, host string, timeout time.Duration) (string, error)
}

// Func adapts a function to the [Resolver] interface.
type Func func(ctx context.Context, host string, timeout time.Duration) (string, error)

// Ensure that [Func] implements [Resolver].
var _ Resolver = Func(nil)

// ResolveLocally implements [Resolver].
func (fx Func) ResolveLocally(ctx context.Context, host string, timeout time.Duration) (string, error) {
	return fx(ctx, host, timeout)
}

// ValidateHost checks whether host is an IP address or a valid domain
// name and returns its canonical form: the unmapped address for IP
// addresses and the ASCII form for internationalized names.
func ValidateHost(host string) (string, error) {
	if addr, ok := netipx.ParseLiteral(host); ok {
		return addr.String(), nil
	}
	if host == "" || strings.ContainsAny(host, "\"'\\`$; \t\r\n") {
		return "", &model.ConfigurationError{Value: host, Reason: "host contains forbidden characters"}
	}
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", &model.ConfigurationError{Value: host, Reason: err.Error()}
	}
	if _, ok := dns.IsDomainName(ascii); !ok {
		return "", &model.ConfigurationError{Value: host, Reason: "not a valid domain name"}
	}
	return ascii, nil
}

// withTimeout bounds ctx using timeout or [DefaultTimeout].
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
