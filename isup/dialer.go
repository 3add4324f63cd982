// SPDX-License-Identifier: GPL-3.0-or-later

package isup

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/rbmk-project/censordetect/netipx"
)

// ErrForbiddenAddress indicates an attempt to connect to a
// non-public address.
var ErrForbiddenAddress = errors.New("isup: forbidden address")

// NewDialer returns a [*net.Dialer] refusing to connect to non-public
// addresses. The check runs after name resolution, so names resolving
// to loopback or private addresses are refused as well.
func NewDialer() *net.Dialer {
	dialer := &net.Dialer{Control: controlPublic}
	dialer.SetMultipathTCP(false)
	return dialer
}

// controlPublic is a [net.Dialer] Control func refusing non-public addresses.
func controlPublic(network, address string, _ syscall.RawConn) error {
	endpoint, err := netip.ParseAddrPort(address)
	if err != nil {
		return err
	}
	if !netipx.IsPublic(endpoint.Addr()) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, address)
	}
	return nil
}
