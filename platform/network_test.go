// SPDX-License-Identifier: GPL-3.0-or-later

package platform_test

import (
	"context"
	"net"

	"github.com/rbmk-project/censordetect/netcore"
)

// newBlockingNetwork returns a [*netcore.Network] whose dials block
// until the context is done.
func newBlockingNetwork() *netcore.Network {
	return &netcore.Network{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}
