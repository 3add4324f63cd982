// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"crypto/tls"
	"net"
)

// tlsConfig returns the TLS config to use for dialing the given address.
//
// A configured TLSConfig is cloned and used as is. Otherwise we create
// a config using the address host as SNI and an ALPN suitable for the
// network and the port.
func (nx *Network) tlsConfig(network, address string) (*tls.Config, error) {
	if nx.TLSConfig != nil {
		return nx.TLSConfig.Clone(), nil
	}
	config, err := newTLSConfig(network, address)
	if err != nil {
		return nil, err
	}
	config.RootCAs = nx.RootCAs
	return config, nil
}

// newTLSConfig is a best-effort attempt at creating a suitable TLS config
// for TCP and UDP transports using the network and address.
func newTLSConfig(network, address string) (*tls.Config, error) {
	sni, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	config := &tls.Config{
		NextProtos: []string{},
		ServerName: sni,
	}
	switch {
	case port == "443" && network == "tcp":
		config.NextProtos = []string{"h2", "http/1.1"}
	case port == "443" && network == "udp":
		config.NextProtos = []string{"h3"}
	case port == "853" && network == "tcp":
		config.NextProtos = []string{"dot"}
	}

	return config, nil
}
