// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netcore provides the logged TCP/TLS dialer and the system
resolver used by the censorship detector when it talks to the network.

Every network operation emits paired structured events via the
[log/slog] package ("connectStart"/"connectDone", "lookupHostStart"/
"lookupHostDone", "tlsHandshakeStart"/"tlsHandshakeDone") so that a
probe session can be reconstructed from the logs alone.

# Features

- TCP/UDP dialer compatible with the [*net.Dialer];

- TLS dialer compatible with the [*tls.Dialer];

- system resolver with an optional timeout.
*/
package netcore
