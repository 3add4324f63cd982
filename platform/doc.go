// SPDX-License-Identifier: GPL-3.0-or-later

// Package platform implements [model.Platform] and [model.FailureSource]
// on top of [net/http] and [netcore].
//
// Every request sent through a [*Client] receives a numeric identifier,
// passes through the registered pre-send hooks, and ends by invoking
// either the completed or the error hooks. Failures are also posted to
// the subscribers of [*Client.OnConnectionFailure].
package platform
