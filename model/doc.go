// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package model contains the types shared by the censorship detector
packages and the interfaces through which the detector reaches the
platform it runs on.

The platform surfaces failures via [FailureSource] and issues probe
requests via [Platform]. Package platform contains a Go-native
implementation of both, but any runtime that can observe request
failures and rewrite outgoing headers could implement them.
*/
package model
