// SPDX-License-Identifier: GPL-3.0-or-later

// Package checks contains the censorship detection techniques.
//
// Each check compares what the local network path observes with what
// objective vantage points observe: DoH resolvers for names and the
// reachability oracle for addresses. Use [Default] to obtain all of them.
package checks

import "github.com/rbmk-project/censordetect/detector"

// Default returns the checks in their canonical order.
func Default() []*detector.Descriptor {
	return []*detector.Descriptor{IP, DNS, HTTP, HTTPS}
}
