// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package detector implements the censorship detection engine.

A [*Detector] receives request failures observed by the platform. For
each failure whose host is not in probation, it creates a [*Session]
and runs every applicable check [*Descriptor] concurrently through the
session [*Checker], which memoizes check results so that checks may
depend on each other without repeating network traffic.

The detector reports its progress as a stream of [*Event] delivered
to the subscribed [Observer] instances:

	checksListenerRan -> hostProbation
	checksListenerRan -> checksStarted -> checkStart... -> checkSuccess|checkFail... -> checksEnded

Checks never retry. A failed probe is evidence, not a fault.
*/
package detector
