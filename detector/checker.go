// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/memo"
	"github.com/rbmk-project/censordetect/model"
)

// checkKey identifies a check execution within a session.
type checkKey struct {
	name string
	kind model.EventKind
}

// outcome is the outcome of a check execution.
type outcome struct {
	detected bool
	err      error
}

// Checker runs checks within a [*Session] and memoizes their
// outcome by check name and event kind.
type Checker struct {
	executions memo.Memo[checkKey, outcome]
	sess       *Session
}

// Check runs the check for the given kind, or returns the outcome of
// the execution already started for the same check and kind unless
// bypass is true. Concurrent callers share the same execution.
//
// The check runs on the session context, so a caller abandoning the
// wait via ctx does not affect the other callers.
func (c *Checker) Check(ctx context.Context, d *Descriptor, kind model.EventKind, bypass bool) (bool, error) {
	probe, found := d.Probes[kind]
	if !found {
		return false, fmt.Errorf("check %q does not apply to %q", d.Name, kind)
	}
	fut, _ := c.executions.Do(checkKey{name: d.Name, kind: kind}, bypass, func() outcome {
		return c.run(probe, d, kind)
	})
	out, err := fut.Wait(ctx)
	if err != nil {
		return false, err
	}
	return out.detected, out.err
}

// run runs the probe emitting structured logs.
func (c *Checker) run(probe ProbeFunc, d *Descriptor, kind model.EventKind) outcome {
	ctx := c.sess.Context()
	logger := c.sess.Config.Logger
	t0 := c.sess.Config.timeNow()
	if logger != nil {
		logger.InfoContext(
			ctx,
			"checkStart",
			slog.String("checkName", d.Name),
			slog.String("eventKind", string(kind)),
			slog.String("host", c.sess.Host()),
			slog.Time("t", t0),
		)
	}

	detected, err := probe(ctx, c.sess)

	if logger != nil {
		logger.InfoContext(
			ctx,
			"checkDone",
			slog.String("checkName", d.Name),
			slog.Bool("detected", detected),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("eventKind", string(kind)),
			slog.String("host", c.sess.Host()),
			slog.Time("t0", t0),
			slog.Time("t", c.sess.Config.timeNow()),
		)
	}
	return outcome{detected: detected, err: err}
}
