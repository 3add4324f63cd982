// SPDX-License-Identifier: GPL-3.0-or-later

package detector

import (
	"context"

	"github.com/rbmk-project/censordetect/model"
)

// Meta describes a detection technique to humans.
type Meta struct {
	// Name is the unique check name.
	Name string

	// Description explains what the technique means for the user.
	Description string

	// LearnMore is a link to further information.
	LearnMore string
}

// ProbeFunc runs a check in the given session. It returns true when
// the technique explains the failure. Expected failures such as a
// down baseline yield false, possibly along with an error wrapping
// [model.ErrInconclusiveBaseline].
type ProbeFunc func(ctx context.Context, sess *Session) (bool, error)

// Descriptor describes a check.
type Descriptor struct {
	Meta

	// Probes maps the event kinds the check applies to
	// to the function implementing the check.
	Probes map[model.EventKind]ProbeFunc
}

// AppliesTo returns whether the check applies to the given kind.
func (d *Descriptor) AppliesTo(kind model.EventKind) bool {
	_, found := d.Probes[kind]
	return found
}
