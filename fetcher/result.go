// SPDX-License-Identifier: GPL-3.0-or-later

package fetcher

import (
	"errors"

	"github.com/rbmk-project/censordetect/errclass"
	"github.com/rbmk-project/censordetect/model"
)

// Result is the result of a probe request.
type Result struct {
	// Error is true when the request failed.
	Error bool

	// TimedOut is true when the request exceeded its timeout, in
	// which case Error is also true.
	TimedOut bool

	// Err is the error that occurred, if any.
	Err error

	// RequestID is the identifier the platform assigned to the
	// request, when the request was correlated.
	RequestID string

	// Response is the response, when the request succeeded.
	Response *model.Response

	// Details contains the observed outcome, when captured.
	Details *model.OutcomeEvent
}

// Clone returns a copy of the result that does not share
// the response headers and body with the original.
func (r *Result) Clone() *Result {
	clone := *r
	clone.Response = r.Response.Clone()
	if r.Details != nil {
		details := *r.Details
		clone.Details = &details
	}
	return &clone
}

// ErrClass returns the errclass class describing how the request
// ended, preferring the outcome observed by the platform. It returns
// an empty string on success.
func (r *Result) ErrClass() string {
	if r.Details != nil && r.Details.Error != "" {
		return errclass.FromPlatformCode(r.Details.Error)
	}
	if r.TimedOut {
		return errclass.ETIMEDOUT
	}
	var terr *model.TransportError
	if errors.As(r.Err, &terr) {
		return terr.Class
	}
	return errclass.New(r.Err)
}
