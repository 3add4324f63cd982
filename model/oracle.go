// SPDX-License-Identifier: GPL-3.0-or-later

package model

// OracleResponse is the JSON body returned by the reachability
// oracle for `GET <oracle>?url=<url>[&host=<host>]`.
type OracleResponse struct {
	// Up is true when the oracle reached the URL.
	Up bool `json:"up"`

	// Error is true when the oracle could not evaluate the URL.
	Error bool `json:"error"`
}
