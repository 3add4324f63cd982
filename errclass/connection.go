// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

// connectionFailures contains the classes that indicate the connection
// could not be established or was interrupted by the network, as opposed
// to TLS verification errors, protocol errors, or local mistakes.
var connectionFailures = map[string]bool{
	EDNS_NONAME:  true,
	ECONNREFUSED: true,
	ECONNRESET:   true,
	ETIMEDOUT:    true,
	EHOSTUNREACH: true,
	ENETUNREACH:  true,
}

// IsConnectionFailure returns whether the given class belongs to the
// set of low-level connection failures.
func IsConnectionFailure(class string) bool {
	return connectionFailures[class]
}

// platformCodes maps browser-reported error codes onto classes.
//
// Chromium reports "net::ERR_*" codes and Firefox reports "NS_ERROR_*"
// codes. The list follows the codes that censorship tools commonly
// observe when a network interferes with a connection.
var platformCodes = map[string]string{
	// Chromium
	"net::ERR_NAME_NOT_RESOLVED":        EDNS_NONAME,
	"net::ERR_CONNECTION_REFUSED":       ECONNREFUSED,
	"net::ERR_TIMED_OUT":                ETIMEDOUT,
	"net::ERR_CONNECTION_RESET":         ECONNRESET,
	"net::ERR_CONNECTION_TIMED_OUT":     ETIMEDOUT,
	"net::ERR_ADDRESS_UNREACHABLE":      EHOSTUNREACH,
	"net::ERR_CONNECTION_CLOSED":        EEOF,
	"net::ERR_CERT_COMMON_NAME_INVALID": ETLS_HOSTNAME_MISMATCH,
	"net::ERR_CERT_AUTHORITY_INVALID":   ETLS_CA_UNKNOWN,

	// Firefox
	"NS_ERROR_UNKNOWN_HOST":       EDNS_NONAME,
	"NS_ERROR_CONNECTION_REFUSED": ECONNREFUSED,
	"NS_ERROR_NET_RESET":          ECONNRESET,
	"NS_ERROR_NET_TIMEOUT":        ETIMEDOUT,
	"NS_ERROR_NET_INTERRUPT":      EEOF,
}

// FromPlatformCode maps a platform-specific error code to a class.
//
// Strings that already are classes are returned unchanged, the empty
// string maps to the empty string, and unknown codes map to [EGENERIC].
func FromPlatformCode(code string) string {
	if code == "" {
		return ""
	}
	if class, ok := platformCodes[code]; ok {
		return class
	}
	if isKnownClass(code) {
		return code
	}
	return EGENERIC
}

// isKnownClass returns whether the given string is one of our classes.
func isKnownClass(s string) bool {
	switch s {
	case EADDRNOTAVAIL, EADDRINUSE, ECONNABORTED, ECONNREFUSED, ECONNRESET,
		EHOSTUNREACH, EEOF, EINVAL, EINTR, ENETDOWN, ENETUNREACH, ENOBUFS,
		ENOTCONN, EPROTONOSUPPORT, ETIMEDOUT, EDNS_NONAME, EDNS_NODATA,
		ETLS_HOSTNAME_MISMATCH, ETLS_CA_UNKNOWN, ETLS_CERT_INVALID, EGENERIC:
		return true
	default:
		return false
	}
}
