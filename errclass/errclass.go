// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errclass implements error classification.

The general idea is to classify golang errors to an enum of strings
with names resembling standard Unix error names. Censorship checks only
ever reason about these strings, so the same check logic works regardless
of the operating system or the platform that observed the failure.

# Design Principles

1. Preserve original error in `err` in the structured logs.

2. Add the classified error as the `errClass` field.

3. Use [errors.Is] and [errors.As] for classification.

4. Use string-based classification for readability.

5. Follow Unix-like naming where appropriate.

6. Prefix subsystem-specific errors (`EDNS_`, `ETLS_`).

7. Map the nil error to an empty string.

# System and Network Errors

- [ETIMEDOUT] for [context.DeadlineExceeded], [os.ErrDeadlineExceeded]

- [EINTR] for [context.Canceled], [net.ErrClosed]

- [EEOF] for (unexpected) [io.EOF] and [io.ErrUnexpectedEOF] errors

- [ECONNRESET], [ECONNREFUSED], ... for respective syscall errors

The actual system error constants are defined in platform-specific files:

- unix.go for Unix-like systems using x/sys/unix

- windows.go for Windows systems using x/sys/windows

# DNS Errors

- [EDNS_NONAME] for errors with the "no such host" suffix

- [EDNS_NODATA] for errors with the "no answer" suffix

# TLS

- [ETLS_HOSTNAME_MISMATCH] for hostname verification failure

- [ETLS_CA_UNKNOWN] for unknown certificate authority

- [ETLS_CERT_INVALID] for invalid certificate

# Platform Codes

Platforms that report failures using their own code space (e.g., browsers
reporting "net::ERR_CONNECTION_RESET") are mapped onto the same classes
using [FromPlatformCode].

# Fallback

- [EGENERIC] for unclassified errors
*/
package errclass

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"strings"
)

const (
	//
	// Errors that we can map using [errors.Is]:
	//

	// EADDRNOTAVAIL is the address not available error.
	EADDRNOTAVAIL = "EADDRNOTAVAIL"

	// EADDRINUSE is the address in use error.
	EADDRINUSE = "EADDRINUSE"

	// ECONNABORTED is the connection aborted error.
	ECONNABORTED = "ECONNABORTED"

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = "ECONNREFUSED"

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = "ECONNRESET"

	// EHOSTUNREACH is the host unreachable error.
	EHOSTUNREACH = "EHOSTUNREACH"

	// EEOF indicates an unexpected EOF.
	EEOF = "EEOF"

	// EINVAL is the invalid argument error.
	EINVAL = "EINVAL"

	// EINTR is the interrupted system call error.
	EINTR = "EINTR"

	// ENETDOWN is the network is down error.
	ENETDOWN = "ENETDOWN"

	// ENETUNREACH is the network unreachable error.
	ENETUNREACH = "ENETUNREACH"

	// ENOBUFS is the no buffer space available error.
	ENOBUFS = "ENOBUFS"

	// ENOTCONN is the not connected error.
	ENOTCONN = "ENOTCONN"

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = "EPROTONOSUPPORT"

	// ETIMEDOUT is the operation timed out error.
	ETIMEDOUT = "ETIMEDOUT"

	//
	// Errors that we can map using the error message suffix:
	//

	// EDNS_NONAME is the DNS error for "no such host".
	EDNS_NONAME = "EDNS_NONAME"

	// EDNS_NODATA is the DNS error for "no answer".
	EDNS_NODATA = "EDNS_NODATA"

	//
	// Errors that we can map using [errors.As]:
	//

	// ETLS_HOSTNAME_MISMATCH is the TLS error for hostname verification failure.
	ETLS_HOSTNAME_MISMATCH = "ETLS_HOSTNAME_MISMATCH"

	// ETLS_CA_UNKNOWN is the TLS error for unknown certificate authority.
	ETLS_CA_UNKNOWN = "ETLS_CA_UNKNOWN"

	// ETLS_CERT_INVALID is the TLS error for invalid certificate.
	ETLS_CERT_INVALID = "ETLS_CERT_INVALID"

	//
	// Fallback errors:
	//

	// EGENERIC is the generic, unclassified error.
	EGENERIC = "EGENERIC"
)

// errorsIsMap maps errors we can test using [errors.Is] to classes.
var errorsIsMap = map[error]string{
	context.DeadlineExceeded: ETIMEDOUT,
	context.Canceled:         EINTR,
	errEADDRNOTAVAIL:         EADDRNOTAVAIL,
	errEADDRINUSE:            EADDRINUSE,
	errECONNABORTED:          ECONNABORTED,
	errECONNREFUSED:          ECONNREFUSED,
	errECONNRESET:            ECONNRESET,
	errEHOSTUNREACH:          EHOSTUNREACH,
	io.EOF:                   EEOF,
	io.ErrUnexpectedEOF:      EEOF,
	errEINVAL:                EINVAL,
	errEINTR:                 EINTR,
	errENETDOWN:              ENETDOWN,
	errENETUNREACH:           ENETUNREACH,
	errENOBUFS:               ENOBUFS,
	errENOTCONN:              ENOTCONN,
	errEPROTONOSUPPORT:       EPROTONOSUPPORT,
	errETIMEDOUT:             ETIMEDOUT,
	net.ErrClosed:            EINTR,
	os.ErrDeadlineExceeded:   ETIMEDOUT,
}

// stringSuffixMap maps error message suffixes to classes. The suffixes
// are the ones used by [*net.DNSError] and by most DNS libraries.
var stringSuffixMap = map[string]string{
	"no such host": EDNS_NONAME,
	"no answer":    EDNS_NODATA,
}

// New classifies the given error and returns its class. The nil error
// maps to the empty string.
func New(err error) string {
	if err == nil {
		return ""
	}

	// 1. errors we can map using [errors.Is]
	for candidate, class := range errorsIsMap {
		if errors.Is(err, candidate) {
			return class
		}
	}

	// 2. DNS errors, first using the structured error, then the suffix
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return EDNS_NONAME
		case dnsErr.IsTimeout:
			return ETIMEDOUT
		}
	}
	msg := err.Error()
	for suffix, class := range stringSuffixMap {
		if strings.HasSuffix(msg, suffix) {
			return class
		}
	}

	// 3. TLS errors we can map using [errors.As]
	var (
		hostnameErr x509.HostnameError
		unknownErr  x509.UnknownAuthorityError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &hostnameErr):
		return ETLS_HOSTNAME_MISMATCH
	case errors.As(err, &unknownErr):
		return ETLS_CA_UNKNOWN
	case errors.As(err, &invalidErr):
		return ETLS_CERT_INVALID
	}

	// 4. errors only exposing a Timeout method (e.g., [*url.Error])
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ETIMEDOUT
	}

	return EGENERIC
}
