//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "golang.org/x/sys/unix"

// Errno values used by [errorsIsMap] on this platform.
const (
	// connection establishment
	errECONNREFUSED = unix.ECONNREFUSED
	errEHOSTUNREACH = unix.EHOSTUNREACH
	errENETDOWN     = unix.ENETDOWN
	errENETUNREACH  = unix.ENETUNREACH
	errETIMEDOUT    = unix.ETIMEDOUT

	// established connections
	errECONNABORTED = unix.ECONNABORTED
	errECONNRESET   = unix.ECONNRESET
	errENOTCONN     = unix.ENOTCONN

	// local socket errors
	errEADDRINUSE      = unix.EADDRINUSE
	errEADDRNOTAVAIL   = unix.EADDRNOTAVAIL
	errEINTR           = unix.EINTR
	errEINVAL          = unix.EINVAL
	errENOBUFS         = unix.ENOBUFS
	errEPROTONOSUPPORT = unix.EPROTONOSUPPORT
)
