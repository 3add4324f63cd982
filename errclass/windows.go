//go:build windows

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import "golang.org/x/sys/windows"

// Errno values used by [errorsIsMap] on this platform.
const (
	// connection establishment
	errECONNREFUSED = windows.WSAECONNREFUSED
	errEHOSTUNREACH = windows.WSAEHOSTUNREACH
	errENETDOWN     = windows.WSAENETDOWN
	errENETUNREACH  = windows.WSAENETUNREACH
	errETIMEDOUT    = windows.WSAETIMEDOUT

	// established connections
	errECONNABORTED = windows.WSAECONNABORTED
	errECONNRESET   = windows.WSAECONNRESET
	errENOTCONN     = windows.WSAENOTCONN

	// local socket errors
	errEADDRINUSE      = windows.WSAEADDRINUSE
	errEADDRNOTAVAIL   = windows.WSAEADDRNOTAVAIL
	errEINTR           = windows.WSAEINTR
	errEINVAL          = windows.WSAEINVAL
	errENOBUFS         = windows.WSAENOBUFS
	errEPROTONOSUPPORT = windows.WSAEPROTONOSUPPORT
)
