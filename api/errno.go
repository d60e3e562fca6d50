// File: api/errno.go
// Author: momentics <momentics@gmail.com>
//
// errno comparison helpers used by ClassifySyscallError. The syscall
// package defines these errno constants with each platform's own values
// on every Unix target this runtime supports (Linux, Darwin), so no
// per-platform build tags are needed here.

package api

import (
	"errors"
	"syscall"
)

const (
	errnoECONNRESET   = syscall.ECONNRESET
	errnoETIMEDOUT    = syscall.ETIMEDOUT
	errnoECONNREFUSED = syscall.ECONNREFUSED
	errnoENETUNREACH  = syscall.ENETUNREACH
	errnoEHOSTUNREACH = syscall.EHOSTUNREACH
	errnoEPIPE        = syscall.EPIPE
)

func isErrno(err error, target syscall.Errno) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == target
	}
	return errors.Is(err, target)
}
