package control

import (
	"errors"

	"github.com/ovdk-go/fastpath/flow"
	"golang.org/x/sys/unix"
)

// Sentinel errors for the validation/semantic error classes (spec.md
// §7); errnoOf translates these (and a handful of package errors
// returned directly by flow/port) into the wire reply's numeric Error
// field using golang.org/x/sys/unix's errno constants, rather than
// hand-rolling our own — reusing the dependency wiresock already
// carries for exactly this purpose.
var (
	ErrInvalid  = errors.New("control: invalid argument")
	ErrNoDevice = errors.New("control: no such device")
	ErrNoEntry  = errors.New("control: no such flow entry")
)

func errnoOf(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalid):
		return int32(unix.EINVAL)
	case errors.Is(err, ErrNoDevice), errors.Is(err, unix.ENODEV):
		return int32(unix.ENODEV)
	case errors.Is(err, ErrNoEntry), errors.Is(err, flow.ErrNotFound):
		return int32(unix.ENOENT)
	default:
		return int32(unix.EINVAL)
	}
}
