// Package qerrs defines the driver's error taxonomy as sentinel values
// matched with errors.Is/errors.As, wrapped with fmt.Errorf at the call
// site the way the rest of the driver reports failures.
package qerrs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/finnhost/qxdriver/internal/logger"
)

var (
	// ErrConfig covers missing or invalid configuration: no bitstream
	// file, empty descriptor lists, empty names or shapes.
	ErrConfig = errors.New("config error")
	// ErrLookup covers an unknown device index or kernel name.
	ErrLookup = errors.New("lookup error")
	// ErrShape covers element counts that are not a multiple of the
	// folded innermost dimension.
	ErrShape = errors.New("shape error")
	// ErrLength covers packed byte counts that are not a multiple of
	// the packed part size.
	ErrLength = errors.New("length error")
	// ErrDomain covers a logical value outside a datatype's range.
	ErrDomain = errors.New("domain error")
	// ErrCapacity covers a store request larger than a ring's total
	// capacity.
	ErrCapacity = errors.New("capacity error")
	// ErrBackpressure is returned as a boolean, never as an error, in
	// single-threaded ring mode; it is kept here only so callers that
	// want to log the condition have a stable sentinel to compare to.
	ErrBackpressure = errors.New("backpressure")
	// ErrRuntime covers a kernel-run terminal state outside
	// {COMPLETED, TIMEOUT, NEW}.
	ErrRuntime = errors.New("runtime error")
)

// Lookup builds an ErrLookup error naming the offending name and the set
// of names that were actually available, per the driver's policy of
// never surfacing an unknown-name failure without its accepted set.
func Lookup(kind, name string, available []string) error {
	return fmt.Errorf("%w: unknown %s %q (available: %s)", ErrLookup, kind, name, strings.Join(available, ", "))
}

// LogAndWrap logs err at Error level with the given message and
// structured fields, then returns a wrapped error carrying the same
// message. It does not change the error's identity for errors.Is/As
// purposes; it only ensures every fatal error is both logged and
// returned, mirroring the original driver's logAndError helper.
func LogAndWrap(log logger.Logger, err error, msg string, args ...any) error {
	log.Error(msg, append(append([]any{}, args...), "error", err)...)
	return fmt.Errorf("%s: %w", msg, err)
}
