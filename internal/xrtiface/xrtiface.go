// Package xrtiface defines the accelerator runtime interface assumed
// by the driver: opaque device, kernel, buffer-object, and kernel-run
// handles with the operations spec.md's external-interfaces section
// requires. A real implementation would bind to Xilinx's XRT via cgo;
// this repo ships only internal/xrtsim, an in-memory fake used by
// tests, since the runtime library itself is an external collaborator
// out of this driver's scope.
package xrtiface

import "context"

// AccessMode selects how a kernel is opened: shared kernels may be
// addressed by several buffer owners (serialized through their own
// locks); exclusive kernels have a single owner.
type AccessMode int

const (
	Shared AccessMode = iota
	Exclusive
)

// SyncDirection selects which way a mapped buffer is reconciled with
// device memory.
type SyncDirection int

const (
	ToDevice SyncDirection = iota
	FromDevice
)

// State is the terminal state reported by RunHandle.Wait.
type State int

const (
	Completed State = iota
	Timeout
	New
	Error
)

func (s State) String() string {
	switch s {
	case Completed:
		return "COMPLETED"
	case Timeout:
		return "TIMEOUT"
	case New:
		return "NEW"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Successful reports whether s is one of the non-error terminal
// states the driver treats as success: COMPLETED, TIMEOUT, or NEW.
func (s State) Successful() bool {
	return s == Completed || s == Timeout || s == New
}

// Uuid identifies a loaded bitstream.
type Uuid = [16]byte

// Device is an opened FPGA device handle.
type Device interface {
	Index() int
	LoadBitstream(path string) (Uuid, error)
	OpenKernel(uuid Uuid, name string, mode AccessMode) (Kernel, error)
	AllocateMappedBuffer(sizeBytes int, flags uint32) (BufferObject, error)
	Close() error
}

// Kernel is a named computational unit inside a loaded bitstream.
type Kernel interface {
	Name() string
	Submit(ctx context.Context, buf BufferObject, batch int) (RunHandle, error)
}

// BufferObject is a device-resident memory region with a host-visible
// view reconciled by explicit Sync calls.
type BufferObject interface {
	// HostView exposes the host-visible bytes. Callers must not read or
	// write concurrently with a kernel run against this buffer, and
	// must call Sync to make writes visible to the kernel or reads
	// visible to the host.
	HostView() []byte
	Sync(dir SyncDirection) error
	Size() int
}

// RunHandle represents an in-flight or completed kernel submission.
type RunHandle interface {
	Wait(ctx context.Context) (State, error)
}

// Runtime opens devices; it is the top-level factory a device.Handler
// uses to bind to the accelerator.
type Runtime interface {
	OpenDevice(index int) (Device, error)
}
