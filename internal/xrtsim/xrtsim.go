// Package xrtsim provides an in-memory fake of internal/xrtiface for
// tests, grounded on the original driver's own XRT mock headers
// (unittests/xrtMock). It never touches real hardware: bitstreams are
// "loaded" by generating a UUID, kernel submissions complete
// synchronously and immediately report Completed unless the test has
// configured a different outcome.
package xrtsim

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/finnhost/qxdriver/internal/xrtiface"
)

// Runtime is the fake xrtiface.Runtime; devices are created lazily and
// cached by index.
type Runtime struct {
	mu      sync.Mutex
	devices map[int]*Device
}

// New returns an empty fake runtime.
func New() *Runtime {
	return &Runtime{devices: make(map[int]*Device)}
}

func (r *Runtime) OpenDevice(index int) (xrtiface.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[index]; ok {
		return d, nil
	}
	d := &Device{index: index}
	r.devices[index] = d
	return d, nil
}

// Device is the fake xrtiface.Device.
type Device struct {
	index int
	mu    sync.Mutex
	uuid  xrtiface.Uuid
}

func (d *Device) Index() int { return d.index }

// LoadBitstream requires the path to exist and be a non-empty regular
// file, matching the configuration record's own validation contract,
// and returns a freshly generated UUID standing in for the bitstream
// identity XRT would report.
func (d *Device) LoadBitstream(path string) (xrtiface.Uuid, error) {
	info, err := os.Stat(path)
	if err != nil {
		return xrtiface.Uuid{}, fmt.Errorf("xrtsim: load bitstream %q: %w", path, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return xrtiface.Uuid{}, fmt.Errorf("xrtsim: bitstream %q is not a non-empty regular file", path)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uuid = xrtiface.Uuid(uuid.New())
	return d.uuid, nil
}

func (d *Device) OpenKernel(uuid xrtiface.Uuid, name string, mode xrtiface.AccessMode) (xrtiface.Kernel, error) {
	return &Kernel{device: d, name: name, mode: mode}, nil
}

func (d *Device) AllocateMappedBuffer(sizeBytes int, flags uint32) (xrtiface.BufferObject, error) {
	if sizeBytes <= 0 {
		return nil, fmt.Errorf("xrtsim: mapped buffer size must be positive, got %d", sizeBytes)
	}
	return &BufferObject{host: make([]byte, sizeBytes)}, nil
}

func (d *Device) Close() error { return nil }

// Kernel is the fake xrtiface.Kernel. Outcome can be set by tests
// before Submit to control what Wait reports.
type Kernel struct {
	device *Device
	name   string
	mode   xrtiface.AccessMode

	mu      sync.Mutex
	Outcome xrtiface.State // zero value Completed
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) Submit(ctx context.Context, buf xrtiface.BufferObject, batch int) (xrtiface.RunHandle, error) {
	k.mu.Lock()
	outcome := k.Outcome
	k.mu.Unlock()
	return &RunHandle{outcome: outcome}, nil
}

// SetOutcome configures the terminal state the next Submit's RunHandle
// reports.
func (k *Kernel) SetOutcome(s xrtiface.State) {
	k.mu.Lock()
	k.Outcome = s
	k.mu.Unlock()
}

// BufferObject is the fake xrtiface.BufferObject: a plain host-visible
// byte slice, since there is no real device memory to reconcile with.
type BufferObject struct {
	mu   sync.Mutex
	host []byte
}

func (b *BufferObject) HostView() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host
}

func (b *BufferObject) Sync(dir xrtiface.SyncDirection) error { return nil }

func (b *BufferObject) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.host)
}

// RunHandle is the fake xrtiface.RunHandle: it completes immediately.
type RunHandle struct {
	outcome xrtiface.State
}

func (r *RunHandle) Wait(ctx context.Context) (xrtiface.State, error) {
	if err := ctx.Err(); err != nil {
		return xrtiface.Error, err
	}
	return r.outcome, nil
}
