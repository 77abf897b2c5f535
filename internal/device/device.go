// Package device implements the device handler (C6): one opened FPGA,
// its loaded bitstream, and the named input/output device buffers
// built from a validated configuration record. It validates its own
// configuration wrapper before touching the device, and dispatches
// store/run/read/retrieve/size operations by kernel name.
package device

import (
	"context"
	"fmt"
	"sort"

	"github.com/finnhost/qxdriver/internal/config"
	"github.com/finnhost/qxdriver/internal/devbuf"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/qerrs"
	"github.com/finnhost/qxdriver/internal/ring"
	"github.com/finnhost/qxdriver/internal/xrtiface"
)

// defaultRingCapacityParts is the number of parts each ring holds when
// the caller does not override it via Options.
const defaultRingCapacityParts = 8

// Options configures buffer construction for a Handler.
type Options struct {
	RingCapacityParts int
	RingPolicy        ring.Policy
}

func (o Options) withDefaults() Options {
	if o.RingCapacityParts <= 0 {
		o.RingCapacityParts = defaultRingCapacityParts
	}
	return o
}

// Handler owns one FPGA device: its handle, the loaded bitstream UUID,
// and the kernel-name-indexed maps of input and output device buffers.
type Handler struct {
	index int
	dev   xrtiface.Device
	uuid  xrtiface.Uuid

	inputs  map[string]*devbuf.InputBuffer
	outputs map[string]*devbuf.OutputBuffer

	log logger.Logger
}

// Open validates rec, opens the device at rec.XRTDeviceIndex, loads
// its bitstream, and constructs a device buffer for every input and
// output descriptor.
func Open(rt xrtiface.Runtime, rec config.DeviceRecord, opts Options, log logger.Logger) (*Handler, error) {
	if err := rec.Validate(); err != nil {
		return nil, qerrs.LogAndWrap(log, err, "device: invalid configuration", "xrt_device_index", rec.XRTDeviceIndex)
	}
	opts = opts.withDefaults()

	dev, err := rt.OpenDevice(rec.XRTDeviceIndex)
	if err != nil {
		return nil, qerrs.LogAndWrap(log, err, "device: open device failed", "xrt_device_index", rec.XRTDeviceIndex)
	}
	uid, err := dev.LoadBitstream(rec.BitstreamPath)
	if err != nil {
		return nil, qerrs.LogAndWrap(log, err, "device: load bitstream failed", "bitstream_path", rec.BitstreamPath)
	}

	h := &Handler{
		index:   rec.XRTDeviceIndex,
		dev:     dev,
		uuid:    uid,
		inputs:  make(map[string]*devbuf.InputBuffer),
		outputs: make(map[string]*devbuf.OutputBuffer),
		log:     log,
	}

	for _, desc := range rec.InputDescriptors {
		kernel, err := dev.OpenKernel(uid, desc.KernelName, xrtiface.Shared)
		if err != nil {
			return nil, qerrs.LogAndWrap(log, err, "device: open input kernel failed", "kernel_name", desc.KernelName)
		}
		buf, err := devbuf.NewInputBuffer(dev, kernel, desc.KernelName, desc.PartSize(), opts.RingCapacityParts, opts.RingPolicy, log)
		if err != nil {
			return nil, qerrs.LogAndWrap(log, err, "device: build input buffer failed", "kernel_name", desc.KernelName)
		}
		if _, dup := h.inputs[desc.KernelName]; dup {
			return nil, fmt.Errorf("device: %w: duplicate input kernel name %q", qerrs.ErrConfig, desc.KernelName)
		}
		h.inputs[desc.KernelName] = buf
	}

	for _, desc := range rec.OutputDescriptors {
		kernel, err := dev.OpenKernel(uid, desc.KernelName, xrtiface.Exclusive)
		if err != nil {
			return nil, qerrs.LogAndWrap(log, err, "device: open output kernel failed", "kernel_name", desc.KernelName)
		}
		buf, err := devbuf.NewOutputBuffer(dev, kernel, desc.KernelName, desc.PartSize(), opts.RingCapacityParts, opts.RingPolicy, log)
		if err != nil {
			return nil, qerrs.LogAndWrap(log, err, "device: build output buffer failed", "kernel_name", desc.KernelName)
		}
		if _, dup := h.outputs[desc.KernelName]; dup {
			return nil, fmt.Errorf("device: %w: duplicate output kernel name %q", qerrs.ErrConfig, desc.KernelName)
		}
		h.outputs[desc.KernelName] = buf
	}

	debugCheckCollisions(h.inputs, h.outputs, log)

	return h, nil
}

// Index returns the device's xrt-device-index.
func (h *Handler) Index() int { return h.index }

// UUID returns the loaded bitstream's identity.
func (h *Handler) UUID() xrtiface.Uuid { return h.uuid }

// Direction selects the input or output buffer directory.
type Direction int

const (
	Input Direction = iota
	Output
)

// ContainsBuffer reports whether a buffer of the given kind (INPUT or
// OUTPUT) is registered under name.
func (h *Handler) ContainsBuffer(name string, dir Direction) bool {
	if dir == Input {
		_, ok := h.inputs[name]
		return ok
	}
	_, ok := h.outputs[name]
	return ok
}

// Store copies one part of packed bytes into the named input buffer.
func (h *Handler) Store(data []byte, name string) (bool, error) {
	buf, ok := h.inputs[name]
	if !ok {
		return false, qerrs.Lookup("input kernel", name, h.inputNames())
	}
	return buf.Store(data)
}

// Run submits a kernel run on the named input buffer.
func (h *Handler) Run(ctx context.Context, name string) (bool, error) {
	buf, ok := h.inputs[name]
	if !ok {
		return false, qerrs.Lookup("input kernel", name, h.inputNames())
	}
	return buf.Run(ctx)
}

// Read pulls `samples` batches through the named output buffer.
func (h *Handler) Read(ctx context.Context, name string, samples int) (xrtiface.State, error) {
	buf, ok := h.outputs[name]
	if !ok {
		return xrtiface.Error, qerrs.Lookup("output kernel", name, h.outputNames())
	}
	return buf.Read(ctx, samples)
}

// Retrieve returns the named output buffer's archive, optionally
// forcing a drain of any partial ring contents first.
func (h *Handler) Retrieve(name string, forceArchive bool) ([][]byte, error) {
	buf, ok := h.outputs[name]
	if !ok {
		return nil, qerrs.Lookup("output kernel", name, h.outputNames())
	}
	if forceArchive {
		buf.ArchiveValid()
	}
	return buf.RetrieveArchiveParts(), nil
}

// Sizes reports the size(spec) fields for a named kernel buffer,
// input or output alike: the underlying ring's TOTAL_BYTES/
// CAPACITY_PARTS/PART_SIZE/PART_COUNT plus ELEMENTS and
// ELEMENTS_PER_PART.
type Sizes struct {
	ring.Sizes
	Elements        int
	ElementsPerPart int
}

// Size looks up name in the input directory, then the output
// directory, and returns its size(spec) fields. It returns
// qerrs.ErrLookup, listing every accepted name across both
// directories, if name is registered as neither.
func (h *Handler) Size(name string) (Sizes, error) {
	if buf, ok := h.inputs[name]; ok {
		s := buf.Sizes()
		return Sizes{Sizes: s.Sizes, Elements: s.Elements, ElementsPerPart: s.ElementsPerPart}, nil
	}
	if buf, ok := h.outputs[name]; ok {
		s := buf.Sizes()
		return Sizes{Sizes: s.Sizes, Elements: s.Elements, ElementsPerPart: s.ElementsPerPart}, nil
	}
	available := append(h.inputNames(), h.outputNames()...)
	sort.Strings(available)
	return Sizes{}, qerrs.Lookup("kernel", name, available)
}

// InputBuffer exposes the named input buffer directly, used by the
// accelerator's StoreFactory fast path.
func (h *Handler) InputBuffer(name string) (*devbuf.InputBuffer, error) {
	buf, ok := h.inputs[name]
	if !ok {
		return nil, qerrs.Lookup("input kernel", name, h.inputNames())
	}
	return buf, nil
}

// OutputBuffer exposes the named output buffer directly.
func (h *Handler) OutputBuffer(name string) (*devbuf.OutputBuffer, error) {
	buf, ok := h.outputs[name]
	if !ok {
		return nil, qerrs.Lookup("output kernel", name, h.outputNames())
	}
	return buf, nil
}

// Close releases the underlying device.
func (h *Handler) Close() error {
	return h.dev.Close()
}

func (h *Handler) inputNames() []string  { return sortedKeysInput(h.inputs) }
func (h *Handler) outputNames() []string { return sortedKeysOutput(h.outputs) }

func sortedKeysInput(m map[string]*devbuf.InputBuffer) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedKeysOutput(m map[string]*devbuf.OutputBuffer) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// debugCheckCollisions is a diagnostic-only check of the buffer
// directories, active only in debug builds. It never alters dispatch
// behavior; it logs a performance warning when either map holds enough
// entries to trip checkBucketSkew's size threshold. It does not inspect
// actual hash-bucket occupancy.
func debugCheckCollisions(inputs map[string]*devbuf.InputBuffer, outputs map[string]*devbuf.OutputBuffer, log logger.Logger) {
	if !debugDiagnostics {
		return
	}
	checkBucketSkew("input", len(inputs), log)
	checkBucketSkew("output", len(outputs), log)
}

// checkBucketSkew is a heuristic: Go's map does not expose bucket
// internals, so this only flags directories large enough that a real
// collision would matter, as a placeholder for whatever the runtime's
// own map diagnostics surface.
func checkBucketSkew(direction string, n int, log logger.Logger) {
	const warnThreshold = 64
	if n >= warnThreshold {
		log.Warn("device: large kernel buffer directory may see hash-bucket contention", "direction", direction, "count", n)
	}
}
