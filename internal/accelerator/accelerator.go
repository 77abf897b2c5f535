// Package accelerator implements the hierarchical dispatch layer (C7)
// that routes store/run/read operations by (device index, kernel
// name) across a densely-indexed collection of device handlers.
package accelerator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/finnhost/qxdriver/internal/config"
	"github.com/finnhost/qxdriver/internal/device"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/qerrs"
	"github.com/finnhost/qxdriver/internal/xrtiface"
)

// Accelerator owns one device handler per configured device, indexed
// 0..D-1 and addressed by (device_index, kernel_name).
type Accelerator struct {
	handlers []*device.Handler
	log      logger.Logger

	mu       sync.Mutex
	limiters map[int]*rate.Limiter
}

// New constructs and opens one device.Handler per record in cfg, in
// order, so device indices come out dense and match cfg's ordering.
func New(rt xrtiface.Runtime, cfg *config.Record, opts device.Options, log logger.Logger) (*Accelerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, qerrs.LogAndWrap(log, err, "accelerator: invalid configuration")
	}
	handlers := make([]*device.Handler, 0, len(cfg.Devices))
	for _, rec := range cfg.Devices {
		h, err := device.Open(rt, rec, opts, log)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return &Accelerator{
		handlers: handlers,
		log:      log,
		limiters: make(map[int]*rate.Limiter),
	}, nil
}

// handlerAt looks up the device handler at deviceIndex, returning a
// LookupError naming the valid range if it is out of bounds.
func (a *Accelerator) handlerAt(deviceIndex int) (*device.Handler, error) {
	if deviceIndex < 0 || deviceIndex >= len(a.handlers) {
		names := make([]string, len(a.handlers))
		for i := range a.handlers {
			names[i] = fmt.Sprintf("%d", i)
		}
		return nil, qerrs.Lookup("device index", fmt.Sprintf("%d", deviceIndex), names)
	}
	return a.handlers[deviceIndex], nil
}

// Store forwards to the input buffer named kernelName on deviceIndex.
func (a *Accelerator) Store(deviceIndex int, kernelName string, data []byte) (bool, error) {
	if err := a.throttle(context.Background(), deviceIndex); err != nil {
		return false, err
	}
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return false, err
	}
	return h.Store(data, kernelName)
}

// Run forwards to Handler.Run on deviceIndex.
func (a *Accelerator) Run(ctx context.Context, deviceIndex int, kernelName string) (bool, error) {
	if err := a.throttle(ctx, deviceIndex); err != nil {
		return false, err
	}
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return false, err
	}
	return h.Run(ctx, kernelName)
}

// Read forwards to Handler.Read on deviceIndex.
func (a *Accelerator) Read(ctx context.Context, deviceIndex int, kernelName string, samples int) (xrtiface.State, error) {
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return xrtiface.Error, err
	}
	return h.Read(ctx, kernelName, samples)
}

// Retrieve forwards to Handler.Retrieve on deviceIndex.
func (a *Accelerator) Retrieve(deviceIndex int, kernelName string, forceArchive bool) ([][]byte, error) {
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return nil, err
	}
	return h.Retrieve(kernelName, forceArchive)
}

// Size forwards to Handler.Size on deviceIndex.
func (a *Accelerator) Size(deviceIndex int, kernelName string) (device.Sizes, error) {
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return device.Sizes{}, err
	}
	return h.Size(kernelName)
}

// StoreFactory returns a callable bound directly to the named input
// buffer, bypassing name lookup on the hot path. The binding is
// invalid once the accelerator is closed.
func (a *Accelerator) StoreFactory(deviceIndex int, kernelName string) (func([]byte) (bool, error), error) {
	h, err := a.handlerAt(deviceIndex)
	if err != nil {
		return nil, err
	}
	buf, err := h.InputBuffer(kernelName)
	if err != nil {
		return nil, err
	}
	return buf.Store, nil
}

// WithRunLimiter installs a token-bucket rate limiter bounding the
// submit rate of Store/Run calls routed to deviceIndex, a debug/
// throttle knob layered on top of the ordinary dispatch path.
func (a *Accelerator) WithRunLimiter(deviceIndex int, r *rate.Limiter) *Accelerator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limiters[deviceIndex] = r
	return a
}

func (a *Accelerator) throttle(ctx context.Context, deviceIndex int) error {
	a.mu.Lock()
	lim, ok := a.limiters[deviceIndex]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// DeviceCount returns the number of device handlers owned by a.
func (a *Accelerator) DeviceCount() int { return len(a.handlers) }

// Close releases every owned device handler.
func (a *Accelerator) Close() error {
	var firstErr error
	for _, h := range a.handlers {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
