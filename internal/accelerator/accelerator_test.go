package accelerator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/finnhost/qxdriver/internal/config"
	"github.com/finnhost/qxdriver/internal/device"
	"github.com/finnhost/qxdriver/internal/logger"
	"github.com/finnhost/qxdriver/internal/xrtsim"
)

func testConfig(t *testing.T, deviceCount int) *config.Record {
	t.Helper()
	dir := t.TempDir()
	desc := []config.BufferDescriptor{{KernelName: "idma", PackedShape: []int{2}}}
	odesc := []config.BufferDescriptor{{KernelName: "odma", PackedShape: []int{2}}}
	rec := &config.Record{}
	for i := 0; i < deviceCount; i++ {
		path := filepath.Join(dir, "bit"+string(rune('0'+i))+".xclbin")
		if err := os.WriteFile(path, []byte{0x01}, 0o644); err != nil {
			t.Fatal(err)
		}
		rec.Devices = append(rec.Devices, config.DeviceRecord{
			BitstreamPath:     path,
			XRTDeviceIndex:    i,
			InputDescriptors:  desc,
			OutputDescriptors: odesc,
		})
	}
	return rec
}

func TestNewOpensAllDevices(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 2), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if acc.DeviceCount() != 2 {
		t.Fatalf("device count = %d, want 2", acc.DeviceCount())
	}
}

func TestHandlerAtOutOfRange(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 1), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := acc.handlerAt(5); err == nil {
		t.Fatal("expected lookup error for out-of-range device index")
	}
}

func TestStoreRunReadRetrieve(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 1), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ok, err := acc.Store(0, "idma", []byte{0x01, 0x02})
	if err != nil || !ok {
		t.Fatalf("store: ok=%v err=%v", ok, err)
	}
	ok, err = acc.Run(context.Background(), 0, "idma")
	if err != nil || !ok {
		t.Fatalf("run: ok=%v err=%v", ok, err)
	}
	state, err := acc.Read(context.Background(), 0, "odma", 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !state.Successful() {
		t.Fatalf("expected successful state, got %v", state)
	}
	parts, err := acc.Retrieve(0, "odma", true)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 archived part, got %d", len(parts))
	}
}

func TestStoreFactoryFastPath(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 1), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	store, err := acc.StoreFactory(0, "idma")
	if err != nil {
		t.Fatalf("store factory: %v", err)
	}
	ok, err := store([]byte{0x01, 0x02})
	if err != nil || !ok {
		t.Fatalf("store: ok=%v err=%v", ok, err)
	}
}

func TestRunLimiterThrottlesStore(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 1), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	acc.WithRunLimiter(0, rate.NewLimiter(rate.Every(time.Hour), 1))

	// First call consumes the sole token immediately.
	if _, err := acc.Store(0, "idma", []byte{0x01, 0x02}); err != nil {
		t.Fatalf("first store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := acc.throttle(ctx, 0); err == nil {
		t.Fatal("expected the exhausted limiter to block past the context deadline")
	}
}

func TestCloseClosesAllHandlers(t *testing.T) {
	rt := xrtsim.New()
	acc, err := New(rt, testConfig(t, 2), device.Options{}, logger.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := acc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
