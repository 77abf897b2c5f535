package xrtsim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/finnhost/qxdriver/internal/xrtiface"
)

func TestOpenDeviceIsCached(t *testing.T) {
	rt := New()
	a, err := rt.OpenDevice(0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := rt.OpenDevice(0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected repeated OpenDevice calls with the same index to return the same device")
	}
}

func TestLoadBitstreamRejectsMissingOrEmpty(t *testing.T) {
	rt := New()
	dev, _ := rt.OpenDevice(0)

	if _, err := dev.LoadBitstream(filepath.Join(t.TempDir(), "missing.xclbin")); err == nil {
		t.Fatal("expected error for missing bitstream")
	}

	empty := filepath.Join(t.TempDir(), "empty.xclbin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.LoadBitstream(empty); err == nil {
		t.Fatal("expected error for empty bitstream file")
	}
}

func TestSubmitReportsConfiguredOutcome(t *testing.T) {
	rt := New()
	dev, _ := rt.OpenDevice(0)
	kernel, err := dev.OpenKernel(xrtiface.Uuid{}, "k", xrtiface.Shared)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := dev.AllocateMappedBuffer(4, 0)
	if err != nil {
		t.Fatal(err)
	}

	run, err := kernel.Submit(context.Background(), buf, 1)
	if err != nil {
		t.Fatal(err)
	}
	state, err := run.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state != xrtiface.Completed {
		t.Fatalf("default outcome = %v, want Completed", state)
	}

	kernel.(*Kernel).SetOutcome(xrtiface.Error)
	run, _ = kernel.Submit(context.Background(), buf, 1)
	state, _ = run.Wait(context.Background())
	if state != xrtiface.Error {
		t.Fatalf("configured outcome = %v, want Error", state)
	}
}

func TestAllocateMappedBufferRejectsNonPositiveSize(t *testing.T) {
	rt := New()
	dev, _ := rt.OpenDevice(0)
	if _, err := dev.AllocateMappedBuffer(0, 0); err == nil {
		t.Fatal("expected error for zero-sized buffer")
	}
}
