// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolReferenceCounting(t *testing.T) {
	p := NewPool(NewSoftwareDevice(WithWorkers(2)))
	if p.Live() || p.Refs() != 0 {
		t.Fatal("new pool must be empty")
	}

	ref := acquire(t, p, "", "")
	if !p.Live() || p.Refs() != 1 {
		t.Fatalf("after Acquire: live=%v refs=%d", p.Live(), p.Refs())
	}
	if p.Program().Entry != DefaultEntry {
		t.Errorf("Program().Entry = %q, want %q", p.Program().Entry, DefaultEntry)
	}

	second := acquire(t, p, "", DefaultEntry)
	third, err := ref.NewInstance()
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if p.Refs() != 3 {
		t.Fatalf("Refs() = %d, want 3", p.Refs())
	}

	// Release in arbitrary order; teardown happens at the last one only.
	for i, inst := range []*Instance{second, ref, third} {
		if err := inst.Release(); err != nil {
			t.Fatalf("Release %d: %v", i, err)
		}
		if live := p.Live(); live != (i < 2) {
			t.Errorf("after release %d: Live() = %v", i, live)
		}
	}
	if p.Refs() != 0 {
		t.Errorf("Refs() = %d after all releases, want 0", p.Refs())
	}

	// Double release never drives the count negative.
	if err := ref.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
	if p.Refs() != 0 {
		t.Errorf("Refs() = %d after double release, want 0", p.Refs())
	}

	// The pool can be acquired again after teardown.
	again := acquire(t, p, "", "")
	defer func() { _ = again.Release() }()
	if !p.Live() {
		t.Error("pool not live after re-acquire")
	}
}

func TestPoolConcurrentAcquireRelease(t *testing.T) {
	p := NewPool(NewSoftwareDevice(WithWorkers(1)))
	first := acquire(t, p, "", "")

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := p.Acquire("", "")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			_ = inst.Release()
		}()
	}
	wg.Wait()
	if p.Refs() != 1 {
		t.Errorf("Refs() = %d, want 1", p.Refs())
	}
	_ = first.Release()
}

func TestPoolProgramMismatch(t *testing.T) {
	p := NewPool(NewSoftwareDevice())
	ref := acquire(t, p, "", "")
	defer func() { _ = ref.Release() }()

	if _, err := p.Acquire("", "other_entry"); !errors.Is(err, ErrProgramMismatch) {
		t.Errorf("Acquire(other entry) = %v, want ErrProgramMismatch", err)
	}
}

func TestPoolUnknownEntry(t *testing.T) {
	p := NewPool(NewSoftwareDevice())
	path := writeKernel(t, stallWGSL)
	_, err := p.Acquire(path, "stall")
	skipOnCompile(t, err)
	if !errors.Is(err, ErrUnknownEntry) {
		t.Fatalf("Acquire(unregistered entry) = %v, want ErrUnknownEntry", err)
	}
	if p.Live() || p.Refs() != 0 {
		t.Error("failed Acquire left pool state behind")
	}
}

func TestPoolNoDevice(t *testing.T) {
	if _, err := NewPool(nil).Acquire("", ""); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Acquire without device = %v, want ErrNoDevice", err)
	}
}

func TestInstanceSetArgsValidation(t *testing.T) {
	p := NewPool(NewSoftwareDevice())
	inst := acquire(t, p, "", "")
	defer func() { _ = inst.Release() }()

	mem, err := p.MapBuffer(make([]byte, 16), AccessRead)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		args []Arg
	}{
		{"too few", []Arg{WordsArg(1)}},
		{"buffer in uniform slot", []Arg{MemArg(mem), MemArg(mem), MemArg(mem)}},
		{"words in buffer slot", []Arg{WordsArg(1), WordsArg(2), MemArg(mem)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := inst.SetArgs(tt.args...); !errors.Is(err, ErrArgs) {
				t.Errorf("SetArgs() = %v, want ErrArgs", err)
			}
		})
	}
	if err := inst.Dispatch([2]int{1, 1}, true); !errors.Is(err, ErrArgs) {
		t.Errorf("Dispatch without args = %v, want ErrArgs", err)
	}
}

func TestDispatchTimeout(t *testing.T) {
	dev := NewSoftwareDevice(WithWorkers(1))
	release := make(chan struct{})
	dev.RegisterKernel("stall", func([]Arg, Rows) error {
		<-release
		return nil
	})

	p := NewPool(dev, WithDispatchTimeout(50*time.Millisecond), WithArgLayout(ArgReadWrite))
	inst := acquire(t, p, writeKernel(t, stallWGSL), "stall")
	mem, _ := p.MapBuffer(make([]byte, 4), AccessReadWrite)
	if err := inst.SetArgs(MemArg(mem)); err != nil {
		t.Fatal(err)
	}

	err := inst.Dispatch([2]int{1, 1}, true)
	if !errors.Is(err, ErrDispatchTimeout) {
		t.Errorf("Dispatch() = %v, want ErrDispatchTimeout", err)
	}

	close(release)
	if err := inst.Wait(); err != nil {
		t.Errorf("Wait after unblocking: %v", err)
	}
	if err := inst.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestCancelSkipsQueuedLaunches(t *testing.T) {
	dev := NewSoftwareDevice(WithWorkers(1))
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var ran atomic.Int32
	dev.RegisterKernel("stall", func([]Arg, Rows) error {
		if ran.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	})

	p := NewPool(dev, WithArgLayout(ArgReadWrite))
	inst := acquire(t, p, writeKernel(t, stallWGSL), "stall")
	defer func() { _ = inst.Release() }()
	mem, _ := p.MapBuffer(make([]byte, 4), AccessReadWrite)
	if err := inst.SetArgs(MemArg(mem)); err != nil {
		t.Fatal(err)
	}

	for range 4 {
		if err := inst.Dispatch([2]int{1, 1}, false); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	<-started
	inst.Cancel()
	close(release)

	if err := inst.Wait(); !errors.Is(err, ErrCanceled) {
		t.Errorf("Wait after Cancel = %v, want ErrCanceled", err)
	}
	if n := ran.Load(); n != 1 {
		t.Errorf("kernel ran %d times, want only the launch already running", n)
	}

	// Later dispatches are not affected by the earlier Cancel.
	if err := inst.Dispatch([2]int{1, 1}, true); err != nil {
		t.Errorf("Dispatch after Cancel: %v", err)
	}
	if n := ran.Load(); n != 2 {
		t.Errorf("kernel ran %d times, want 2", n)
	}
}

func TestDispatchAfterRelease(t *testing.T) {
	p := NewPool(NewSoftwareDevice())
	inst := acquire(t, p, "", "")
	_ = inst.Release()

	if err := inst.Dispatch([2]int{1, 1}, false); !errors.Is(err, ErrReleased) {
		t.Errorf("Dispatch after Release = %v, want ErrReleased", err)
	}
	if _, err := inst.NewInstance(); !errors.Is(err, ErrReleased) {
		t.Errorf("NewInstance after Release = %v, want ErrReleased", err)
	}
}

func TestDeviceLost(t *testing.T) {
	dev := NewSoftwareDevice()
	p := NewPool(dev)
	inst := acquire(t, p, "", "")
	defer func() { _ = inst.Release() }()

	src, _ := p.MapBuffer(make([]byte, 4), AccessRead)
	dst, _ := p.MapBuffer(make([]byte, 4), AccessReadWrite)
	params := BlendParams{}.Words()
	if err := inst.SetArgs(WordsArg(params...), MemArg(src), MemArg(dst)); err != nil {
		t.Fatal(err)
	}

	dev.Lose()
	if err := inst.Dispatch([2]int{1, 1}, true); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Dispatch on lost device = %v, want ErrDeviceLost", err)
	}
}
