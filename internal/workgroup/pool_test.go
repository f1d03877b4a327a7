// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package workgroup

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunExecutesAllGroups(t *testing.T) {
	for _, workers := range []int{0, 1, 3} {
		p := NewPool(workers)
		var n atomic.Int32
		groups := make([]func() error, 100)
		for i := range groups {
			groups[i] = func() error { n.Add(1); return nil }
		}
		if err := p.Run(groups); err != nil {
			t.Fatalf("workers=%d: Run: %v", workers, err)
		}
		if n.Load() != 100 {
			t.Errorf("workers=%d: ran %d groups, want 100", workers, n.Load())
		}
		p.Close()
	}
}

func TestRunReportsFirstError(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	boom := errors.New("boom")
	var ran atomic.Int32
	groups := []func() error{
		func() error { ran.Add(1); return nil },
		func() error { ran.Add(1); return boom },
		func() error { ran.Add(1); return nil },
	}
	if err := p.Run(groups); !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want boom", err)
	}
	if ran.Load() != 3 {
		t.Errorf("ran %d groups, want 3", ran.Load())
	}
}

func TestRunAfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()
	p.Close()
	if err := p.Run([]func() error{func() error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
}
