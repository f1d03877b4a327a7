// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package alloc hands out page-rounded memory blocks that are shared between
// CPU drawing and backend access without copies.
//
// Every block is identified by a Handle. CPU writes to a block must be
// bracketed by BeginCPUAccess and EndCPUAccess so that the memory is
// coherent before a backend reads it; CPUAccess pairs the two calls.
package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

var (
	// ErrOutOfMemory is returned when a block cannot be mapped or the
	// allocator limit would be exceeded.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrUnknownHandle is returned for handles that were never allocated
	// or have already been freed.
	ErrUnknownHandle = errors.New("alloc: unknown handle")

	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("alloc: invalid size")

	// ErrUnbalancedAccess is returned by EndCPUAccess without a matching
	// BeginCPUAccess, and by Free while a CPU access is open.
	ErrUnbalancedAccess = errors.New("alloc: unbalanced cpu access")
)

// Handle identifies an allocated block. The zero Handle is never issued.
type Handle uint64

// Block is a page-rounded region of shared memory.
type Block struct {
	// Data spans the whole rounded region.
	Data []byte

	// Handle is the backend-visible identifier of the block.
	Handle Handle
}

// Size returns the rounded size of the block in bytes.
func (b *Block) Size() int { return len(b.Data) }

// mapper provides the backing memory for blocks.
type mapper interface {
	mapMem(size int) ([]byte, error)
	unmapMem(b []byte) error
	syncMem(b []byte) error
}

type entry struct {
	block  *Block
	access int
}

// Allocator is safe for concurrent use.
type Allocator struct {
	mu       sync.Mutex
	mem      mapper
	pageSize int
	limit    int64
	inUse    int64
	next     Handle
	blocks   map[Handle]*entry
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLimit caps the total number of bytes the allocator hands out.
// A limit of 0 means unlimited.
func WithLimit(bytes int64) Option {
	return func(a *Allocator) {
		a.limit = bytes
	}
}

// WithHeap backs blocks with Go heap memory instead of OS mappings.
func WithHeap() Option {
	return func(a *Allocator) {
		a.mem = heapMapper{}
	}
}

// New creates an allocator. Blocks are backed by anonymous OS mappings
// where the platform supports them.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		mem:      defaultMapper(),
		pageSize: pageSize(),
		blocks:   make(map[Handle]*entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PageSize returns the rounding granularity of allocations.
func (a *Allocator) PageSize() int { return a.pageSize }

// Allocate returns a zeroed block of at least size bytes, rounded up to
// the page size.
func (a *Allocator) Allocate(size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	rounded := (size + a.pageSize - 1) / a.pageSize * a.pageSize

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.inUse+int64(rounded) > a.limit {
		return nil, fmt.Errorf("%w: %s requested, %s of %s in use", ErrOutOfMemory,
			humanize.Bytes(uint64(rounded)), humanize.Bytes(uint64(a.inUse)), humanize.Bytes(uint64(a.limit)))
	}
	data, err := a.mem.mapMem(rounded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	a.next++
	b := &Block{Data: data, Handle: a.next}
	a.blocks[b.Handle] = &entry{block: b}
	a.inUse += int64(rounded)

	slogger().Debug("alloc: block allocated",
		"handle", b.Handle, "size", humanize.Bytes(uint64(rounded)), "in_use", humanize.Bytes(uint64(a.inUse)))
	return b, nil
}

// Free releases the block identified by h.
func (a *Allocator) Free(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.blocks[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if e.access > 0 {
		return fmt.Errorf("%w: block %d freed during cpu access", ErrUnbalancedAccess, h)
	}
	delete(a.blocks, h)
	a.inUse -= int64(len(e.block.Data))
	err := a.mem.unmapMem(e.block.Data)
	e.block.Data = nil

	slogger().Debug("alloc: block freed", "handle", h, "in_use", humanize.Bytes(uint64(a.inUse)))
	return err
}

// BeginCPUAccess opens a CPU access window on the block.
// Calls may nest; each must be matched by EndCPUAccess.
func (a *Allocator) BeginCPUAccess(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.blocks[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	e.access++
	return nil
}

// EndCPUAccess closes a CPU access window. When the outermost window
// closes, CPU writes are made visible to backend readers.
func (a *Allocator) EndCPUAccess(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.blocks[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	if e.access == 0 {
		return fmt.Errorf("%w: block %d", ErrUnbalancedAccess, h)
	}
	e.access--
	if e.access > 0 {
		return nil
	}
	return a.mem.syncMem(e.block.Data)
}

// CPUAccess runs fn inside a Begin/End bracket. The bracket is closed even
// when fn fails; fn's error takes precedence.
func (a *Allocator) CPUAccess(h Handle, fn func(data []byte) error) (err error) {
	if err := a.BeginCPUAccess(h); err != nil {
		return err
	}
	defer func() {
		if endErr := a.EndCPUAccess(h); err == nil {
			err = endErr
		}
	}()

	a.mu.Lock()
	data := a.blocks[h].block.Data
	a.mu.Unlock()
	return fn(data)
}

// InUse returns the number of bytes currently allocated.
func (a *Allocator) InUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Len returns the number of live blocks.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// heapMapper backs blocks with ordinary Go memory.
type heapMapper struct{}

func (heapMapper) mapMem(size int) ([]byte, error) { return make([]byte, size), nil }
func (heapMapper) unmapMem([]byte) error           { return nil }
func (heapMapper) syncMem([]byte) error            { return nil }
