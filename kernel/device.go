// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

// Access describes how a kernel uses a mapped buffer.
type Access int

const (
	AccessRead Access = iota
	AccessReadWrite
)

// ArgKind is the binding type of a kernel argument slot.
type ArgKind int

const (
	// ArgUniform is a small block of 32-bit parameter words.
	ArgUniform ArgKind = iota
	// ArgReadOnly is a buffer the kernel reads.
	ArgReadOnly
	// ArgReadWrite is a buffer the kernel reads and writes.
	ArgReadWrite
)

// OverlayLayout is the argument layout of the built-in overlay kernel:
// blend parameters, source surface, target frame.
var OverlayLayout = []ArgKind{ArgUniform, ArgReadOnly, ArgReadWrite}

// Mem is a buffer object that mirrors host memory for a device.
type Mem interface {
	// Len returns the size of the mirrored host memory in bytes.
	Len() int

	// Host returns the host memory the buffer mirrors.
	Host() []byte

	// Release frees the device side of the buffer.
	Release() error
}

// Arg is one kernel argument: either a buffer or parameter words.
type Arg struct {
	Mem   Mem
	Words []uint32
}

// MemArg wraps a buffer argument.
func MemArg(m Mem) Arg { return Arg{Mem: m} }

// WordsArg wraps parameter words.
func WordsArg(words ...uint32) Arg { return Arg{Words: words} }

// Program is compiled kernel state shared by all instances of a pool.
type Program struct {
	// Name labels device objects.
	Name string

	// Source is the WGSL text the program was compiled from.
	Source string

	// Entry is the kernel entry point.
	Entry string

	// SPIRV holds the compiled words.
	SPIRV []uint32

	// Layout lists the binding type of each argument slot.
	Layout []ArgKind
}

// Executable is a program built for one device context.
type Executable interface {
	Release() error
}

// Launch is one kernel dispatch over a Global[0] x Global[1] invocation grid.
type Launch struct {
	Exec   Executable
	Args   []Arg
	Global [2]int

	// Canceled reports whether the launch was withdrawn after it was
	// queued. Contexts skip canceled launches and stop touching their
	// buffers as soon as they notice. Nil means never canceled.
	Canceled func() bool
}

func (l Launch) canceled() bool { return l.Canceled != nil && l.Canceled() }

// Device opens execution contexts on a compute accelerator.
type Device interface {
	Name() string
	Open() (Context, error)
}

// Context owns one in-order command queue on a device.
type Context interface {
	// BuildProgram prepares p for dispatch.
	BuildProgram(p *Program) (Executable, error)

	// MapBuffer creates a buffer object mirroring host.
	MapBuffer(host []byte, access Access) (Mem, error)

	// Enqueue queues l and returns immediately. done is called exactly once,
	// from another goroutine, when l has completed or failed.
	Enqueue(l Launch, done func(error)) error

	// Close drains the queue and releases the context.
	Close() error
}

// WorkgroupSize is the edge length of the square workgroups kernels use.
const WorkgroupSize = 8
