//go:build unix

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package alloc

import (
	"golang.org/x/sys/unix"
)

// mmapMapper backs blocks with anonymous private mappings.
type mmapMapper struct{}

func (mmapMapper) mapMem(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func (mmapMapper) unmapMem(b []byte) error {
	return unix.Munmap(b)
}

func (mmapMapper) syncMem(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}

func defaultMapper() mapper { return mmapMapper{} }

func pageSize() int { return unix.Getpagesize() }
