//go:build !unix

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package alloc

import "os"

func defaultMapper() mapper { return heapMapper{} }

func pageSize() int { return os.Getpagesize() }
