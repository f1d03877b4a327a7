// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"log/slog"

	"github.com/gogpu/overlay/backend"
)

// slogger returns the logger shared by all backends.
func slogger() *slog.Logger { return backend.Logger() }
