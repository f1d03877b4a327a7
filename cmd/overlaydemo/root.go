// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/overlay"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "overlaydemo",
		Short: "Composite overlays onto a synthetic camera frame",
		Long: `overlaydemo loads an overlay list from a YAML or TOML file (or uses a
built-in demo list), composites it onto a synthetic frame the given number of
times and writes the last frame as PNG.`,
		Example: `  # Built-in overlays on an NV12 frame
  overlaydemo --out demo.png

  # Compute backend, overlays from a file
  overlaydemo --backend compute --config overlays.toml --frames 60`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(v.GetString("log-level"))
			return render(cmd.Context(), renderOptions{
				configFile: v.GetString("config"),
				backend:    v.GetString("backend"),
				format:     v.GetString("format"),
				width:      v.GetInt("width"),
				height:     v.GetInt("height"),
				frames:     v.GetInt("frames"),
				out:        v.GetString("out"),
			}, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("config", "", "overlay list (.yaml, .yml or .toml)")
	f.String("backend", "", "backend: blit or compute (default from config, else blit)")
	f.String("format", "", "target format: nv12, nv21, rgba, bgra (default from config, else nv12)")
	f.Int("width", 1280, "frame width")
	f.Int("height", 720, "frame height")
	f.Int("frames", 1, "number of ApplyOverlay calls")
	f.String("out", "overlay.png", "output PNG file")
	f.String("log-level", "warn", "log level: debug, info, warn, error")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("OVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	overlay.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
