// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gogpu/overlay/alloc"
	"github.com/gogpu/overlay/backend"
	_ "github.com/gogpu/overlay/backend/blit"    // registers "blit"
	_ "github.com/gogpu/overlay/backend/compute" // registers "compute"
	"github.com/gogpu/overlay/internal/facecache"
	"github.com/gogpu/overlay/kernel"
)

type entry struct {
	it     item
	active bool
}

// Engine owns overlay items and composites them onto target frames.
//
// Engine is safe for concurrent use; every method holds the same mutex.
type Engine struct {
	mu   sync.Mutex
	opts options

	format PixelFormat
	env    *env
	items  map[Handle]*entry
	next   Handle

	// bulk holds the handles managed by ProcessOverlayItems, in order.
	bulk []Handle

	// lost is set once the backend reported device loss.
	lost bool
}

// New returns an engine configured by opts. Call Init before use.
func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o, items: make(map[Handle]*entry)}
}

// Init creates the backend for targets of the given format. The backend
// stays fixed for the engine's lifetime.
func (e *Engine) Init(format PixelFormat) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env != nil {
		return fmt.Errorf("%w: already initialized with %s", ErrBackendInit, e.env.backend.Name())
	}

	a := e.opts.allocator
	if a == nil {
		a = alloc.New()
	}
	fonts, err := e.openFonts()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendInit, err)
	}

	cfg := backend.Config{
		Format:       format,
		KernelPool:   e.opts.pool,
		KernelSource: e.opts.kernelSource,
		KernelEntry:  e.opts.kernelEntry,
	}
	if e.opts.backendName == backend.NameCompute && cfg.KernelPool == nil {
		cfg.KernelPool = kernel.NewPool(kernel.NewSoftwareDevice(),
			kernel.WithDispatchTimeout(e.opts.timeout))
	}
	be, err := backend.New(e.opts.backendName, cfg)
	if err != nil {
		_ = fonts.Close()
		return fmt.Errorf("%w: %w", ErrBackendInit, err)
	}

	e.format = format
	e.env = &env{alloc: a, backend: be, fonts: fonts, minStroke: e.opts.minStroke}
	e.lost = false
	slogger().Info("overlay: backend selected", "backend", be.Name(), "format", format)
	return nil
}

func (e *Engine) openFonts() (*facecache.Cache, error) {
	if e.opts.fontFile != "" {
		return facecache.NewFromFile(e.opts.fontFile)
	}
	return facecache.NewDefault()
}

// Close deletes every item and releases the backend. The engine can be
// initialized again afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env == nil {
		return nil
	}
	errs := []error{e.deleteAllLocked()}
	errs = append(errs, e.env.backend.Close(), e.env.fonts.Close())
	e.env = nil
	e.bulk = nil
	return errors.Join(errs...)
}

// BackendName returns the name of the active backend, or "" before Init.
func (e *Engine) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.env == nil {
		return ""
	}
	return e.env.backend.Name()
}

func (e *Engine) checkLocked() error {
	if e.env == nil {
		return ErrNotInitialized
	}
	if e.lost {
		return fmt.Errorf("overlay: engine must be rebuilt: %w", ErrDeviceLost)
	}
	return nil
}

func (e *Engine) lookupLocked(h Handle) (*entry, error) {
	ent, ok := e.items[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return ent, nil
}

// CreateOverlayItem validates cfg, allocates the item's canvases and
// returns its handle. Static images start disabled; every other kind
// starts enabled. On failure nothing is registered or leaked.
func (e *Engine) CreateOverlayItem(cfg Config) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return 0, err
	}
	return e.createLocked(cfg)
}

func (e *Engine) createLocked(cfg Config) (Handle, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	it := newItem(e.env, cfg.clone())
	if err := it.init(); err != nil {
		return 0, err
	}
	e.next++
	h := e.next
	e.items[h] = &entry{it: it, active: cfg.Kind != KindStaticImage}
	slogger().Debug("overlay: item created", "handle", h, "kind", cfg.Kind)
	return h, nil
}

// DeleteOverlayItem releases the item's resources and forgets h.
func (e *Engine) DeleteOverlayItem(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env == nil {
		return ErrNotInitialized
	}
	return e.deleteLocked(h)
}

func (e *Engine) deleteLocked(h Handle) error {
	ent, err := e.lookupLocked(h)
	if err != nil {
		return err
	}
	delete(e.items, h)
	if err := ent.it.destroy(); err != nil {
		return fmt.Errorf("overlay: destroy item %d: %w", h, err)
	}
	return nil
}

// DeleteAllOverlayItems deletes every item.
func (e *Engine) DeleteAllOverlayItems() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env == nil {
		return ErrNotInitialized
	}
	return e.deleteAllLocked()
}

func (e *Engine) deleteAllLocked() error {
	var errs []error
	for _, h := range slices.Sorted(maps.Keys(e.items)) {
		errs = append(errs, e.deleteLocked(h))
	}
	e.bulk = e.bulk[:0]
	return errors.Join(errs...)
}

// GetOverlayParams returns a copy of the item's config.
func (e *Engine) GetOverlayParams(h Handle) (Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env == nil {
		return Config{}, ErrNotInitialized
	}
	ent, err := e.lookupLocked(h)
	if err != nil {
		return Config{}, err
	}
	return ent.it.params().clone(), nil
}

// UpdateOverlayParams replaces the item's config. Content changes mark the
// item dirty; a change of the derived canvas size recreates its surfaces.
// The kind of an item cannot change.
func (e *Engine) UpdateOverlayParams(h Handle, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	return e.updateLocked(h, cfg)
}

func (e *Engine) updateLocked(h Handle, cfg Config) error {
	ent, err := e.lookupLocked(h)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if k := ent.it.params().Kind; k != cfg.Kind {
		return fmt.Errorf("%w: item %d is %v, config is %v", ErrKindMismatch, h, k, cfg.Kind)
	}
	return ent.it.updateParams(cfg.clone())
}

// EnableOverlayItem makes ApplyOverlay composite the item.
func (e *Engine) EnableOverlayItem(h Handle) error {
	return e.setActive(h, true)
}

// DisableOverlayItem makes ApplyOverlay skip the item. Its resources are kept.
func (e *Engine) DisableOverlayItem(h Handle) error {
	return e.setActive(h, false)
}

func (e *Engine) setActive(h Handle, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.env == nil {
		return ErrNotInitialized
	}
	ent, err := e.lookupLocked(h)
	if err != nil {
		return err
	}
	ent.active = on
	return nil
}

// Len returns the number of items.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.items)
}

// Handles returns the live handles in ascending order.
func (e *Engine) Handles() []Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.items))
}

// IsActive reports whether h is enabled.
func (e *Engine) IsActive(h Handle) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.lookupLocked(h)
	if err != nil {
		return false, err
	}
	return ent.active, nil
}

// ApplyOverlay redraws the dirty active items and composites every active
// item onto target, in ascending handle order. It does nothing when no
// item is active.
//
// A failed composite leaves the items intact; the target's pixels for
// this call are undefined and the next call may retry.
func (e *Engine) ApplyOverlay(target *TargetBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}

	var active []Handle
	for _, h := range slices.Sorted(maps.Keys(e.items)) {
		if e.items[h].active {
			active = append(active, h)
		}
	}
	if len(active) == 0 {
		return nil
	}

	if err := target.Validate(); err != nil {
		return err
	}
	if target.Format.Family() != e.format.Family() {
		return fmt.Errorf("%w: %v target on an engine initialized for %v", ErrInvalidBuffer, target.Format, e.format)
	}

	be := e.env.backend
	if err := be.BindTarget(target); err != nil {
		return fmt.Errorf("overlay: bind target: %w", err)
	}
	defer func() {
		if err := be.UnbindTarget(); err != nil {
			slogger().Warn("overlay: unbind target", "err", err)
		}
	}()

	now := e.opts.now()
	list := make([]backend.DrawInfo, 0, len(active)+1)
	for _, h := range active {
		it := e.items[h].it
		if err := it.updateAndDraw(now); err != nil {
			return fmt.Errorf("%w: draw item %d: %w", ErrComposite, h, err)
		}
		list = append(list, it.drawInfo(target.Width, target.Height)...)
	}
	if len(list) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.timeout)
	defer cancel()
	err := be.Composite(ctx, list)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kernel.ErrDeviceLost):
		e.lost = true
		slogger().Warn("overlay: device lost", "backend", be.Name(), "err", err)
		return fmt.Errorf("overlay: composite: %w", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, kernel.ErrDispatchTimeout):
		return fmt.Errorf("%w after %v: %w", ErrCompositeTimeout, e.opts.timeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrComposite, err)
	}
}

// ProcessOverlayItems makes the engine show exactly cfgs. Items created by
// earlier calls are reused in order and a slot whose kind changed is
// recreated. Missing items are created, every updated item is enabled, and
// items beyond len(cfgs) are disabled but kept for later calls.
//
// All configs are validated before anything changes.
func (e *Engine) ProcessOverlayItems(cfgs []Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkLocked(); err != nil {
		return err
	}
	for i := range cfgs {
		if err := cfgs[i].Validate(); err != nil {
			return fmt.Errorf("config %d: %w", i, err)
		}
	}

	// Drop handles deleted since the previous call.
	e.bulk = slices.DeleteFunc(e.bulk, func(h Handle) bool {
		_, ok := e.items[h]
		return !ok
	})

	for i, cfg := range cfgs {
		if i >= len(e.bulk) {
			h, err := e.createLocked(cfg)
			if err != nil {
				return fmt.Errorf("config %d: %w", i, err)
			}
			e.bulk = append(e.bulk, h)
		} else if h := e.bulk[i]; e.items[h].it.params().Kind != cfg.Kind {
			nh, err := e.createLocked(cfg)
			if err != nil {
				return fmt.Errorf("config %d: %w", i, err)
			}
			if err := e.deleteLocked(h); err != nil {
				slogger().Warn("overlay: delete replaced item", "handle", h, "err", err)
			}
			e.bulk[i] = nh
		} else if err := e.updateLocked(h, cfg); err != nil {
			return fmt.Errorf("config %d: %w", i, err)
		}
		e.items[e.bulk[i]].active = true
	}
	for _, h := range e.bulk[min(len(cfgs), len(e.bulk)):] {
		e.items[h].active = false
	}
	return nil
}
