// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"
	"fmt"

	"github.com/mstarongithub/simplegbm/wayland"
	"github.com/neurlang/wayland/wl"
)

type waylandTransport struct {
	display  *wayland.Display
	registry *wayland.Registry
}

// NewWaylandTransport runs the client over a real display connection.
func NewWaylandTransport(d *wayland.Display) Transport {
	return &waylandTransport{display: d}
}

func (t *waylandTransport) Listen(h wayland.RegistryHandler) error {
	if t.registry != nil {
		return fmt.Errorf("%w: registry requested twice", ErrUnexpectedEvent)
	}
	r, err := t.display.GetRegistry(h)
	if err != nil {
		return err
	}
	t.registry = r
	return nil
}

func (t *waylandTransport) BindCompositor(name, version uint32) (Compositor, error) {
	c, err := t.registry.BindCompositor(name, version)
	if err != nil {
		return nil, err
	}
	return waylandCompositor{c}, nil
}

func (t *waylandTransport) BindShell(name, version uint32) (Shell, error) {
	s, err := t.registry.BindShell(name, version)
	if err != nil {
		return nil, err
	}
	return waylandShell{s}, nil
}

func (t *waylandTransport) BindDrm(name, version uint32, h wayland.DrmHandler) (Drm, error) {
	d, err := t.registry.BindDrm(name, version, h)
	if err != nil {
		return nil, err
	}
	return waylandDrm{d}, nil
}

func (t *waylandTransport) Roundtrip(ctx context.Context) error {
	return t.display.Roundtrip(ctx)
}

func (t *waylandTransport) Dispatch(ctx context.Context) error {
	return t.display.Dispatch(ctx)
}

type waylandCompositor struct {
	c *wl.Compositor
}

func (c waylandCompositor) CreateSurface() (Surface, error) {
	s, err := c.c.CreateSurface()
	if err != nil {
		return nil, err
	}
	return waylandSurface{s}, nil
}

type waylandSurface struct {
	s *wl.Surface
}

func (s waylandSurface) Attach(buffer Buffer, x, y int32) error {
	b, ok := buffer.(waylandBuffer)
	if !ok {
		return fmt.Errorf("attach: %T is not a wl_buffer", buffer)
	}
	return s.s.Attach(b.b, x, y)
}

func (s waylandSurface) Damage(x, y, width, height int32) error {
	return s.s.Damage(x, y, width, height)
}

func (s waylandSurface) Commit() error {
	return s.s.Commit()
}

type waylandShell struct {
	s *wayland.Shell
}

func (s waylandShell) GetShellSurface(surface Surface, h wayland.ShellSurfaceHandler) (ShellSurface, error) {
	ws, ok := surface.(waylandSurface)
	if !ok {
		return nil, fmt.Errorf("get shell surface: %T is not a wl_surface", surface)
	}
	ss, err := s.s.GetShellSurface(ws.s, h)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

type waylandDrm struct {
	d *wayland.Drm
}

func (d waylandDrm) Authenticate(magic uint32) error {
	return d.d.Authenticate(magic)
}

func (d waylandDrm) CreatePrimeBuffer(fd int, width, height int32, format uint32, offsets, strides [3]int32, h wayland.BufferHandler) (Buffer, error) {
	b, err := d.d.CreatePrimeBuffer(uintptr(fd), width, height, format, offsets, strides, h)
	if err != nil {
		return nil, err
	}
	return waylandBuffer{b}, nil
}

type waylandBuffer struct {
	b *wl.Buffer
}

func (b waylandBuffer) Destroy() error {
	return b.b.Destroy()
}
