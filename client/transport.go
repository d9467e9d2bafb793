// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/mstarongithub/simplegbm/wayland"
)

// Transport is the compositor connection as the client sees it.
// Handlers passed in are only called from Roundtrip or Dispatch.
type Transport interface {
	Listen(h wayland.RegistryHandler) error
	BindCompositor(name, version uint32) (Compositor, error)
	BindShell(name, version uint32) (Shell, error)
	BindDrm(name, version uint32, h wayland.DrmHandler) (Drm, error)
	Roundtrip(ctx context.Context) error
	Dispatch(ctx context.Context) error
}

type Compositor interface {
	CreateSurface() (Surface, error)
}

type Surface interface {
	Attach(buffer Buffer, x, y int32) error
	Damage(x, y, width, height int32) error
	Commit() error
}

type Shell interface {
	GetShellSurface(s Surface, h wayland.ShellSurfaceHandler) (ShellSurface, error)
}

type ShellSurface interface {
	Pong(serial uint32) error
	SetToplevel() error
	SetTitle(title string) error
}

type Drm interface {
	Authenticate(magic uint32) error
	CreatePrimeBuffer(fd int, width, height int32, format uint32, offsets, strides [3]int32, h wayland.BufferHandler) (Buffer, error)
}

// Buffer is a compositor-side buffer.
type Buffer interface {
	Destroy() error
}

// Device is an opened DRM node.
type Device interface {
	GetMagic() (uint32, error)
	Close() error
}

type DeviceOpener func(path string) (Device, error)

// BackendFactory builds the buffer backend once the device is authenticated.
type BackendFactory func(dev Device) (gbm.Backend, error)

// Recorder is told about client level events. Metrics implement it.
type Recorder interface {
	PingAnswered()
	Painted()
	Released()
}

type nopRecorder struct{}

func (nopRecorder) PingAnswered() {}
func (nopRecorder) Painted()      {}
func (nopRecorder) Released()     {}
