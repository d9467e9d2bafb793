// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package wayland connects simplegbm to the compositor. The core protocol
// objects come from github.com/neurlang/wayland; this package adds the
// Mesa wl_drm global on top and turns the library's per-event handler
// types into one handler interface per object. Events are only delivered
// from Roundtrip or Dispatch, on the goroutine calling them.
package wayland

import (
	"errors"
	"fmt"
)

const (
	DisplayInterface      = "wl_display"
	RegistryInterface     = "wl_registry"
	CallbackInterface     = "wl_callback"
	CompositorInterface   = "wl_compositor"
	SurfaceInterface      = "wl_surface"
	ShellInterface        = "wl_shell"
	ShellSurfaceInterface = "wl_shell_surface"
	BufferInterface       = "wl_buffer"
	DrmInterface          = "wl_drm"
)

// DrmPrimeVersion is the first wl_drm version with create_prime_buffer.
const DrmPrimeVersion = 2

// DrmCapabilityPrime is set in the capabilities event when the compositor
// accepts PRIME buffers.
const DrmCapabilityPrime = 1

const (
	displayEventError = 0

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1

	shellSurfaceEventPing      = 0
	shellSurfaceEventConfigure = 1
	shellSurfaceEventPopupDone = 2

	bufferEventRelease = 0
)

var (
	ErrClosed  = errors.New("display connection closed")
	ErrVersion = errors.New("request not supported by bound version")
)

// ProtocolError is a fatal error reported by the compositor.
type ProtocolError struct {
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (code %d): %s", e.Code, e.Message)
}

// Observer is told about every event dispatched and every completed round-trip.
type Observer interface {
	Event(iface string, opcode uint16)
	Roundtrip()
}

type nopObserver struct{}

func (nopObserver) Event(string, uint16) {}
func (nopObserver) Roundtrip()           {}

// RegistryHandler receives global announcements.
type RegistryHandler interface {
	Global(name uint32, iface string, version uint32)
	GlobalRemove(name uint32)
}

type ShellSurfaceHandler interface {
	Ping(serial uint32)
	Configure(edges uint32, width, height int32)
	PopupDone()
}

// DrmHandler receives wl_drm events.
type DrmHandler interface {
	Device(name string)
	Format(format uint32)
	Authenticated()
	Capabilities(value uint32)
}

type BufferHandler interface {
	Release()
}
