// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wayland

import (
	"fmt"

	"github.com/neurlang/wayland/wl"
)

const (
	drmAuthenticate      = 0
	drmCreatePrimeBuffer = 3

	drmEventDevice        = 0
	drmEventFormat        = 1
	drmEventAuthenticated = 2
	drmEventCapabilities  = 3
)

// Drm is the Mesa wl_drm buffer sharing global.
type Drm struct {
	wl.BaseProxy
	d       *Display
	version uint32
	handler DrmHandler
}

func (drm *Drm) Version() uint32 {
	return drm.version
}

func (drm *Drm) Dispatch(ev *wl.Event) {
	opcode := uint16(ev.Opcode)
	drm.d.obs.Event(DrmInterface, opcode)
	if drm.handler == nil {
		return
	}
	switch opcode {
	case drmEventDevice:
		drm.handler.Device(ev.String())
	case drmEventFormat:
		drm.handler.Format(ev.Uint32())
	case drmEventAuthenticated:
		drm.handler.Authenticated()
	case drmEventCapabilities:
		drm.handler.Capabilities(ev.Uint32())
	default:
		drm.d.log.WithField("opcode", opcode).Warnln("Unknown wl_drm event")
	}
}

// Authenticate hands the device magic cookie to the compositor, which
// answers with the authenticated event.
func (drm *Drm) Authenticate(magic uint32) error {
	if err := drm.Context().SendRequest(drm, drmAuthenticate, magic); err != nil {
		return drm.d.broken(err)
	}
	return nil
}

// CreatePrimeBuffer creates a wl_buffer backed by the dma-buf fd. The
// descriptor is sent before this returns; the caller still owns it.
func (drm *Drm) CreatePrimeBuffer(fd uintptr, width, height int32, format uint32, offsets, strides [3]int32, h BufferHandler) (*wl.Buffer, error) {
	if drm.version < DrmPrimeVersion {
		return nil, fmt.Errorf("%w: %s create_prime_buffer needs v%d, bound v%d", ErrVersion, DrmInterface, DrmPrimeVersion, drm.version)
	}
	buffer := wl.NewBuffer(drm.Context())
	err := drm.Context().SendRequest(drm, drmCreatePrimeBuffer,
		wl.Proxy(buffer), fd, width, height, format,
		offsets[0], strides[0],
		offsets[1], strides[1],
		offsets[2], strides[2])
	if err != nil {
		return nil, drm.d.broken(err)
	}
	if h != nil {
		buffer.AddReleaseHandler(bufferListener{d: drm.d, h: h})
	}
	return buffer, nil
}
