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

// Registry binds the globals the compositor announces.
type Registry struct {
	d        *Display
	registry *wl.Registry
	h        RegistryHandler
}

func (r *Registry) HandleRegistryGlobal(ev wl.RegistryGlobalEvent) {
	r.d.obs.Event(RegistryInterface, registryEventGlobal)
	r.h.Global(ev.Name, ev.Interface, ev.Version)
}

func (r *Registry) HandleRegistryGlobalRemove(ev wl.RegistryGlobalRemoveEvent) {
	r.d.obs.Event(RegistryInterface, registryEventGlobalRemove)
	r.h.GlobalRemove(ev.Name)
}

func (r *Registry) bind(name uint32, iface string, version uint32, p wl.Proxy) error {
	if err := r.registry.Bind(name, iface, version, p); err != nil {
		return fmt.Errorf("bind %s v%d: %w", iface, version, r.d.broken(err))
	}
	return nil
}

func (r *Registry) BindCompositor(name, version uint32) (*wl.Compositor, error) {
	c := wl.NewCompositor(r.registry.Context())
	if err := r.bind(name, CompositorInterface, version, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Registry) BindShell(name, version uint32) (*Shell, error) {
	s := wl.NewShell(r.registry.Context())
	if err := r.bind(name, ShellInterface, version, s); err != nil {
		return nil, err
	}
	return &Shell{d: r.d, shell: s}, nil
}

// BindDrm binds wl_drm and routes its events to h.
func (r *Registry) BindDrm(name, version uint32, h DrmHandler) (*Drm, error) {
	drm := &Drm{d: r.d, version: version, handler: h}
	r.registry.Context().Register(drm)
	if err := r.bind(name, DrmInterface, version, drm); err != nil {
		return nil, err
	}
	return drm, nil
}

type Shell struct {
	d     *Display
	shell *wl.Shell
}

// GetShellSurface gives surface the shell role. Ping, configure and
// popup_done go to h.
func (s *Shell) GetShellSurface(surface *wl.Surface, h ShellSurfaceHandler) (*wl.ShellSurface, error) {
	ss, err := s.shell.GetShellSurface(surface)
	if err != nil {
		return nil, s.d.broken(err)
	}
	l := shellSurfaceListener{d: s.d, h: h}
	ss.AddPingHandler(l)
	ss.AddConfigureHandler(l)
	ss.AddPopupDoneHandler(l)
	return ss, nil
}

type shellSurfaceListener struct {
	d *Display
	h ShellSurfaceHandler
}

func (l shellSurfaceListener) HandleShellSurfacePing(ev wl.ShellSurfacePingEvent) {
	l.d.obs.Event(ShellSurfaceInterface, shellSurfaceEventPing)
	l.h.Ping(ev.Serial)
}

func (l shellSurfaceListener) HandleShellSurfaceConfigure(ev wl.ShellSurfaceConfigureEvent) {
	l.d.obs.Event(ShellSurfaceInterface, shellSurfaceEventConfigure)
	l.h.Configure(ev.Edges, ev.Width, ev.Height)
}

func (l shellSurfaceListener) HandleShellSurfacePopupDone(wl.ShellSurfacePopupDoneEvent) {
	l.d.obs.Event(ShellSurfaceInterface, shellSurfaceEventPopupDone)
	l.h.PopupDone()
}

type bufferListener struct {
	d *Display
	h BufferHandler
}

func (l bufferListener) HandleBufferRelease(wl.BufferReleaseEvent) {
	l.d.obs.Event(BufferInterface, bufferEventRelease)
	l.h.Release()
}
