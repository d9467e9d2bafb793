// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"
	"fmt"
	"slices"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/mstarongithub/simplegbm/wayland"
	"github.com/sirupsen/logrus"
)

const (
	maxCompositorVersion = 3
	shellVersion         = 1
	maxDrmVersion        = wayland.DrmPrimeVersion
)

// Binding is a global the client bound, at the version it bound it.
type Binding struct {
	Interface string
	Name      uint32
	Version   uint32
}

// Global is an announcement as the compositor made it.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

type registryListener struct {
	c   *Client
	ctx context.Context
}

func (l registryListener) Global(name uint32, iface string, version uint32) {
	l.c.global(l.ctx, name, iface, version)
}

func (l registryListener) GlobalRemove(name uint32) {
	l.c.log.WithField("name", name).Debugln("Global removed, ignoring")
}

// Discover subscribes to the registry and binds what the client needs.
// When wl_drm is bound the device handshake runs inside the announcement,
// so on return the handshake has either finished or failed.
func (c *Client) Discover(ctx context.Context) error {
	c.handshake.ctx = ctx
	if err := c.t.Listen(registryListener{c: c, ctx: ctx}); err != nil {
		return setupErr(StageRegistry, err)
	}
	if err := c.t.Roundtrip(ctx); err != nil {
		return setupErr(StageRegistry, c.lost(ctx, err))
	}
	if err := c.takeHandlerErr(); err != nil {
		return err
	}
	if formats := c.handshake.formats; len(formats) > 0 && !slices.Contains(formats, c.opts.Format) {
		c.log.WithFields(logrus.Fields{
			"format":    c.opts.Format,
			"announced": formats,
		}).Warnln("Compositor never announced the buffer format, it may reject the buffer")
	}
	return nil
}

func (c *Client) global(ctx context.Context, name uint32, iface string, version uint32) {
	c.globals = append(c.globals, Global{Name: name, Interface: iface, Version: version})
	log := c.log.WithFields(logrus.Fields{"name": name, "interface": iface, "version": version})

	switch iface {
	case wayland.CompositorInterface:
		if c.compositor != nil {
			c.duplicate(log)
			return
		}
		v := min(version, maxCompositorVersion)
		comp, err := c.t.BindCompositor(name, v)
		if err != nil {
			c.fail(setupErr(StageBind, err))
			return
		}
		c.compositor = comp
		c.bound(iface, name, v, log)
	case wayland.ShellInterface:
		if c.shell != nil {
			c.duplicate(log)
			return
		}
		shell, err := c.t.BindShell(name, shellVersion)
		if err != nil {
			c.fail(setupErr(StageBind, err))
			return
		}
		c.shell = shell
		c.bound(iface, name, shellVersion, log)
	case wayland.DrmInterface:
		if c.drm != nil {
			c.duplicate(log)
			return
		}
		// Inspect never creates buffers, older versions still announce
		// the device and formats.
		if version < wayland.DrmPrimeVersion && !c.opts.Inspect {
			c.fail(setupErr(StageBind, fmt.Errorf("%w: %s version %d, need %d for prime buffers",
				ErrUnsupportedVersion, iface, version, wayland.DrmPrimeVersion)))
			return
		}
		v := min(version, maxDrmVersion)
		drm, err := c.t.BindDrm(name, v, c.handshake)
		if err != nil {
			c.fail(setupErr(StageBind, err))
			return
		}
		c.drm = drm
		c.handshake.drm = drm
		c.bound(iface, name, v, log)
		// The device event follows the bind; wait for it and for whatever
		// the handshake sends in response.
		if err := c.t.Roundtrip(ctx); err != nil {
			c.fail(setupErr(StageAuthenticate, c.lost(ctx, err)))
		}
	default:
		log.Traceln("Ignoring global")
	}
}

func (c *Client) bound(iface string, name, version uint32, log *logrus.Entry) {
	c.bindings = append(c.bindings, Binding{Interface: iface, Name: name, Version: version})
	log.WithField("bound", version).Debugln("Bound global")
}

func (c *Client) duplicate(log *logrus.Entry) {
	log.Warnln("Global announced again, keeping the first binding")
}

// lost marks transport failures as connection loss unless ctx ended them.
func (c *Client) lost(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return c.connectionLost(err)
}

// connectionLost wraps err in ErrConnectionLost. From then on Close frees
// local resources only.
func (c *Client) connectionLost(err error) error {
	c.disconnected = true
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

func (c *Client) Globals() []Global {
	return slices.Clone(c.globals)
}

func (c *Client) Bindings() []Binding {
	return slices.Clone(c.bindings)
}

// Formats lists the pixel formats wl_drm announced.
func (c *Client) Formats() []gbm.Format {
	return slices.Clone(c.handshake.formats)
}
