// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"
	"fmt"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/mstarongithub/simplegbm/wayland"
	"github.com/sirupsen/logrus"
)

type shellSurfaceListener struct {
	c *Client
}

func (l shellSurfaceListener) Ping(serial uint32) {
	if err := l.c.shellSurface.Pong(serial); err != nil {
		l.c.fail(l.c.connectionLost(err))
		return
	}
	l.c.rec.PingAnswered()
	l.c.log.WithField("serial", serial).Traceln("Answered ping")
}

func (l shellSurfaceListener) Configure(edges uint32, width, height int32) {
	l.c.log.WithFields(logrus.Fields{
		"edges":  edges,
		"width":  width,
		"height": height,
	}).Traceln("Ignoring configure")
}

func (l shellSurfaceListener) PopupDone() {}

func missing(iface string) error {
	return setupErr(StageWindow, fmt.Errorf("%w: %s", ErrMissingCapability, iface))
}

func (c *Client) setupWindow() error {
	if c.compositor == nil {
		return missing(wayland.CompositorInterface)
	}
	if c.shell == nil {
		return missing(wayland.ShellInterface)
	}
	surface, err := c.compositor.CreateSurface()
	if err != nil {
		return setupErr(StageWindow, err)
	}
	c.surface = surface
	ss, err := c.shell.GetShellSurface(surface, shellSurfaceListener{c: c})
	if err != nil {
		return setupErr(StageWindow, err)
	}
	c.shellSurface = ss
	if c.opts.Title != "" {
		if err := ss.SetTitle(c.opts.Title); err != nil {
			return setupErr(StageWindow, err)
		}
	}
	if err := ss.SetToplevel(); err != nil {
		return setupErr(StageWindow, err)
	}
	return nil
}

// Render allocates the buffer if needed and shows it once.
func (c *Client) Render() error {
	if c.surface == nil {
		return setupErr(StageWindow, fmt.Errorf("%w: no surface yet", ErrNotAllocated))
	}
	if c.drm == nil {
		return missing(wayland.DrmInterface)
	}
	if err := c.buffers.EnsureAllocated(); err != nil {
		return err
	}
	return c.buffers.PaintAndPresent(c.surface)
}

// Repaint shows the buffer again. It fails with ErrBufferBusy until the
// compositor released the previous frame.
func (c *Client) Repaint() error {
	return c.buffers.PaintAndPresent(c.surface)
}

// Run sets everything up, shows one frame and then services events until
// ctx is done or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Discover(ctx); err != nil {
		return err
	}
	if err := c.setupWindow(); err != nil {
		return err
	}
	if err := c.Render(); err != nil {
		return err
	}
	if c.opts.Ready != nil {
		c.opts.Ready()
	}
	return c.Loop(ctx)
}

// Loop dispatches until dispatch fails. Cancelling ctx returns its error,
// anything else is ErrConnectionLost wrapping the transport error.
func (c *Client) Loop(ctx context.Context) error {
	for {
		if err := c.t.Dispatch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return c.lost(ctx, err)
		}
		if err := c.takeHandlerErr(); err != nil {
			return err
		}
	}
}

type Status struct {
	Handshake    HandshakeState
	Device       string
	Backend      string
	Bindings     []Binding
	Formats      []gbm.Format
	Capabilities uint32
	Buffer       BufferStats
}

func (c *Client) Status() Status {
	s := Status{
		Handshake:    c.handshake.state,
		Device:       c.handshake.devicePath,
		Bindings:     c.Bindings(),
		Formats:      c.Formats(),
		Capabilities: c.handshake.capabilities,
		Buffer:       c.buffers.Stats(),
	}
	if c.handshake.backend != nil {
		s.Backend = c.handshake.backend.Name()
	}
	return s
}
