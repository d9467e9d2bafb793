// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package client shows a single solid colour buffer allocated on the
// compositor's DRM device. The flow is discovery, device authentication,
// buffer allocation and a single paint, then the event loop.
//
// A Client is not safe for concurrent use. Everything, including the
// handlers it registers, runs on the goroutine calling Run.
package client

import (
	"errors"
	"fmt"

	"github.com/mstarongithub/simplegbm/drm"
	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/sirupsen/logrus"
)

const (
	DefaultWidth  = 250
	DefaultHeight = 250
	DefaultColor  = 0x00770077
)

type Options struct {
	Width  uint32
	Height uint32
	// Color is written as one native endian 32 bit word per pixel.
	Color  uint32
	Format gbm.Format
	Title  string

	// Inspect binds globals and records what wl_drm announces without
	// opening the device. Nothing can be shown in this mode.
	Inspect bool

	// Backend names the gbm backend used by the default NewBackend.
	Backend    string
	OpenDevice DeviceOpener
	NewBackend BackendFactory

	Log      *logrus.Entry
	Recorder Recorder

	// Ready is called on the event loop goroutine once the first frame
	// has been committed.
	Ready func()
}

type Client struct {
	t    Transport
	opts Options
	log  *logrus.Entry
	rec  Recorder

	compositor Compositor
	shell      Shell
	drm        Drm
	bindings   []Binding
	globals    []Global

	handshake *handshake
	buffers   *bufferManager

	surface      Surface
	shellSurface ShellSurface

	// First error raised inside an event handler.
	handlerErr error
	// Set once the connection is known to be gone.
	disconnected bool
}

func New(t Transport, opts Options) (*Client, error) {
	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, opts.Width, opts.Height)
	}
	if opts.Format == 0 {
		opts.Format = gbm.FormatXRGB8888
	}
	if opts.Backend == "" {
		opts.Backend = gbm.DumbBackendName
	}
	if opts.OpenDevice == nil {
		opts.OpenDevice = openDrmDevice
	}
	if opts.NewBackend == nil {
		opts.NewBackend = backendByName(opts.Backend)
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	c := &Client{
		t:    t,
		opts: opts,
		log:  opts.Log,
		rec:  opts.Recorder,
	}
	c.handshake = &handshake{
		t:          t,
		open:       opts.OpenDevice,
		newBackend: opts.NewBackend,
		log:        c.log.WithField("component", "handshake"),
		fail:       c.fail,
		inspect:    opts.Inspect,
	}
	c.buffers = &bufferManager{
		width:     opts.Width,
		height:    opts.Height,
		format:    opts.Format,
		color:     opts.Color,
		handshake: c.handshake,
		log:       c.log.WithField("component", "buffer"),
		rec:       c.rec,
	}
	return c, nil
}

func openDrmDevice(path string) (Device, error) {
	d, err := drm.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func backendByName(name string) BackendFactory {
	return func(dev Device) (gbm.Backend, error) {
		gd, ok := dev.(gbm.Device)
		if !ok {
			return nil, fmt.Errorf("%T cannot host a buffer backend", dev)
		}
		return gbm.Open(name, gd)
	}
}

// fail records err if it is the first handler error since the last check.
func (c *Client) fail(err error) {
	if c.handlerErr == nil {
		c.handlerErr = err
		return
	}
	c.log.WithError(err).Debugln("Further handler error after the first one")
}

func (c *Client) takeHandlerErr() error {
	err := c.handlerErr
	c.handlerErr = nil
	return err
}

// Close destroys the buffer, then releases the backend and device. After
// a connection loss no requests are sent.
func (c *Client) Close() error {
	return errors.Join(c.buffers.Destroy(!c.disconnected), c.handshake.Close())
}
