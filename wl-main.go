// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mstarongithub/simplegbm/client"
	"github.com/mstarongithub/simplegbm/config"
	"github.com/mstarongithub/simplegbm/metrics"
	"github.com/mstarongithub/simplegbm/util/multiplexer"
	"github.com/mstarongithub/simplegbm/wayland"
	"github.com/sirupsen/logrus"
)

const connectFailure = "Failed to connect to wayland display"

// Repl commands queued for the event loop before it picks them up.
const taskQueueSize = 8

func fatal(msg string, err error) {
	logrus.WithError(err).Errorln(msg)
	if stackFramer, ok := err.(interface{ ErrorStack() string }); debug && ok {
		fmt.Fprintln(os.Stderr, "\n"+stackFramer.ErrorStack())
	}
}

func newClient(t client.Transport, conf *config.Config, rec client.Recorder, inspect bool, ready func()) (*client.Client, error) {
	format, err := conf.PixelFormat()
	if err != nil {
		return nil, err
	}
	return client.New(t, client.Options{
		Width:    conf.Width,
		Height:   conf.Height,
		Color:    conf.Color,
		Format:   format,
		Title:    conf.Title,
		Inspect:  inspect,
		Backend:  conf.Backend,
		Log:      logrus.WithField("component", "client"),
		Recorder: rec,
		Ready:    ready,
	})
}

func connect() (*wayland.Display, bool) {
	display, err := wayland.Connect(logrus.WithField("component", "wayland"))
	if err != nil {
		fmt.Fprintln(os.Stderr, connectFailure)
		logrus.WithError(err).Debugln("Dial failed")
		return nil, false
	}
	return display, true
}

// wlMain runs client mode and returns the exit code.
func wlMain(ctx context.Context, conf *config.Config) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	if conf.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, conf.MetricsAddr); err != nil {
				logrus.WithError(err).Errorln("Metrics server failed")
			}
		}()
	}

	display, ok := connect()
	if !ok {
		return 1
	}
	defer display.Close()
	display.SetObserver(m)

	// Closures sent here run on the goroutine dispatching events
	tasks := multiplexer.NewManyToOne[func()](taskQueueSize)
	defer tasks.Close()
	display.SetTaskQueue(tasks.Receiver())
	insp := &inspector{ctx: ctx, quit: cancel, tasks: tasks, wake: display.Wake, metrics: m}

	var ready func()
	if conf.StartType == config.START_SINGLE_COMMAND {
		ready = func() { go runStartCommand(insp, *conf.StartCommand) }
	}
	c, err := newClient(client.NewWaylandTransport(display), conf, m, false, ready)
	if err != nil {
		fatal("Creating client failed", err)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warnln("Cleanup failed")
		}
	}()
	insp.client = c

	if conf.StartType == config.START_REPL {
		go replRunner(insp)
	}
	return exitCode(ctx, c.Run(ctx))
}

func runStartCommand(insp *inspector, command string) {
	out, err := insp.handle(command, nil)
	logrus.WithField("command", command).Infoln(out)
	if err != nil {
		logrus.WithError(err).Debugln("Start command ended")
	}
}

func exitCode(ctx context.Context, err error) int {
	var setupErr *client.SetupError
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		logrus.Infoln("Stopping")
		return 0
	case errors.As(err, &setupErr) && setupErr.IsConnection():
		fmt.Fprintln(os.Stderr, connectFailure)
		fatal("Setup failed at "+string(setupErr.Stage), err)
		return 1
	case errors.As(err, &setupErr):
		fatal("Setup failed at "+string(setupErr.Stage), err)
		return 1
	case errors.Is(err, client.ErrConnectionLost):
		logrus.WithError(err).Warnln("Compositor connection ended")
		return 0
	case err != nil:
		fatal("Event loop failed", err)
		return 1
	}
	return 0
}
