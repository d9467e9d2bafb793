// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wayland

import (
	"context"
	"fmt"
	"sync"

	"github.com/neurlang/wayland/wl"
	"github.com/neurlang/wayland/wlclient"
	"github.com/sirupsen/logrus"
)

// Display is the connection to the compositor.
type Display struct {
	display *wl.Display
	log     *logrus.Entry
	obs     Observer
	tasks   <-chan func()

	mu     sync.Mutex
	err    error
	closed bool
}

// Connect dials the compositor named by WAYLAND_DISPLAY inside
// XDG_RUNTIME_DIR.
func Connect(log *logrus.Entry) (*Display, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	display, err := wlclient.DisplayConnect(nil)
	if err != nil {
		return nil, fmt.Errorf("connect to compositor: %w", err)
	}
	d := &Display{display: display, log: log, obs: nopObserver{}}
	display.AddErrorHandler(d)
	return d, nil
}

// SetObserver installs o; nil removes it.
func (d *Display) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.obs = o
}

// SetTaskQueue lets other goroutines run closures on the dispatching
// goroutine. A sender must call Wake after queueing, the dispatcher may be
// blocked reading from the socket.
func (d *Display) SetTaskQueue(tasks <-chan func()) {
	d.tasks = tasks
}

func (d *Display) HandleDisplayError(ev wl.DisplayErrorEvent) {
	d.obs.Event(DisplayInterface, displayEventError)
	d.log.WithFields(logrus.Fields{"code": ev.Code, "message": ev.Message}).Errorln("Compositor reported a protocol error")
	d.setErr(&ProtocolError{Code: ev.Code, Message: ev.Message})
}

// Err returns the error that broke the connection, if any.
func (d *Display) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Display) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

// broken records a transport failure. The first failure is sticky.
func (d *Display) broken(err error) error {
	d.setErr(fmt.Errorf("%w: %w", ErrClosed, err))
	return d.Err()
}

func (d *Display) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.Err()
}

func (d *Display) runTasks() {
	for {
		select {
		case fn, ok := <-d.tasks:
			if !ok {
				d.tasks = nil
				return
			}
			fn()
		default:
			return
		}
	}
}

// Roundtrip blocks until every event caused by requests sent so far has
// been dispatched. ctx is only checked before and after the wait.
func (d *Display) Roundtrip(ctx context.Context) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	if err := wlclient.DisplayRoundtrip(d.display); err != nil {
		return d.broken(err)
	}
	if err := d.check(ctx); err != nil {
		return err
	}
	d.obs.Roundtrip()
	return nil
}

// Dispatch runs queued tasks, then blocks until the compositor sends
// events and handles them. Cancelling ctx wakes a blocked Dispatch.
func (d *Display) Dispatch(ctx context.Context) error {
	d.runTasks()
	if err := d.check(ctx); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, d.Wake)
	err := wlclient.DisplayDispatch(d.display)
	stop()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return d.broken(err)
	}
	d.runTasks()
	return d.check(ctx)
}

// Wake makes a Dispatch blocked on another goroutine return by asking the
// compositor for a sync callback.
func (d *Display) Wake() {
	if d.Err() != nil {
		return
	}
	if _, err := d.display.Sync(); err != nil {
		d.log.WithError(err).Debugln("Wake failed")
	}
}

// Close drops the connection. Later calls on d fail with ErrClosed.
func (d *Display) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	if d.err == nil {
		d.err = ErrClosed
	}
	d.mu.Unlock()

	// Context.Close can wait on a reader that is gone.
	go d.display.Context().Close()
	return nil
}

// GetRegistry creates the registry. Globals are announced to h on the
// next Roundtrip or Dispatch.
func (d *Display) GetRegistry(h RegistryHandler) (*Registry, error) {
	registry, err := d.display.GetRegistry()
	if err != nil {
		return nil, d.broken(err)
	}
	r := &Registry{d: d, registry: registry, h: h}
	registry.AddGlobalHandler(r)
	registry.AddGlobalRemoveHandler(r)
	return r, nil
}
