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
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mstarongithub/simplegbm/client"
	"github.com/mstarongithub/simplegbm/metrics"
	"github.com/mstarongithub/simplegbm/repl"
	"github.com/mstarongithub/simplegbm/util"
	"github.com/mstarongithub/simplegbm/util/multiplexer"
	"github.com/mstarongithub/simplegbm/util/wrappers"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

const replHelp = `Commands:
	status                  Handshake state, device, backend and buffer stats
	globals [interface]     Globals the compositor announced
	bindings                Globals that are bound
	formats                 Formats wl_drm announced
	repaint                 Paint and commit the buffer again
	metrics                 Event loop counters
	inspect <command>       Same as the command itself
	run <program> [args]    Start a program with output to this repl
	quit                    Stop simplegbm`

// inspector answers repl commands. Everything touching the client runs on
// the event loop through tasks.
type inspector struct {
	ctx     context.Context
	quit    context.CancelFunc
	tasks   *multiplexer.ManyToOne[func()]
	client  *client.Client
	metrics *metrics.Metrics

	// wake unblocks the event loop after a task was queued. May be nil.
	wake func()
}

func replRunner(insp *inspector) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))
	commandRepl.Prompt = "simplegbm> "
	logrus.Debugln("Starting repl")
	if err := commandRepl.Run(insp.handle); err != nil {
		logrus.WithError(err).Warnln("Repl stopped")
	}
}

// onLoop runs fn on the event loop and waits for its result.
func (i *inspector) onLoop(fn func() string) (string, error) {
	res := make(chan string, 1)
	if err := i.tasks.Send(i.ctx, func() { res <- fn() }); err != nil {
		return "", err
	}
	if i.wake != nil {
		i.wake()
	}
	select {
	case out := <-res:
		return out, nil
	case <-i.ctx.Done():
		return "", i.ctx.Err()
	case <-i.tasks.Done():
		return "", multiplexer.ErrClosed
	}
}

// handle runs one command. r may be nil when not called from a repl.
func (i *inspector) handle(input string, r *repl.Repl) (string, error) {
	if cmdString, ok := strings.CutPrefix(input, "run "); ok {
		var out io.Writer = os.Stdout
		if r != nil {
			out = r.Output
		}
		return runProgram(cmdString, out), nil
	}

	// Can't unpack slices directly like in Python, so do it this roundabout way
	var target, mod, args string
	util.Unpack(strings.SplitN(input, " ", 3), &target, &mod, &args)
	logrus.WithFields(logrus.Fields{
		"cmd":  target,
		"mod":  mod,
		"args": args,
	}).Debugln("Parsed repl command")

	var (
		out string
		err error
	)
	switch target {
	case "quit", "exit":
		i.quit()
		return "Quitting", repl.ErrQuit
	case "help":
		return replHelp, nil
	case "inspect":
		if mod == "" {
			return "Inspect what? Try help", nil
		}
		return i.handle(strings.TrimSpace(mod+" "+args), r)
	case "metrics":
		return formatSnapshot(i.metrics.Snapshot()), nil
	case "status":
		out, err = i.onLoop(func() string { return formatStatus(i.client.Status()) })
	case "globals":
		out, err = i.onLoop(func() string { return formatGlobals(i.client.Globals(), mod) })
	case "bindings":
		out, err = i.onLoop(func() string { return formatBindings(i.client.Bindings()) })
	case "formats":
		out, err = i.onLoop(func() string {
			s := i.client.Status()
			return fmt.Sprintf("Device %s announced: %v", s.Device, s.Formats)
		})
	case "repaint":
		out, err = i.onLoop(func() string {
			if err := i.client.Repaint(); err != nil {
				return "Repaint failed: " + err.Error()
			}
			return "Repainted"
		})
	default:
		return "Unknown command, try help", nil
	}
	if err != nil {
		return "Event loop stopped", errors.Join(repl.ErrQuit, err)
	}
	return out, nil
}

func runProgram(cmdString string, out io.Writer) string {
	parts := strings.Split(cmdString, " ")
	// This is safe b/c it'll unpack into a slice of length 0
	args := parts[1:]
	// If the repl command is "run " the first element is an empty string
	// Which is also safe to "execute" since cmd.Start will just fail with the No Command error
	cmd := exec.Command(parts[0], args...)
	cmd.Stdout = out
	cmd.Stderr = out
	go func(cmd *exec.Cmd, cmdString string) {
		err := cmd.Start()
		if err != nil {
			logrus.WithError(err).WithField("command", cmdString).Errorln("Command failed to start")
			return
		}
		err = cmd.Wait()
		if exiterr, ok := err.(*exec.ExitError); ok {
			logrus.WithError(err).WithFields(logrus.Fields{
				"exit-code": exiterr.ExitCode(),
				"command":   cmdString,
			}).Warningln("Bad command completion")
		}
	}(cmd, cmdString)
	return "Running " + parts[0]
}

func formatStatus(s client.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handshake: %s\n", s.Handshake)
	fmt.Fprintf(&b, "Device: %s (backend %s, capabilities %#x)\n", s.Device, s.Backend, s.Capabilities)
	fmt.Fprintf(&b, "Buffer: %d allocated, %d painted, %d released, in flight: %t",
		s.Buffer.Allocations, s.Buffer.Paints, s.Buffer.Releases, s.Buffer.InFlight)
	return b.String()
}

func formatGlobals(globals []client.Global, iface string) string {
	if iface != "" {
		globals = sliceutils.Filter(globals, func(g client.Global) bool {
			return g.Interface == iface
		})
	}
	if len(globals) == 0 {
		return "No globals"
	}
	lines := make([]string, 0, len(globals))
	for _, g := range globals {
		lines = append(lines, fmt.Sprintf("%d: %s v%d", g.Name, g.Interface, g.Version))
	}
	return strings.Join(lines, "\n")
}

func formatBindings(bindings []client.Binding) string {
	if len(bindings) == 0 {
		return "Nothing bound"
	}
	lines := make([]string, 0, len(bindings))
	for _, b := range bindings {
		lines = append(lines, fmt.Sprintf("%s (name %d) at v%d", b.Interface, b.Name, b.Version))
	}
	return strings.Join(lines, "\n")
}

func formatSnapshot(s metrics.Snapshot) string {
	ifaces := make([]string, 0, len(s.Events))
	for iface := range s.Events {
		ifaces = append(ifaces, iface)
	}
	sort.Strings(ifaces)
	var b strings.Builder
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "Roundtrips: %d, pings: %d, paints: %d, releases: %d", s.Roundtrips, s.Pings, s.Paints, s.Releases)
	for _, iface := range ifaces {
		fmt.Fprintf(&b, "\n%s events: %d", iface, s.Events[iface])
	}
	return b.String()
}
