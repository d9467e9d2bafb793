// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mstarongithub/simplegbm/client"
	"github.com/mstarongithub/simplegbm/common/ipc"
	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

var (
	outputFormat    string
	interfaceFilter string
)

// Tool mode: ask the compositor what it offers without showing anything.
var globalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "list the globals the compositor announces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, func(c *client.Client) (ipc.Report, error) {
			return globalsReport(c.Globals(), ipc.GlobalsRequest{Interface: interfaceFilter}), nil
		})
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "show the device and pixel formats wl_drm announces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTool(cmd, func(c *client.Client) (ipc.Report, error) {
			s := c.Status()
			if s.Device == "" {
				return nil, fmt.Errorf("%w: wl_drm", client.ErrMissingCapability)
			}
			return formatsReport(s), nil
		})
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "list the buffer backends compiled in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(gbm.Backends(), "\n"))
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{globalsCmd, formatsCmd} {
		cmd.Flags().StringVarP(&outputFormat, "output", "o", string(ipc.OutputText), "Output format: text, json or yaml")
		rootCmd.AddCommand(cmd)
	}
	globalsCmd.Flags().StringVar(&interfaceFilter, "interface", "", "Only list globals of this interface")
	rootCmd.AddCommand(backendsCmd)
}

func runTool(cmd *cobra.Command, report func(*client.Client) (ipc.Report, error)) error {
	out, err := ipc.ParseOutput(outputFormat)
	if err != nil {
		return err
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	display, ok := connect()
	if !ok {
		os.Exit(1)
	}
	defer display.Close()

	c, err := newClient(client.NewWaylandTransport(display), conf, nil, true, nil)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Discover(ctx); err != nil {
		return err
	}
	r, err := report(c)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), out, r)
}

func writeReport(w io.Writer, out ipc.Output, r ipc.Report) error {
	logrus.WithField("output", out).Debugln("Writing report")
	return ipc.Encode(w, out, r)
}

func globalsReport(globals []client.Global, req ipc.GlobalsRequest) ipc.GlobalsResponse {
	if req.Interface != "" {
		globals = sliceutils.Filter(globals, func(g client.Global) bool {
			return g.Interface == req.Interface
		})
	}
	resp := ipc.GlobalsResponse{Globals: make([]ipc.Global, 0, len(globals))}
	for _, g := range globals {
		resp.Globals = append(resp.Globals, ipc.Global{Name: g.Name, Interface: g.Interface, Version: g.Version})
	}
	resp.GlobalsFound = len(resp.Globals)
	return resp
}

func formatsReport(s client.Status) ipc.FormatsResponse {
	resp := ipc.FormatsResponse{Device: s.Device, Capabilities: s.Capabilities, Formats: make([]string, 0, len(s.Formats))}
	for _, f := range s.Formats {
		resp.Formats = append(resp.Formats, f.String())
	}
	return resp
}
