// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ipc holds what tool mode reports about a compositor.
package ipc

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

type (
	// A request to list the globals a compositor announces
	GlobalsRequest struct {
		// Only list globals of this interface. Empty lists all
		Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
	}

	// One announced global
	Global struct {
		Name      uint32 `json:"name" yaml:"name"`
		Interface string `json:"interface" yaml:"interface"`
		Version   uint32 `json:"version" yaml:"version"`
	}

	// Response to a GlobalsRequest
	GlobalsResponse struct {
		Globals []Global `json:"globals" yaml:"globals"`
		// Nr of globals matching the request
		GlobalsFound int `json:"globals_found" yaml:"globals_found"`
	}

	// What wl_drm told us about the compositor's device
	FormatsResponse struct {
		Device       string   `json:"device" yaml:"device"`
		Formats      []string `json:"formats" yaml:"formats"`
		Capabilities uint32   `json:"capabilities" yaml:"capabilities"`
	}
)

// Output selects how reports are written.
type Output string

const (
	OutputText Output = "text"
	OutputJSON Output = "json"
	OutputYAML Output = "yaml"
)

func ParseOutput(s string) (Output, error) {
	switch o := Output(strings.ToLower(s)); o {
	case OutputText, OutputJSON, OutputYAML:
		return o, nil
	}
	return "", fmt.Errorf("unknown output format %q, want text, json or yaml", s)
}

// Report is anything tool mode prints.
type Report interface {
	WriteText(w io.Writer) error
}

func Encode(w io.Writer, out Output, r Report) error {
	switch out {
	case OutputJSON:
		data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case OutputYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case OutputText, "":
		return r.WriteText(w)
	}
	return fmt.Errorf("unknown output format %q", out)
}

func (r GlobalsResponse) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINTERFACE\tVERSION")
	for _, g := range r.Globals {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", g.Name, g.Interface, g.Version)
	}
	return tw.Flush()
}

func (r FormatsResponse) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "device: %s\ncapabilities: %#x\nformats: %s\n",
		r.Device, r.Capabilities, strings.Join(r.Formats, ", "))
	return err
}
