// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Returned by a MessageHandler to end the repl after its result was written
var ErrQuit = errors.New("quit")

type MessageHandler func(string, *Repl) (string, error)

// ReadCloser combines the Reader and Closer interfaces
type ReadCloser interface {
	io.Reader
	io.Closer
}

type Repl struct {
	Input   ReadCloser
	Output  io.WriteCloser
	Prompt  string
	scanner *bufio.Scanner
	writer  *bufio.Writer
}

// Creates a new repl
// If no input is given, stdin will be used
// If no output is given, stdout will be used
// Note: The given reader and writer will be closed if the repl is started and then stops
func NewRepl(in ReadCloser, out io.WriteCloser) *Repl {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Repl{
		Input:   in,
		Output:  out,
		scanner: bufio.NewScanner(in),
		writer:  bufio.NewWriter(out),
	}
}

// Starts the repl
// Blocks execution until the input ends or the handler returns an error
// All non-empty input will be passed to the handler func
// ErrQuit from the handler stops the repl without an error
func (r *Repl) Run(onMessage MessageHandler) error {
	defer r.Close()
	if err := r.prompt(); err != nil {
		return err
	}
	for r.scanner.Scan() {
		newMessage := strings.TrimSpace(r.scanner.Text())
		if newMessage == "" {
			if err := r.prompt(); err != nil {
				return err
			}
			continue
		}
		res, handlerErr := onMessage(newMessage, r)
		if handlerErr != nil && !errors.Is(handlerErr, ErrQuit) {
			return fmt.Errorf("message handler errored out on message \"%s\": %w", newMessage, handlerErr)
		}
		if err := r.Println(res); err != nil {
			return err
		}
		if handlerErr != nil {
			return nil
		}
		if err := r.prompt(); err != nil {
			return err
		}
	}
	return r.scanner.Err()
}

// Println writes one line of output and flushes it
func (r *Repl) Println(line string) error {
	if _, err := r.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write result \"%s\": %w", line, err)
	}
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

func (r *Repl) prompt() error {
	if r.Prompt == "" {
		return nil
	}
	if _, err := r.writer.WriteString(r.Prompt); err != nil {
		return err
	}
	return r.writer.Flush()
}

// Close stops the repl if it was still running
// This will also close the reader and writer
func (r *Repl) Close() {
	r.Input.Close()
	r.Output.Close()
}
