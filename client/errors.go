// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

var (
	ErrNotAuthenticated   = errors.New("drm device not authenticated")
	ErrMissingCapability  = errors.New("required global not announced")
	ErrUnsupportedVersion = errors.New("global version too old")
	ErrUnexpectedEvent    = errors.New("unexpected event")
	ErrBufferBusy         = errors.New("buffer still held by the compositor")
	ErrNotAllocated       = errors.New("buffer not allocated")
	ErrConnectionLost     = errors.New("connection to the compositor lost")
	ErrStrideTooSmall     = errors.New("stride smaller than a row of pixels")
	ErrShortMapping       = errors.New("mapping smaller than the buffer")
	ErrInvalidSize        = errors.New("invalid size")
)

// Stage names the setup step a SetupError happened in.
type Stage string

const (
	StageConnect      Stage = "connect"
	StageRegistry     Stage = "registry"
	StageBind         Stage = "bind"
	StageDevice       Stage = "open device"
	StageMagic        Stage = "get magic"
	StageAuthenticate Stage = "authenticate"
	StageBackend      Stage = "create backend"
	StageAllocate     Stage = "allocate"
	StageExport       Stage = "export"
	StageImport       Stage = "import"
	StageWindow       Stage = "window"
	StagePaint        Stage = "paint"
)

// SetupError is a failure that stops the client before or while the
// first frame is shown. Err carries the stack of where it was raised.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func (e *SetupError) ErrorStack() string {
	var ge *goerrors.Error
	if errors.As(e.Err, &ge) {
		return ge.ErrorStack()
	}
	return e.Error()
}

// IsConnection reports whether the error is about reaching the compositor
// at all, as opposed to something the compositor or the device refused.
func (e *SetupError) IsConnection() bool {
	return e.Stage == StageConnect || errors.Is(e.Err, ErrConnectionLost)
}

// setupErr tags err with stage unless it already carries one.
func setupErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *SetupError
	if errors.As(err, &se) {
		return err
	}
	return &SetupError{Stage: stage, Err: goerrors.Wrap(err, 1)}
}
