// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/sirupsen/logrus"
)

type HandshakeState int

const (
	AwaitingDeviceName HandshakeState = iota
	AwaitingAuthConfirmation
	Authenticated
	Failed
)

func (s HandshakeState) String() string {
	switch s {
	case AwaitingDeviceName:
		return "awaiting device name"
	case AwaitingAuthConfirmation:
		return "awaiting authentication"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("HandshakeState(%d)", int(s))
}

// handshake is the wl_drm handler. It opens the announced device,
// authenticates it and builds the buffer backend once the compositor
// confirms.
type handshake struct {
	ctx        context.Context
	t          Transport
	drm        Drm
	open       DeviceOpener
	newBackend BackendFactory
	log        *logrus.Entry
	fail       func(error)
	// inspect only records what wl_drm announces.
	inspect bool

	state        HandshakeState
	devicePath   string
	device       Device
	backend      gbm.Backend
	formats      []gbm.Format
	capabilities uint32
	err          error
}

func (h *handshake) Device(name string) {
	if h.state == Failed {
		return
	}
	if h.state != AwaitingDeviceName || h.devicePath != "" {
		h.failWith(StageDevice, fmt.Errorf("%w: device %q while %s", ErrUnexpectedEvent, name, h.state))
		return
	}
	h.devicePath = name
	log := h.log.WithField("device", name)
	if h.inspect {
		log.Debugln("Inspect mode, not opening device")
		return
	}

	dev, err := h.open(name)
	if err != nil {
		h.failWith(StageDevice, err)
		return
	}
	h.device = dev

	magic, err := dev.GetMagic()
	if err != nil {
		h.failWith(StageMagic, err)
		return
	}
	if err := h.drm.Authenticate(magic); err != nil {
		h.failWith(StageAuthenticate, err)
		return
	}
	h.state = AwaitingAuthConfirmation
	log.WithField("magic", magic).Debugln("Sent authentication request")

	if err := h.t.Roundtrip(h.ctx); err != nil {
		h.failWith(StageAuthenticate, err)
	}
}

func (h *handshake) Format(format uint32) {
	f := gbm.Format(format)
	if !slices.Contains(h.formats, f) {
		h.formats = append(h.formats, f)
	}
	h.log.WithField("format", f).Traceln("Format announced")
}

func (h *handshake) Authenticated() {
	if h.state == Failed {
		return
	}
	if h.state != AwaitingAuthConfirmation {
		h.failWith(StageAuthenticate, fmt.Errorf("%w: authenticated while %s", ErrUnexpectedEvent, h.state))
		return
	}
	backend, err := h.newBackend(h.device)
	if err != nil {
		h.failWith(StageBackend, err)
		return
	}
	h.backend = backend
	h.state = Authenticated
	h.log.WithFields(logrus.Fields{"device": h.devicePath, "backend": backend.Name()}).Infoln("Device authenticated")
}

func (h *handshake) Capabilities(value uint32) {
	h.capabilities = value
	h.log.WithField("capabilities", value).Debugln("Capabilities announced")
}

func (h *handshake) failWith(stage Stage, err error) {
	h.state = Failed
	h.err = setupErr(stage, err)
	h.log.WithError(err).WithField("stage", stage).Errorln("Device handshake failed")
	h.fail(h.err)
}

// Backend is only available once the compositor confirmed authentication.
func (h *handshake) Backend() (gbm.Backend, error) {
	if h.state != Authenticated {
		if h.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, h.err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotAuthenticated, h.state)
	}
	return h.backend, nil
}

func (h *handshake) Close() error {
	var errs []error
	if h.backend != nil {
		errs = append(errs, h.backend.Close())
		h.backend = nil
	}
	if h.device != nil {
		errs = append(errs, h.device.Close())
		h.device = nil
	}
	return errors.Join(errs...)
}
