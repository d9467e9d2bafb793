// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"errors"
	"fmt"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/sirupsen/logrus"
)

type BufferStats struct {
	Allocations int
	Paints      int
	Releases    int
	InFlight    bool
}

// bufferManager owns the one buffer object and the compositor buffer
// wrapping it.
type bufferManager struct {
	width     uint32
	height    uint32
	format    gbm.Format
	color     uint32
	handshake *handshake
	log       *logrus.Entry
	rec       Recorder

	bo       gbm.BufferObject
	buffer   Buffer
	inFlight bool
	stats    BufferStats
}

// EnsureAllocated creates the buffer object and its compositor buffer.
// It does nothing if both exist already.
func (m *bufferManager) EnsureAllocated() error {
	if m.bo != nil {
		return nil
	}
	backend, err := m.handshake.Backend()
	if err != nil {
		return setupErr(StageAllocate, err)
	}

	bo, err := backend.CreateBuffer(m.width, m.height, m.format, gbm.UsageMap|gbm.UsageLinear)
	if err != nil {
		return setupErr(StageAllocate, err)
	}
	f, err := bo.Export()
	if err != nil {
		return setupErr(StageExport, errors.Join(err, bo.Destroy()))
	}
	// The descriptor is duplicated into the compositor when the request is
	// written, ours can go once CreatePrimeBuffer returns.
	defer f.Close()

	strides := [3]int32{int32(bo.Stride())}
	buffer, err := m.handshake.drm.CreatePrimeBuffer(int(f.Fd()), int32(m.width), int32(m.height),
		uint32(m.format), [3]int32{}, strides, m)
	if err != nil {
		return setupErr(StageImport, errors.Join(err, bo.Destroy()))
	}

	m.bo = bo
	m.buffer = buffer
	m.stats.Allocations++
	m.log.WithFields(logrus.Fields{
		"width":  m.width,
		"height": m.height,
		"stride": bo.Stride(),
		"format": m.format,
	}).Debugln("Buffer allocated")
	return nil
}

// PaintAndPresent fills the buffer with the colour and shows it on surface.
func (m *bufferManager) PaintAndPresent(surface Surface) error {
	if m.bo == nil {
		return ErrNotAllocated
	}
	if m.inFlight {
		return ErrBufferBusy
	}

	mapping, err := m.bo.Map()
	if err != nil {
		return setupErr(StagePaint, err)
	}
	canvas, err := NewCanvas(mapping.Data, m.width, m.height, mapping.Stride)
	if err != nil {
		return setupErr(StagePaint, errors.Join(err, m.bo.Unmap(mapping)))
	}
	canvas.Fill(m.color)
	if err := m.bo.Unmap(mapping); err != nil {
		return setupErr(StagePaint, err)
	}

	if err := surface.Attach(m.buffer, 0, 0); err != nil {
		return setupErr(StagePaint, err)
	}
	if err := surface.Damage(0, 0, int32(m.width), int32(m.height)); err != nil {
		return setupErr(StagePaint, err)
	}
	if err := surface.Commit(); err != nil {
		return setupErr(StagePaint, err)
	}

	m.inFlight = true
	m.stats.Paints++
	m.rec.Painted()
	m.log.WithField("color", fmt.Sprintf("%#08x", m.color)).Debugln("Buffer committed")
	return nil
}

// Release implements wayland.BufferHandler.
func (m *bufferManager) Release() {
	m.inFlight = false
	m.stats.Releases++
	m.rec.Released()
	m.log.Traceln("Buffer released by compositor")
}

func (m *bufferManager) Stats() BufferStats {
	s := m.stats
	s.InFlight = m.inFlight
	return s
}

// Destroy drops the compositor buffer first so it never points at a freed
// buffer object. Without a connection the wl_buffer is only forgotten.
func (m *bufferManager) Destroy(connected bool) error {
	var errs []error
	if m.buffer != nil && connected {
		errs = append(errs, m.buffer.Destroy())
	}
	m.buffer = nil
	if m.bo != nil {
		errs = append(errs, m.bo.Destroy())
		m.bo = nil
	}
	m.inFlight = false
	return errors.Join(errs...)
}
