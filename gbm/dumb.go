// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gbm

import (
	"fmt"
	"os"
	"sync"

	"github.com/mstarongithub/simplegbm/drm"
)

const DumbBackendName = "dumb"

// DumbAllocator is a device that can create and export dumb buffers.
type DumbAllocator interface {
	Device
	CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error)
	MapDumb(b *drm.DumbBuffer) ([]byte, error)
	UnmapDumb(data []byte) error
	DestroyDumb(handle uint32) error
	PrimeHandleToFD(handle uint32, flags uint32) (int, error)
}

func init() {
	Register(DumbBackendName, newDumbBackend)
}

type dumbBackend struct {
	dev DumbAllocator
}

func newDumbBackend(dev Device) (Backend, error) {
	a, ok := dev.(DumbAllocator)
	if !ok {
		return nil, fmt.Errorf("%s backend: %s cannot allocate dumb buffers", DumbBackendName, dev.Path())
	}
	return &dumbBackend{dev: a}, nil
}

func (b *dumbBackend) Name() string {
	return DumbBackendName
}

// CreateBuffer ignores usage: dumb buffers are always linear and mappable.
func (b *dumbBackend) CreateBuffer(width, height uint32, format Format, _ Usage) (BufferObject, error) {
	if err := checkRequest(width, height, format); err != nil {
		return nil, err
	}
	db, err := b.dev.CreateDumb(width, height, format.BytesPerPixel()*8)
	if err != nil {
		return nil, err
	}
	return &dumbBuffer{dev: b.dev, db: db, format: format}, nil
}

// Buffers outlive the backend; the device is owned by whoever opened it.
func (b *dumbBackend) Close() error {
	return nil
}

type dumbBuffer struct {
	dev    DumbAllocator
	db     *drm.DumbBuffer
	format Format

	mu        sync.Mutex
	mapped    map[*Mapping]struct{}
	destroyed bool
}

func (b *dumbBuffer) Width() uint32  { return b.db.Width }
func (b *dumbBuffer) Height() uint32 { return b.db.Height }
func (b *dumbBuffer) Format() Format { return b.format }
func (b *dumbBuffer) Stride() uint32 { return b.db.Pitch }

func (b *dumbBuffer) Export() (*os.File, error) {
	if b.isDestroyed() {
		return nil, ErrAlreadyDestroyed
	}
	fd, err := b.dev.PrimeHandleToFD(b.db.Handle, drm.FlagCloexec|drm.FlagReadWrite)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), fmt.Sprintf("dmabuf:%d", b.db.Handle)), nil
}

func (b *dumbBuffer) Map() (*Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil, ErrAlreadyDestroyed
	}
	data, err := b.dev.MapDumb(b.db)
	if err != nil {
		return nil, err
	}
	m := &Mapping{Data: data, Stride: b.db.Pitch}
	if b.mapped == nil {
		b.mapped = make(map[*Mapping]struct{})
	}
	b.mapped[m] = struct{}{}
	return m, nil
}

func (b *dumbBuffer) Unmap(m *Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mapped[m]; !ok {
		return ErrMappingNotFromThis
	}
	delete(b.mapped, m)
	err := b.dev.UnmapDumb(m.Data)
	m.Data = nil
	return err
}

// Destroy drops any mappings still held and frees the handle.
func (b *dumbBuffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrAlreadyDestroyed
	}
	b.destroyed = true
	for m := range b.mapped {
		_ = b.dev.UnmapDumb(m.Data)
		m.Data = nil
	}
	b.mapped = nil
	return b.dev.DestroyDumb(b.db.Handle)
}

func (b *dumbBuffer) isDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}
