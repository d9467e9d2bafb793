// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux && cgo && libgbm

package gbm

/*
#cgo pkg-config: gbm
#include <stdlib.h>
#include <gbm.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

const LibgbmBackendName = "gbm"

func init() {
	Register(LibgbmBackendName, newLibgbmBackend)
}

type libgbmBackend struct {
	dev *C.struct_gbm_device
}

func newLibgbmBackend(dev Device) (Backend, error) {
	g := C.gbm_create_device(C.int(dev.Fd()))
	if g == nil {
		return nil, fmt.Errorf("gbm_create_device on %s failed", dev.Path())
	}
	return &libgbmBackend{dev: g}, nil
}

func (b *libgbmBackend) Name() string {
	return LibgbmBackendName
}

func usageFlags(u Usage) C.uint32_t {
	flags := uint32(u &^ UsageMap)
	if u&UsageMap != 0 {
		flags |= uint32(UsageLinear)
	}
	return C.uint32_t(flags)
}

func (b *libgbmBackend) CreateBuffer(width, height uint32, format Format, usage Usage) (BufferObject, error) {
	if err := checkRequest(width, height, format); err != nil {
		return nil, err
	}
	if C.gbm_device_is_format_supported(b.dev, C.uint32_t(format), usageFlags(usage)) == 0 {
		return nil, fmt.Errorf("%w: %s with usage %#x", ErrUnsupportedFormat, format, uint32(usage))
	}
	bo := C.gbm_bo_create(b.dev, C.uint32_t(width), C.uint32_t(height), C.uint32_t(format), usageFlags(usage))
	if bo == nil {
		return nil, fmt.Errorf("gbm_bo_create %dx%d %s failed", width, height, format)
	}
	return &libgbmBuffer{bo: bo, width: width, height: height, format: format}, nil
}

func (b *libgbmBackend) Close() error {
	if b.dev == nil {
		return nil
	}
	C.gbm_device_destroy(b.dev)
	b.dev = nil
	return nil
}

type libgbmBuffer struct {
	bo     *C.struct_gbm_bo
	width  uint32
	height uint32
	format Format

	mu sync.Mutex
}

func (b *libgbmBuffer) Width() uint32  { return b.width }
func (b *libgbmBuffer) Height() uint32 { return b.height }
func (b *libgbmBuffer) Format() Format { return b.format }

func (b *libgbmBuffer) Stride() uint32 {
	return uint32(C.gbm_bo_get_stride(b.bo))
}

func (b *libgbmBuffer) Export() (*os.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bo == nil {
		return nil, ErrAlreadyDestroyed
	}
	fd := C.gbm_bo_get_fd(b.bo)
	if fd < 0 {
		return nil, errors.New("gbm_bo_get_fd failed")
	}
	return os.NewFile(uintptr(fd), "dmabuf"), nil
}

func (b *libgbmBuffer) Map() (*Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bo == nil {
		return nil, ErrAlreadyDestroyed
	}
	var stride C.uint32_t
	var mapData unsafe.Pointer
	ptr := C.gbm_bo_map(b.bo, 0, 0, C.uint32_t(b.width), C.uint32_t(b.height),
		C.GBM_BO_TRANSFER_WRITE, &stride, &mapData)
	if ptr == nil {
		return nil, errors.New("gbm_bo_map failed")
	}
	size := int(stride) * int(b.height)
	return &Mapping{
		Data:   unsafe.Slice((*byte)(ptr), size),
		Stride: uint32(stride),
		priv:   mapData,
	}, nil
}

func (b *libgbmBuffer) Unmap(m *Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bo == nil {
		return ErrAlreadyDestroyed
	}
	if m.priv == nil {
		return ErrMappingNotFromThis
	}
	C.gbm_bo_unmap(b.bo, m.priv)
	m.priv = nil
	m.Data = nil
	return nil
}

func (b *libgbmBuffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bo == nil {
		return ErrAlreadyDestroyed
	}
	C.gbm_bo_destroy(b.bo)
	b.bo = nil
	return nil
}
