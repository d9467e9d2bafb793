// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gbm allocates CPU-mappable, exportable buffers on a DRM device.
// Backends register themselves by name; "dumb" is always available.
package gbm

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unsafe"
)

var (
	ErrUnknownBackend     = errors.New("unknown buffer backend")
	ErrUnsupportedFormat  = errors.New("unsupported pixel format")
	ErrInvalidSize        = errors.New("invalid buffer size")
	ErrAlreadyDestroyed   = errors.New("buffer object already destroyed")
	ErrMappingNotFromThis = errors.New("mapping does not belong to this buffer object")
)

// Format is a DRM fourcc code.
type Format uint32

const (
	FormatXRGB8888 Format = 0x34325258
	FormatARGB8888 Format = 0x34325241
)

var formatNames = map[Format]string{
	FormatXRGB8888: "XRGB8888",
	FormatARGB8888: "ARGB8888",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return fmt.Sprintf("%q (%#08x)", b[:], uint32(f))
}

// BytesPerPixel is 0 for formats this package cannot allocate.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatXRGB8888, FormatARGB8888:
		return 4
	}
	return 0
}

func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Usage flags. The low bits follow libgbm's GBM_BO_USE_* values.
type Usage uint32

const (
	UsageScanout   Usage = 1 << 0
	UsageRendering Usage = 1 << 2
	UsageWrite     Usage = 1 << 3
	UsageLinear    Usage = 1 << 4
	// UsageMap asks for a buffer the CPU can map and write.
	UsageMap Usage = 1 << 16
)

// Mapping is CPU access to a buffer object. Rows are Stride bytes apart.
type Mapping struct {
	Data   []byte
	Stride uint32

	priv unsafe.Pointer
}

// BufferObject is one allocated buffer.
type BufferObject interface {
	Width() uint32
	Height() uint32
	Format() Format
	Stride() uint32
	// Export returns a dma-buf file for the buffer. The caller owns it.
	Export() (*os.File, error)
	Map() (*Mapping, error)
	Unmap(m *Mapping) error
	Destroy() error
}

type Backend interface {
	Name() string
	CreateBuffer(width, height uint32, format Format, usage Usage) (BufferObject, error)
	Close() error
}

// Device is the part of a DRM device backends allocate on.
// *drm.Device implements it.
type Device interface {
	Fd() int
	Path() string
}

// Factory builds a backend on an open, authenticated device.
type Factory func(dev Device) (Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a backend available under name. It panics on duplicates.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic("gbm: backend registered twice: " + name)
	}
	factories[name] = f
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Open(name string, dev Device) (Backend, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (have %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
	return f(dev)
}

func checkRequest(width, height uint32, format Format) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if format.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return nil
}
