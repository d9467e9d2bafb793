// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package drm is the device side of simplegbm: authenticating against a
// compositor and allocating, mapping and exporting dumb buffers.
package drm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"unsafe"

	kms "github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/ioctl"
	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"
)

// Requests the kms package has no wrapper for.
var (
	ioctlGetMagic        = ioctl.NewCode(ioctl.Read, 4, 'd', 0x02)
	ioctlPrimeHandleToFD = ioctl.NewCode(ioctl.Read|ioctl.Write, 12, 'd', 0x2d)
)

// Capabilities queried through GetCap.
const (
	CapDumbBuffer = 0x1
	CapPrime      = 0x5
)

// Prime capability bits.
const (
	PrimeCapImport = 0x1
	PrimeCapExport = 0x2
)

// Flags for PrimeHandleToFD.
const (
	FlagCloexec   = unix.O_CLOEXEC
	FlagReadWrite = unix.O_RDWR
)

var (
	ErrClosed  = errors.New("drm device closed")
	ErrTooWide = errors.New("dumb buffer dimension too large")
)

type authArg struct {
	magic uint32
}

type primeHandleArg struct {
	handle uint32
	flags  uint32
	fd     int32
}

// Device is an open DRM device node.
type Device struct {
	f    *os.File
	path string
}

// Open opens the device node at path for reading and writing.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open drm device: %w", err)
	}
	return &Device{f: f, path: path}, nil
}

func (d *Device) Path() string {
	return d.path
}

// Fd returns the raw descriptor. It stays valid until Close.
func (d *Device) Fd() int {
	return int(d.f.Fd())
}

func (d *Device) Close() error {
	if d.f == nil {
		return ErrClosed
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) error {
	if d.f == nil {
		return ErrClosed
	}
	for {
		err := ioctl.Do(d.f.Fd(), req, uintptr(arg))
		if !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) {
			return err
		}
	}
}

// GetMagic returns the authentication token the compositor needs to
// grant this open file render access.
func (d *Device) GetMagic() (uint32, error) {
	var arg authArg
	if err := d.ioctl(uintptr(ioctlGetMagic), unsafe.Pointer(&arg)); err != nil {
		return 0, fmt.Errorf("get magic on %s: %w", d.path, err)
	}
	return arg.magic, nil
}

func (d *Device) GetCap(capability uint64) (uint64, error) {
	if d.f == nil {
		return 0, ErrClosed
	}
	v, err := kms.GetCap(d.f, capability)
	if err != nil {
		return 0, fmt.Errorf("get cap %#x on %s: %w", capability, d.path, err)
	}
	return v, nil
}

// HasDumbBuffers reports whether the driver supports dumb buffers.
func (d *Device) HasDumbBuffers() bool {
	return d.f != nil && kms.HasDumbBuffer(d.f)
}

// CanExportPrime reports whether buffer handles can be turned into dma-buf fds.
func (d *Device) CanExportPrime() bool {
	v, err := d.GetCap(CapPrime)
	return err == nil && v&PrimeCapExport != 0
}

// DumbBuffer describes a buffer created by CreateDumb. Pitch is the
// driver-chosen row stride in bytes.
type DumbBuffer struct {
	Handle uint32
	Width  uint32
	Height uint32
	BPP    uint32
	Pitch  uint32
	Size   uint64
}

func (d *Device) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	if d.f == nil {
		return nil, ErrClosed
	}
	if width > math.MaxUint16 || height > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooWide, width, height)
	}
	fb, err := mode.CreateFB(d.f, uint16(width), uint16(height), bpp)
	if err != nil {
		return nil, fmt.Errorf("create dumb %dx%d@%d: %w", width, height, bpp, err)
	}
	return &DumbBuffer{
		Handle: uint32(fb.Handle),
		Width:  width,
		Height: height,
		BPP:    bpp,
		Pitch:  uint32(fb.Pitch),
		Size:   uint64(fb.Size),
	}, nil
}

// MapDumb maps the whole buffer read-write.
func (d *Device) MapDumb(b *DumbBuffer) ([]byte, error) {
	if d.f == nil {
		return nil, ErrClosed
	}
	offset, err := mode.MapDumb(d.f, b.Handle)
	if err != nil {
		return nil, fmt.Errorf("map dumb %d: %w", b.Handle, err)
	}
	data, err := unix.Mmap(d.Fd(), int64(offset), int(b.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap dumb %d: %w", b.Handle, err)
	}
	return data, nil
}

// UnmapDumb releases a mapping returned by MapDumb.
func (d *Device) UnmapDumb(data []byte) error {
	return unix.Munmap(data)
}

func (d *Device) DestroyDumb(handle uint32) error {
	if d.f == nil {
		return ErrClosed
	}
	if err := mode.DestroyDumb(d.f, handle); err != nil {
		return fmt.Errorf("destroy dumb %d: %w", handle, err)
	}
	return nil
}

// PrimeHandleToFD exports a GEM handle as a dma-buf descriptor owned by
// the caller.
func (d *Device) PrimeHandleToFD(handle uint32, flags uint32) (int, error) {
	arg := primeHandleArg{handle: handle, flags: flags, fd: -1}
	if err := d.ioctl(uintptr(ioctlPrimeHandleToFD), unsafe.Pointer(&arg)); err != nil {
		return -1, fmt.Errorf("export handle %d: %w", handle, err)
	}
	return int(arg.fd), nil
}
