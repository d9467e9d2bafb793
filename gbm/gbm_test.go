package gbm

import (
	"errors"
	"testing"

	"github.com/mstarongithub/simplegbm/drm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// memDevice hands out dumb buffers backed by memfds.
type memDevice struct {
	next      uint32
	buffers   map[uint32]int
	destroyed []uint32
	unmapped  int
}

func newMemDevice(t *testing.T) *memDevice {
	d := &memDevice{next: 1, buffers: map[uint32]int{}}
	t.Cleanup(func() {
		for _, fd := range d.buffers {
			unix.Close(fd)
		}
	})
	return d
}

func (d *memDevice) Fd() int      { return -1 }
func (d *memDevice) Path() string { return "mem" }

func (d *memDevice) CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error) {
	pitch := (width*bpp/8 + 63) &^ 63
	size := uint64(pitch) * uint64(height)
	fd, err := unix.MemfdCreate("dumb", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	h := d.next
	d.next++
	d.buffers[h] = fd
	return &drm.DumbBuffer{Handle: h, Width: width, Height: height, BPP: bpp, Pitch: pitch, Size: size}, nil
}

func (d *memDevice) MapDumb(b *drm.DumbBuffer) ([]byte, error) {
	return unix.Mmap(d.buffers[b.Handle], 0, int(b.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *memDevice) UnmapDumb(data []byte) error {
	d.unmapped++
	return unix.Munmap(data)
}

func (d *memDevice) DestroyDumb(handle uint32) error {
	d.destroyed = append(d.destroyed, handle)
	return nil
}

func (d *memDevice) PrimeHandleToFD(handle uint32, _ uint32) (int, error) {
	fd, ok := d.buffers[handle]
	if !ok {
		return -1, errors.New("no such handle")
	}
	return unix.Dup(fd)
}

type plainDevice struct{}

func (plainDevice) Fd() int      { return -1 }
func (plainDevice) Path() string { return "plain" }

func TestFormat(t *testing.T) {
	assert.Equal(t, "XRGB8888", FormatXRGB8888.String())
	assert.Equal(t, uint32(4), FormatXRGB8888.BytesPerPixel())
	assert.Zero(t, Format(0x3231564e).BytesPerPixel())

	f, err := ParseFormat("xrgb8888")
	require.NoError(t, err)
	assert.Equal(t, FormatXRGB8888, f)

	_, err = ParseFormat("NV12")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("vulkan", plainDevice{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, Backends(), DumbBackendName)
}

func TestDumbBackendNeedsAllocator(t *testing.T) {
	_, err := Open(DumbBackendName, plainDevice{})
	assert.Error(t, err)
}

func TestDumbBufferLifecycle(t *testing.T) {
	dev := newMemDevice(t)
	backend, err := Open(DumbBackendName, dev)
	require.NoError(t, err)
	defer backend.Close()

	bo, err := backend.CreateBuffer(250, 250, FormatXRGB8888, UsageMap|UsageLinear)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), bo.Width())
	assert.Equal(t, uint32(250), bo.Height())
	assert.Equal(t, FormatXRGB8888, bo.Format())
	assert.Equal(t, uint32(1024), bo.Stride())

	m, err := bo.Map()
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), m.Stride)
	require.Len(t, m.Data, 1024*250)
	m.Data[0] = 0x77
	require.NoError(t, bo.Unmap(m))
	assert.Nil(t, m.Data)
	assert.ErrorIs(t, bo.Unmap(m), ErrMappingNotFromThis)

	f, err := bo.Export()
	require.NoError(t, err)
	first := make([]byte, 1)
	_, err = f.ReadAt(first, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x77), first[0])
	require.NoError(t, f.Close())

	_, err = bo.Map()
	require.NoError(t, err)
	require.NoError(t, bo.Destroy())
	assert.Equal(t, []uint32{1}, dev.destroyed)
	assert.Equal(t, 2, dev.unmapped)

	assert.ErrorIs(t, bo.Destroy(), ErrAlreadyDestroyed)
	_, err = bo.Export()
	assert.ErrorIs(t, err, ErrAlreadyDestroyed)
}

func TestCreateBufferRejectsBadRequests(t *testing.T) {
	backend, err := Open(DumbBackendName, newMemDevice(t))
	require.NoError(t, err)

	_, err = backend.CreateBuffer(0, 10, FormatXRGB8888, UsageMap)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = backend.CreateBuffer(10, 10, Format(0x3231564e), UsageMap)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
