package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mstarongithub/simplegbm/gbm"
	"github.com/mstarongithub/simplegbm/wayland"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type announcement struct {
	name    uint32
	iface   string
	version uint32
}

// fakeTransport plays a compositor. Events are queued and delivered in
// order by Roundtrip and Dispatch; handlers may queue more.
type fakeTransport struct {
	globals      []announcement
	device       string
	formats      []uint32
	earlyAuth    bool
	dispatchFail int

	registry wayland.RegistryHandler
	queue    []func()

	requests   []string
	roundtrips int
	dispatches int
	magics     []uint32
	pongs      []uint32
	pongErr    error
	buffers    []*fakeBuffer
	primes     []primeRequest
	nextID     uint32
}

type primeRequest struct {
	fdValid bool
	width   int32
	height  int32
	format  uint32
	offsets [3]int32
	strides [3]int32
}

func newFakeTransport(globals ...announcement) *fakeTransport {
	return &fakeTransport{
		globals: globals,
		device:  "/dev/dri/renderD128",
		formats: []uint32{uint32(gbm.FormatARGB8888), uint32(gbm.FormatXRGB8888)},
		nextID:  10,
	}
}

func standardGlobals() []announcement {
	return []announcement{
		{1, wayland.CompositorInterface, 4},
		{2, wayland.ShellInterface, 1},
		{3, wayland.DrmInterface, 2},
	}
}

func (t *fakeTransport) post(fn func()) {
	t.queue = append(t.queue, fn)
}

func (t *fakeTransport) drain() {
	for len(t.queue) > 0 {
		fn := t.queue[0]
		t.queue = t.queue[1:]
		fn()
	}
}

func (t *fakeTransport) id() uint32 {
	t.nextID++
	return t.nextID
}

func (t *fakeTransport) Listen(h wayland.RegistryHandler) error {
	t.registry = h
	for _, g := range t.globals {
		t.post(func() { h.Global(g.name, g.iface, g.version) })
	}
	return nil
}

func (t *fakeTransport) BindCompositor(name, version uint32) (Compositor, error) {
	t.requests = append(t.requests, fmt.Sprintf("bind %s v%d", wayland.CompositorInterface, version))
	return &fakeCompositor{t: t}, nil
}

func (t *fakeTransport) BindShell(name, version uint32) (Shell, error) {
	t.requests = append(t.requests, fmt.Sprintf("bind %s v%d", wayland.ShellInterface, version))
	return &fakeShell{t: t}, nil
}

func (t *fakeTransport) BindDrm(name, version uint32, h wayland.DrmHandler) (Drm, error) {
	t.requests = append(t.requests, fmt.Sprintf("bind %s v%d", wayland.DrmInterface, version))
	if t.earlyAuth {
		t.post(h.Authenticated)
	}
	t.post(func() { h.Device(t.device) })
	for _, f := range t.formats {
		t.post(func() { h.Format(f) })
	}
	t.post(func() { h.Capabilities(wayland.DrmCapabilityPrime) })
	return &fakeDrm{t: t, h: h}, nil
}

func (t *fakeTransport) Roundtrip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.roundtrips++
	t.drain()
	return nil
}

func (t *fakeTransport) Dispatch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.dispatches++
	if t.dispatchFail > 0 && t.dispatches >= t.dispatchFail {
		return io.ErrUnexpectedEOF
	}
	t.drain()
	return nil
}

type fakeCompositor struct{ t *fakeTransport }

func (c *fakeCompositor) CreateSurface() (Surface, error) {
	c.t.requests = append(c.t.requests, "create_surface")
	return &fakeSurface{t: c.t, id: c.t.id()}, nil
}

type fakeSurface struct {
	t  *fakeTransport
	id uint32
}

func (s *fakeSurface) Attach(buffer Buffer, x, y int32) error {
	s.t.requests = append(s.t.requests, fmt.Sprintf("attach %d %d %d", buffer.(*fakeBuffer).id, x, y))
	return nil
}

func (s *fakeSurface) Damage(x, y, width, height int32) error {
	s.t.requests = append(s.t.requests, fmt.Sprintf("damage %d %d %d %d", x, y, width, height))
	return nil
}

func (s *fakeSurface) Commit() error {
	s.t.requests = append(s.t.requests, "commit")
	return nil
}

type fakeShell struct{ t *fakeTransport }

func (s *fakeShell) GetShellSurface(surface Surface, h wayland.ShellSurfaceHandler) (ShellSurface, error) {
	s.t.requests = append(s.t.requests, "get_shell_surface")
	return &fakeShellSurface{t: s.t, h: h}, nil
}

type fakeShellSurface struct {
	t *fakeTransport
	h wayland.ShellSurfaceHandler
}

func (s *fakeShellSurface) Pong(serial uint32) error {
	if s.t.pongErr != nil {
		return s.t.pongErr
	}
	s.t.pongs = append(s.t.pongs, serial)
	return nil
}

func (s *fakeShellSurface) SetToplevel() error {
	s.t.requests = append(s.t.requests, "set_toplevel")
	return nil
}

func (s *fakeShellSurface) SetTitle(title string) error {
	s.t.requests = append(s.t.requests, "set_title "+title)
	return nil
}

type fakeDrm struct {
	t *fakeTransport
	h wayland.DrmHandler
}

func (d *fakeDrm) Authenticate(magic uint32) error {
	d.t.magics = append(d.t.magics, magic)
	d.t.post(d.h.Authenticated)
	return nil
}

func (d *fakeDrm) CreatePrimeBuffer(fd int, width, height int32, format uint32, offsets, strides [3]int32, h wayland.BufferHandler) (Buffer, error) {
	var st unix.Stat_t
	err := unix.Fstat(fd, &st)
	d.t.primes = append(d.t.primes, primeRequest{
		fdValid: err == nil,
		width:   width,
		height:  height,
		format:  format,
		offsets: offsets,
		strides: strides,
	})
	b := &fakeBuffer{id: d.t.id(), h: h}
	d.t.buffers = append(d.t.buffers, b)
	return b, nil
}

type fakeBuffer struct {
	id        uint32
	h         wayland.BufferHandler
	destroyed bool
}

func (b *fakeBuffer) Destroy() error {
	b.destroyed = true
	return nil
}

type fakeDevice struct {
	path   string
	magic  uint32
	closed bool
}

func (d *fakeDevice) GetMagic() (uint32, error) { return d.magic, nil }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// padByte marks bytes outside the visible pixels.
const padByte = 0xee

type fakeBackend struct {
	stridePad uint32
	created   []*fakeBO
	closed    bool
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) CreateBuffer(width, height uint32, format gbm.Format, usage gbm.Usage) (gbm.BufferObject, error) {
	stride := width*format.BytesPerPixel() + b.stridePad
	data := make([]byte, stride*height)
	for i := range data {
		data[i] = padByte
	}
	bo := &fakeBO{width: width, height: height, format: format, stride: stride, data: data, usage: usage}
	b.created = append(b.created, bo)
	return bo, nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

type fakeBO struct {
	width, height uint32
	format        gbm.Format
	stride        uint32
	usage         gbm.Usage
	data          []byte

	maps, unmaps int
	exported     []*os.File
	destroyed    bool
}

func (b *fakeBO) Width() uint32      { return b.width }
func (b *fakeBO) Height() uint32     { return b.height }
func (b *fakeBO) Format() gbm.Format { return b.format }
func (b *fakeBO) Stride() uint32     { return b.stride }

func (b *fakeBO) Export() (*os.File, error) {
	f, err := os.Open(os.DevNull)
	if err != nil {
		return nil, err
	}
	b.exported = append(b.exported, f)
	return f, nil
}

func (b *fakeBO) Map() (*gbm.Mapping, error) {
	b.maps++
	return &gbm.Mapping{Data: b.data, Stride: b.stride}, nil
}

func (b *fakeBO) Unmap(*gbm.Mapping) error {
	b.unmaps++
	return nil
}

func (b *fakeBO) Destroy() error {
	b.destroyed = true
	return nil
}

type countingRecorder struct {
	pings, paints, releases int
}

func (r *countingRecorder) PingAnswered() { r.pings++ }
func (r *countingRecorder) Painted()      { r.paints++ }
func (r *countingRecorder) Released()     { r.releases++ }

type harness struct {
	t        *fakeTransport
	backend  *fakeBackend
	devices  []*fakeDevice
	recorder *countingRecorder
	client   *Client
}

func silentLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newHarness(t *fakeTransport, mutate ...func(*Options)) (*harness, error) {
	h := &harness{
		t:        t,
		backend:  &fakeBackend{stridePad: 24},
		recorder: &countingRecorder{},
	}
	opts := Options{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Color:  DefaultColor,
		OpenDevice: func(path string) (Device, error) {
			d := &fakeDevice{path: path, magic: 0xc0ffee}
			h.devices = append(h.devices, d)
			return d, nil
		},
		NewBackend: func(Device) (gbm.Backend, error) { return h.backend, nil },
		Log:        silentLog(),
		Recorder:   h.recorder,
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(t, opts)
	if err != nil {
		return nil, err
	}
	h.client = c
	return h, nil
}
