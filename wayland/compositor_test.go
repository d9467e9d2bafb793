package wayland

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// Request opcodes the fake compositor understands.
const (
	displaySync             = 0
	displayGetRegistry      = 1
	registryBind            = 0
	compositorCreateSurface = 0
	shellGetShellSurface    = 0
	shellSurfacePong        = 0
	callbackEventDone       = 0
	displayEventDeleteID    = 1
)

type fakeGlobal struct {
	name    uint32
	iface   string
	version uint32
}

// fakeCompositor listens where the client looks for a compositor and
// answers the handful of requests the tests issue.
type fakeCompositor struct {
	conn    *net.UnixConn
	globals []fakeGlobal
	device  string

	wmu sync.Mutex

	mu       sync.Mutex
	objects  map[uint32]string
	last     map[string]uint32
	requests []string
	pending  []int
	fds      []int
}

func newFakeCompositor(t *testing.T, globals ...fakeGlobal) (*fakeCompositor, *Display) {
	t.Helper()
	// Socket paths are length limited, t.TempDir can be too deep.
	dir, err := os.MkdirTemp("", "wl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wayland-test")

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: filepath.Join(dir, "wayland-test"), Net: "unix"})
	require.NoError(t, err)
	accepted := make(chan *net.UnixConn, 1)
	go func() {
		c, err := ln.AcceptUnix()
		if err == nil {
			accepted <- c
		}
	}()

	display, err := Connect(silentLog())
	require.NoError(t, err)

	f := &fakeCompositor{
		globals: globals,
		device:  "/dev/dri/card0",
		objects: map[uint32]string{1: DisplayInterface},
		last:    map[string]uint32{},
	}
	select {
	case f.conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
	go f.serve()

	t.Cleanup(func() {
		display.Close()
		f.conn.Close()
		ln.Close()
		f.mu.Lock()
		for _, fd := range append(f.fds, f.pending...) {
			unix.Close(fd)
		}
		f.mu.Unlock()
	})
	return f, display
}

func silentLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func (f *fakeCompositor) serve() {
	var buf []byte
	chunk := make([]byte, 4096)
	oob := make([]byte, unix.CmsgSpace(4*28))
	for {
		n, oobn, _, _, err := f.conn.ReadMsgUnix(chunk, oob)
		if err != nil {
			return
		}
		if oobn > 0 {
			f.collectFds(oob[:oobn])
		}
		buf = append(buf, chunk[:n]...)
		for len(buf) >= 8 {
			word := binary.NativeEndian.Uint32(buf[4:])
			size := int(word >> 16)
			if size < 8 {
				return
			}
			if len(buf) < size {
				break
			}
			f.handle(binary.NativeEndian.Uint32(buf), uint16(word), &args{f: f, b: buf[8:size]})
			buf = buf[size:]
		}
	}
}

func (f *fakeCompositor) collectFds(oob []byte) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return
	}
	for _, m := range msgs {
		fds, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.pending = append(f.pending, fds...)
		f.mu.Unlock()
	}
}

type args struct {
	f *fakeCompositor
	b []byte
}

func (a *args) uint() uint32 {
	if len(a.b) < 4 {
		return 0
	}
	v := binary.NativeEndian.Uint32(a.b)
	a.b = a.b[4:]
	return v
}

func (a *args) int() int32 {
	return int32(a.uint())
}

func (a *args) str() string {
	n := int(a.uint())
	if n == 0 || len(a.b) < n {
		return ""
	}
	s := string(a.b[:n-1])
	a.b = a.b[min((n+3)&^3, len(a.b)):]
	return s
}

func (a *args) fd() int {
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	if len(a.f.pending) == 0 {
		return -1
	}
	fd := a.f.pending[0]
	a.f.pending = a.f.pending[1:]
	a.f.fds = append(a.f.fds, fd)
	return fd
}

// send writes one event. Arguments are uint32, int32 or string.
func (f *fakeCompositor) send(id uint32, opcode uint16, values ...any) {
	var body []byte
	for _, v := range values {
		switch v := v.(type) {
		case uint32:
			body = binary.NativeEndian.AppendUint32(body, v)
		case int32:
			body = binary.NativeEndian.AppendUint32(body, uint32(v))
		case string:
			body = binary.NativeEndian.AppendUint32(body, uint32(len(v)+1))
			body = append(body, v...)
			body = append(body, make([]byte, 4-len(v)%4)...)
		}
	}
	msg := binary.NativeEndian.AppendUint32(nil, id)
	msg = binary.NativeEndian.AppendUint32(msg, uint32(len(body)+8)<<16|uint32(opcode))
	msg = append(msg, body...)

	f.wmu.Lock()
	defer f.wmu.Unlock()
	_, _ = f.conn.Write(msg)
}

func (f *fakeCompositor) record(s string) {
	f.mu.Lock()
	f.requests = append(f.requests, s)
	f.mu.Unlock()
}

func (f *fakeCompositor) track(id uint32, iface string) {
	f.mu.Lock()
	f.objects[id] = iface
	f.last[iface] = id
	f.mu.Unlock()
}

// lastID returns the newest object the client created with iface.
func (f *fakeCompositor) lastID(iface string) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[iface]
}

func (f *fakeCompositor) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeCompositor) handle(sender uint32, opcode uint16, a *args) {
	f.mu.Lock()
	iface := f.objects[sender]
	f.mu.Unlock()

	switch {
	case iface == DisplayInterface && opcode == displaySync:
		id := a.uint()
		f.send(id, callbackEventDone, uint32(0))
		f.send(1, displayEventDeleteID, id)
	case iface == DisplayInterface && opcode == displayGetRegistry:
		id := a.uint()
		f.track(id, RegistryInterface)
		for _, g := range f.globals {
			f.send(id, registryEventGlobal, g.name, g.iface, g.version)
		}
	case iface == RegistryInterface && opcode == registryBind:
		name := a.uint()
		bound := a.str()
		version := a.uint()
		id := a.uint()
		f.track(id, bound)
		f.record(fmt.Sprintf("bind %d %s v%d", name, bound, version))
		if bound == DrmInterface {
			f.send(id, drmEventDevice, f.device)
			f.send(id, drmEventFormat, uint32(0x34325258))
		}
	case iface == CompositorInterface && opcode == compositorCreateSurface:
		f.track(a.uint(), SurfaceInterface)
		f.record(fmt.Sprintf("%s.%d", iface, opcode))
	case iface == ShellInterface && opcode == shellGetShellSurface:
		f.track(a.uint(), ShellSurfaceInterface)
		f.record(fmt.Sprintf("%s.%d", iface, opcode))
	case iface == DrmInterface && opcode == drmAuthenticate:
		f.record(fmt.Sprintf("authenticate %d", a.uint()))
		f.send(sender, drmEventAuthenticated)
	case iface == DrmInterface && opcode == drmCreatePrimeBuffer:
		id := a.uint()
		fd := a.fd()
		width := a.int()
		height := a.int()
		format := a.uint()
		offset0 := a.int()
		stride0 := a.int()
		f.track(id, BufferInterface)
		f.record(fmt.Sprintf("prime %dx%d %#x offset %d stride %d fd %t", width, height, format, offset0, stride0, fd >= 0))
	case iface == ShellSurfaceInterface && opcode == shellSurfacePong:
		f.record(fmt.Sprintf("pong %d", a.uint()))
	default:
		f.record(fmt.Sprintf("%s.%d", iface, opcode))
	}
}
