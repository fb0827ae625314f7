package buffer

import (
	"context"
	"testing"
)

// fakeMemory is a byte-slice-backed stand-in for a sandbox engine's
// linear memory, used so these tests don't need a real wazero runtime.
// The production Handle is wired to a wazero api.Module's Memory(),
// which satisfies Memory directly.
type fakeMemory struct {
	data []byte
}

func newFakeMemory(size int) *fakeMemory {
	return &fakeMemory{data: make([]byte, size)}
}

func (m *fakeMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+byteCount], true
}

func (m *fakeMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *fakeMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}

func (m *fakeMemory) WriteUint32Le(offset uint32, v uint32) bool {
	return m.Write(offset, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// fakeGuest simulates the guest-owned allocator behind __buffer_reserve:
// on growth it appends fresh zeroed bytes after the header region and
// relocates the buffer there, exactly as a real guest allocator might.
type fakeGuest struct {
	mem       *fakeMemory
	rawPtr    uint32
	dataStart uint32
	reserveN  int
}

func newFakeGuest(headerPtr uint32, dataStart uint32, initialCap uint32) *fakeGuest {
	mem := newFakeMemory(int(dataStart + initialCap + 4096))
	mem.WriteUint32Le(headerPtr, dataStart)
	mem.WriteUint32Le(headerPtr+4, initialCap)
	mem.WriteUint32Le(headerPtr+8, 0)
	return &fakeGuest{mem: mem, rawPtr: headerPtr, dataStart: dataStart}
}

func (g *fakeGuest) reserve(_ context.Context, rawPtr uint32, additional uint32) error {
	g.reserveN++
	hdr, err := DecodeHeader(mustRead(g.mem, rawPtr, HeaderSize))
	if err != nil {
		return err
	}
	if hdr.Len+additional <= hdr.Cap {
		return nil
	}
	newCap := hdr.Len + additional
	newPtr := hdr.Ptr + hdr.Cap + 1024 // relocate, simulating a moving allocator
	if int(newPtr+newCap) > len(g.mem.data) {
		grown := make([]byte, newPtr+newCap+4096)
		copy(grown, g.mem.data)
		g.mem.data = grown
	}
	old, _ := g.mem.Read(hdr.Ptr, hdr.Len)
	g.mem.Write(newPtr, old)
	g.mem.WriteUint32Le(rawPtr, newPtr)
	g.mem.WriteUint32Le(rawPtr+4, newCap)
	return nil
}

func mustRead(m *fakeMemory, off, n uint32) []byte {
	b, ok := m.Read(off, n)
	if !ok {
		panic("out of bounds")
	}
	return b
}

func TestHandle_ClearThenExtendRoundTrips(t *testing.T) {
	g := newFakeGuest(0, 16, 64)
	h := NewHandle(g.mem, g.reserve, g.rawPtr)

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	payload := []byte("hello world")
	if err := h.Extend(context.Background(), payload); err != nil {
		t.Fatal(err)
	}

	got, err := h.Read()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestHandle_ClearIsIdempotent(t *testing.T) {
	g := newFakeGuest(0, 16, 64)
	h := NewHandle(g.mem, g.reserve, g.rawPtr)

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	got, err := h.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", len(got))
	}
}

func TestHandle_GrowthRelocatesAndPreservesContents(t *testing.T) {
	g := newFakeGuest(0, 16, 4) // tiny initial capacity forces growth
	h := NewHandle(g.mem, g.reserve, g.rawPtr)

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	b1 := []byte("0123")
	b2 := []byte("456789")
	if err := h.Extend(context.Background(), b1); err != nil {
		t.Fatal(err)
	}
	if err := h.Extend(context.Background(), b2); err != nil {
		t.Fatal(err)
	}

	if g.reserveN == 0 {
		t.Error("expected at least one reserve call for a payload exceeding initial capacity")
	}

	got, err := h.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := "0123456789"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	hdr, err := h.Header()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Len > hdr.Cap {
		t.Fatalf("invariant violated: len %d > cap %d", hdr.Len, hdr.Cap)
	}
	if hdr.Cap < 10 {
		t.Fatalf("expected final cap >= 10, got %d", hdr.Cap)
	}
}

func TestHandle_ExtendVectoredReservesTotalUpFront(t *testing.T) {
	g := newFakeGuest(0, 16, 2)
	h := NewHandle(g.mem, g.reserve, g.rawPtr)

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := h.ExtendVectored(context.Background(), []byte("ab"), []byte("cd"), []byte("ef")); err != nil {
		t.Fatal(err)
	}
	if g.reserveN != 1 {
		t.Fatalf("expected exactly one reserve call for the combined length, got %d", g.reserveN)
	}

	got, err := h.Read()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
}

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := RawHeader{Ptr: 1000, Cap: 256, Len: 30}
	buf := EncodeHeader(h)
	got, err := DecodeHeader(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}
