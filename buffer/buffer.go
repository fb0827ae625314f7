// Package buffer implements the cross-sandbox buffer protocol: a single
// growable byte arena that lives in guest linear memory, a 12-byte
// RawHeader describing it, and a Handle giving the host a scope-bounded
// view over it for the duration of one host-call.
//
// Ownership: the guest exclusively owns the backing
// allocation. The host only ever borrows it through a Handle, and a
// Handle must never outlive the host-call that created it — the guest's
// allocator is free to relocate the backing bytes on its very next
// write, which is exactly what growth via the reserve trampoline does.
package buffer

import (
	"context"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size in bytes of RawHeader as laid out in guest
// memory: three little-endian u32 fields, naturally 4-byte aligned.
const HeaderSize = 12

// RawHeader is the plain-old-data record stored at a well-known address
// in guest linear memory. Invariant: Len <= Cap, and Ptr points to an
// allocation of at least Cap bytes in guest memory.
type RawHeader struct {
	Ptr uint32
	Cap uint32
	Len uint32
}

// Memory is the subset of a sandbox engine's memory view the buffer
// protocol needs. wazero's api.Memory satisfies this directly; the core
// never depends on wazero's api package here so that the protocol stays
// expressible against any {read, write} view of guest linear memory.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset uint32, v uint32) bool
}

// Reserve invokes the guest-exported growth trampoline
// (__buffer_reserve(rawPtr, additional)), asking the guest's own
// allocator to ensure at least `additional` more bytes of capacity
// beyond the buffer's current length. The guest may relocate the backing
// allocation; callers must re-read the header afterwards.
type Reserve func(ctx context.Context, rawPtr uint32, additional uint32) error

// Handle is the host's ephemeral view of one RawBuffer, scoped to a
// single host-call. Do not retain a Handle (or slices obtained from
// Read) past the host-call that produced it: the guest may grow and
// relocate the allocation on its next write.
type Handle struct {
	mem     Memory
	reserve Reserve
	rawPtr  uint32
}

// NewHandle creates a Handle over the RawHeader at rawPtr in mem, using
// reserve to grow the backing allocation when needed.
func NewHandle(mem Memory, reserve Reserve, rawPtr uint32) *Handle {
	return &Handle{mem: mem, reserve: reserve, rawPtr: rawPtr}
}

// Header reads the current RawHeader from guest memory. Call this again
// after any operation that may have triggered growth — the guest
// allocator may have relocated Ptr.
func (h *Handle) Header() (RawHeader, error) {
	ptr, ok := h.mem.ReadUint32Le(h.rawPtr)
	if !ok {
		return RawHeader{}, fmt.Errorf("buffer: read ptr at %#x: out of bounds", h.rawPtr)
	}
	cap_, ok := h.mem.ReadUint32Le(h.rawPtr + 4)
	if !ok {
		return RawHeader{}, fmt.Errorf("buffer: read cap at %#x: out of bounds", h.rawPtr+4)
	}
	length, ok := h.mem.ReadUint32Le(h.rawPtr + 8)
	if !ok {
		return RawHeader{}, fmt.Errorf("buffer: read len at %#x: out of bounds", h.rawPtr+8)
	}
	if length > cap_ {
		return RawHeader{}, fmt.Errorf("buffer: invariant violated: len %d > cap %d", length, cap_)
	}
	return RawHeader{Ptr: ptr, Cap: cap_, Len: length}, nil
}

func (h *Handle) writeLen(length uint32) error {
	if !h.mem.WriteUint32Le(h.rawPtr+8, length) {
		return fmt.Errorf("buffer: write len at %#x: out of bounds", h.rawPtr+8)
	}
	return nil
}

// Read returns a copy of the bytes currently in the buffer (ptr..ptr+len).
// The returned slice is a copy precisely so it is safe to retain past the
// Handle's scope; callers that want to avoid the copy should finish
// working with the data before the next mutating call.
func (h *Handle) Read() ([]byte, error) {
	hdr, err := h.Header()
	if err != nil {
		return nil, err
	}
	if hdr.Len == 0 {
		return nil, nil
	}
	data, ok := h.mem.Read(hdr.Ptr, hdr.Len)
	if !ok {
		return nil, fmt.Errorf("buffer: read %d bytes at %#x: out of bounds", hdr.Len, hdr.Ptr)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Clear sets Len to 0. Cap and Ptr are untouched; this is a no-op on an
// already-empty buffer.
func (h *Handle) Clear() error {
	return h.writeLen(0)
}

// Extend reserves room for len(data) additional bytes beyond the current
// length (growing through the trampoline if necessary), then appends
// data and updates Len. It re-reads the header after any reservation,
// since the guest allocator may have relocated Ptr.
func (h *Handle) Extend(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	hdr, err := h.Header()
	if err != nil {
		return err
	}
	additional := uint32(len(data))
	if hdr.Len+additional > hdr.Cap {
		if h.reserve == nil {
			return fmt.Errorf("buffer: need %d more bytes but no reserve trampoline configured", additional)
		}
		if err := h.reserve(ctx, h.rawPtr, additional); err != nil {
			return fmt.Errorf("buffer: reserve: %w", err)
		}
		hdr, err = h.Header()
		if err != nil {
			return err
		}
		if hdr.Len+additional > hdr.Cap {
			return fmt.Errorf("buffer: reserve did not grow enough capacity: need %d, have cap %d len %d", additional, hdr.Cap, hdr.Len)
		}
	}
	if !h.mem.Write(hdr.Ptr+hdr.Len, data) {
		return fmt.Errorf("buffer: write %d bytes at %#x: out of bounds", len(data), hdr.Ptr+hdr.Len)
	}
	return h.writeLen(hdr.Len + additional)
}

// ExtendVectored reserves room for the total length of all buffers up
// front, then writes them in order — so a partial reservation never
// leaves some chunks written and others missing.
func (h *Handle) ExtendVectored(ctx context.Context, chunks ...[]byte) error {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	if total == 0 {
		return nil
	}
	joined := make([]byte, 0, total)
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	return h.Extend(ctx, joined)
}

// EncodeHeader renders a RawHeader to its 12-byte little-endian wire
// form, for tests and for guest-side simulation harnesses that need to
// construct an initial buffer by hand.
func EncodeHeader(h RawHeader) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Ptr)
	binary.LittleEndian.PutUint32(buf[4:8], h.Cap)
	binary.LittleEndian.PutUint32(buf[8:12], h.Len)
	return buf
}

// DecodeHeader parses a 12-byte little-endian RawHeader.
func DecodeHeader(buf []byte) (RawHeader, error) {
	if len(buf) < HeaderSize {
		return RawHeader{}, fmt.Errorf("buffer: header needs %d bytes, got %d", HeaderSize, len(buf))
	}
	return RawHeader{
		Ptr: binary.LittleEndian.Uint32(buf[0:4]),
		Cap: binary.LittleEndian.Uint32(buf[4:8]),
		Len: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}
