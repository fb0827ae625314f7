// Package codec implements the deterministic binary codec that sits
// underneath the RPC frame format: a 4-byte little-endian length prefix
// for RPC names, and a canonical CBOR encoding for values, so that two
// encodes of structurally equal values always produce byte-identical
// output.
//
// Frames are: a length-prefixed UTF-8 name, followed by a
// codec-serialized value (the args tuple on a call, the result on a
// return). Encode/Decode handle the value half; EncodeName/DecodeName
// handle the name half.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode is configured once for canonical, deterministic output: sorted
// map keys and shortest-form integers, so identical values always encode
// to identical bytes regardless of construction order.
var encMode = func() cbor.EncMode {
	m, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building deterministic EncMode: %v", err))
	}
	return m
}()

// Encode serializes v to its deterministic binary form.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return b, nil
}

// Decode deserializes data into v, which must be a pointer.
func Decode(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// EncodeName renders an RPC name as a length-prefixed UTF-8 string: a
// 4-byte little-endian length followed by the UTF-8 bytes themselves —
// the name field of an RPC frame.
func EncodeName(name string) []byte {
	buf := make([]byte, 4+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(name)))
	copy(buf[4:], name)
	return buf
}

// DecodeName reads a length-prefixed UTF-8 name from the front of buf,
// returning the name and the number of bytes consumed.
func DecodeName(buf []byte) (name string, consumed int, err error) {
	if len(buf) < 4 {
		return "", 0, fmt.Errorf("codec: name length prefix needs 4 bytes, got %d", len(buf))
	}
	length := binary.LittleEndian.Uint32(buf[0:4])
	end := 4 + int(length)
	if end > len(buf) {
		return "", 0, fmt.Errorf("codec: name claims %d bytes, only %d available", length, len(buf)-4)
	}
	return string(buf[4:end]), end, nil
}

// EncodeFrame renders a full RPC frame: a length-prefixed name followed
// by the codec-serialized args value.
func EncodeFrame(name string, args any) ([]byte, error) {
	argBytes, err := Encode(args)
	if err != nil {
		return nil, err
	}
	nameBytes := EncodeName(name)
	frame := make([]byte, 0, len(nameBytes)+len(argBytes))
	frame = append(frame, nameBytes...)
	frame = append(frame, argBytes...)
	return frame, nil
}

// DecodeFrame splits a full RPC frame into its name and the raw
// remaining bytes, which the caller decodes as the handler's args type.
func DecodeFrame(frame []byte) (name string, argBytes []byte, err error) {
	name, consumed, err := DecodeName(frame)
	if err != nil {
		return "", nil, err
	}
	return name, frame[consumed:], nil
}
