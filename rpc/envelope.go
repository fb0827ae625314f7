package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/gogpu/quillhost/codec"
)

// Envelope is the Result-shaped wire value written into the return half
// of a frame: either Ok carries the handler's success value, or Err
// carries a recoverable failure. Ok is kept as a raw CBOR value so a
// round trip through the wire doesn't need to know the concrete Go type
// until the final decode at the call site.
type Envelope struct {
	Ok  cbor.RawMessage `cbor:"ok,omitempty"`
	Err *WireError      `cbor:"err,omitempty"`
}

// WireError is the serialized form of a recoverable error (Protocol,
// Query, NotFound). Fatal errors (Sandbox, Registry) are never encoded
// into an Envelope; they propagate as Go errors that tear the plugin
// down instead.
type WireError struct {
	Kind    string `cbor:"kind"`
	Message string `cbor:"message"`
}

func wireFromErr(err error) *WireError {
	kind, ok := KindOf(err)
	name := "unknown"
	if ok {
		name = kind.String()
	}
	return &WireError{Kind: name, Message: err.Error()}
}

// wireDecodedError reconstructs a Kinded error from a WireError read off
// the wire. It does not recover the original Go type, only the kind and
// message, which is all a caller on the other side of the boundary can
// ever have had anyway.
type wireDecodedError struct {
	kind    ErrorKind
	message string
}

func (e *wireDecodedError) Error() string { return e.message }
func (e *wireDecodedError) Kind() ErrorKind { return e.kind }

func (w *WireError) toError() error {
	kind := KindProtocol
	switch w.Kind {
	case "protocol":
		kind = KindProtocol
	case "sandbox":
		kind = KindSandbox
	case "registry":
		kind = KindRegistry
	case "query":
		kind = KindQuery
	case "not_found":
		kind = KindNotFound
	}
	return &wireDecodedError{kind: kind, message: w.Message}
}

func encodeOk(v any) (Envelope, error) {
	if v == nil {
		return Envelope{}, nil
	}
	raw, err := codec.Encode(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: encode ok value: %w", err)
	}
	return Envelope{Ok: cbor.RawMessage(raw)}, nil
}

func encodeErr(err error) Envelope {
	return Envelope{Err: wireFromErr(err)}
}
