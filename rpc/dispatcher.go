// Package rpc implements the RPC dispatcher: the frame format
// (length-prefixed name plus codec-serialized args/return), the
// name-indexed Table each side owns, and the reentrant host↔guest
// dispatch entry points.
package rpc

import (
	"context"
	"fmt"

	"github.com/gogpu/quillhost/buffer"
	"github.com/gogpu/quillhost/codec"
)

// Call is the live context a Handler runs with: the decoded RPC name,
// its still-encoded argument bytes, the buffer it may clear and write a
// return into, and an opaque env value (the root package's Plugin, in
// production; a test fixture in unit tests).
type Call struct {
	Name string
	Args []byte
	Buf  *buffer.Handle
	Env  any
}

// DecodeArgs decodes the call's argument bytes into v, which must be a
// pointer.
func (c *Call) DecodeArgs(v any) error {
	if err := codec.Decode(c.Args, v); err != nil {
		return &ProtocolError{Op: "decode args for " + c.Name, Err: err}
	}
	return nil
}

// Reply clears the buffer and writes an Ok envelope wrapping v. Call
// this exactly once, as the last thing a successful Handler does.
func (c *Call) Reply(ctx context.Context, v any) error {
	env, err := encodeOk(v)
	if err != nil {
		return err
	}
	return c.writeEnvelope(ctx, env)
}

func (c *Call) writeEnvelope(ctx context.Context, env Envelope) error {
	raw, err := codec.Encode(env)
	if err != nil {
		return fmt.Errorf("rpc: encode envelope: %w", err)
	}
	if err := c.Buf.Clear(); err != nil {
		return &SandboxError{Reason: "clear buffer before reply", Err: err}
	}
	if err := c.Buf.Extend(ctx, raw); err != nil {
		return &SandboxError{Reason: "write reply", Err: err}
	}
	return nil
}

// GuestCaller invokes the guest-exported dispatch entry point used for
// host→guest calls (__client_call(raw_ptr)). The root package supplies
// an implementation backed by a wazero api.Function.
type GuestCaller interface {
	CallClient(ctx context.Context, rawPtr uint32) error
}

// Dispatcher owns one side's Table and mediates the reentrant call in
// both directions over a single plugin's buffer.
type Dispatcher struct {
	table   *Table
	reserve buffer.Reserve
	env     any
}

// NewDispatcher creates a Dispatcher over table, using reserve to grow
// the buffer and env as the opaque value passed to every Handler.
func NewDispatcher(table *Table, reserve buffer.Reserve, env any) *Dispatcher {
	return &Dispatcher{table: table, reserve: reserve, env: env}
}

// HostCall implements the guest→host dispatch entry point
// (__host_call(raw_ptr)): deserialize the leading name, look it up in
// the table, and invoke the handler with a borrowed view of the buffer.
//
// A nil return means the guest's host-call completed normally — which
// includes the case where the handler failed with a recoverable error,
// since that failure was already encoded into the buffer as an Err
// envelope. A non-nil return is always a fatal (Sandbox/Registry) error
// that the embedder must use to tear the plugin down. HostCall does not
// stop the guest itself, and it writes no reply into the buffer for a
// fatal error.
func (d *Dispatcher) HostCall(ctx context.Context, mem buffer.Memory, rawPtr uint32) error {
	handle := buffer.NewHandle(mem, d.reserve, rawPtr)

	raw, err := handle.Read()
	if err != nil {
		return &SandboxError{Reason: "read call frame", Err: err}
	}

	name, argBytes, err := codec.DecodeFrame(raw)
	if err != nil {
		return d.replyErr(ctx, handle, &ProtocolError{Op: "decode frame", Err: err})
	}

	handler, ok := d.table.Lookup(name)
	if !ok {
		return d.replyErr(ctx, handle, &ProtocolError{Op: fmt.Sprintf("unknown rpc %q", name)})
	}

	call := &Call{Name: name, Args: argBytes, Buf: handle, Env: d.env}
	if err := handler(ctx, call); err != nil {
		kind, known := KindOf(err)
		if known && kind.Fatal() {
			return err
		}
		return d.replyErr(ctx, handle, err)
	}
	return nil
}

func (d *Dispatcher) replyErr(ctx context.Context, handle *buffer.Handle, err error) error {
	raw, encErr := codec.Encode(encodeErr(err))
	if encErr != nil {
		return &SandboxError{Reason: "encode error envelope", Err: encErr}
	}
	if clearErr := handle.Clear(); clearErr != nil {
		return &SandboxError{Reason: "clear buffer before error reply", Err: clearErr}
	}
	if extErr := handle.Extend(ctx, raw); extErr != nil {
		return &SandboxError{Reason: "write error reply", Err: extErr}
	}
	return nil
}

// ClientCall implements the optional host→guest runtime call
// (__client_call(raw_ptr)): the host serializes (name, args) into the
// buffer, invokes caller, and decodes the guest's Envelope return into
// out (which may be nil to discard the value). An Err envelope is
// returned as a *wireDecodedError, satisfying Kinded.
func (d *Dispatcher) ClientCall(ctx context.Context, mem buffer.Memory, caller GuestCaller, rawPtr uint32, name string, args any, out any) error {
	handle := buffer.NewHandle(mem, d.reserve, rawPtr)

	frame, err := codec.EncodeFrame(name, args)
	if err != nil {
		return &ProtocolError{Op: "encode client call frame", Err: err}
	}
	if err := handle.Clear(); err != nil {
		return &SandboxError{Reason: "clear buffer before client call", Err: err}
	}
	if err := handle.Extend(ctx, frame); err != nil {
		return &SandboxError{Reason: "write client call frame", Err: err}
	}
	if err := caller.CallClient(ctx, rawPtr); err != nil {
		return &SandboxError{Reason: "invoke __client_call", Err: err}
	}

	raw, err := handle.Read()
	if err != nil {
		return &SandboxError{Reason: "read client call return", Err: err}
	}
	var env Envelope
	if err := codec.Decode(raw, &env); err != nil {
		return &ProtocolError{Op: "decode client call return", Err: err}
	}
	if env.Err != nil {
		return env.Err.toError()
	}
	if out != nil && len(env.Ok) > 0 {
		if err := codec.Decode(env.Ok, out); err != nil {
			return &ProtocolError{Op: "decode client call ok value", Err: err}
		}
	}
	return nil
}
