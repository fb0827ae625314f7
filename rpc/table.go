package rpc

import "context"

// Handler is a host-side or guest-side RPC implementation: it decodes
// its own arguments from call.Args, does its work, and replies by
// calling call.Reply with the success value. A non-nil return is the
// failure path — a recoverable error (Protocol/Query/NotFound) is
// encoded into the buffer as an Err envelope by the Dispatcher on the
// handler's behalf; a fatal error (Sandbox/Registry) propagates out of
// HostCall so the embedder can tear the plugin down.
type Handler func(ctx context.Context, call *Call) error

// Table is a name-indexed RpcTable. Each side (host, guest) owns one;
// the host table is populated at plugin load.
type Table struct {
	handlers map[string]Handler
	order    []string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

// Register adds name → handler. Duplicate names are a RegistryError,
// fatal at load time.
func (t *Table) Register(name string, h Handler) error {
	if _, exists := t.handlers[name]; exists {
		return &RegistryError{Reason: "duplicate rpc registration: " + name}
	}
	t.handlers[name] = h
	t.order = append(t.order, name)
	return nil
}

// MustRegister is Register, panicking on error. Intended for host-side
// built-in RPC registration at construction time, where a duplicate name
// is a programming error rather than a runtime condition to recover
// from.
func (t *Table) MustRegister(name string, h Handler) {
	if err := t.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler registered under name, if any.
func (t *Table) Lookup(name string) (Handler, bool) {
	h, ok := t.handlers[name]
	return h, ok
}

// Names returns every registered name in registration order, used by
// cmd/quillhost to list a plugin's host RPCs.
func (t *Table) Names() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
