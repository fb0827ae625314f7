package quillhost

import (
	"context"
	"fmt"

	"github.com/gogpu/quillhost/layout"
	"github.com/gogpu/quillhost/rpc"
	"github.com/gogpu/quillhost/world"
)

// registerBuiltins populates table with the host-provided world_* RPCs
// and the version handshake RPC. Registration can never fail here
// (these names are fixed and registered exactly once at Load time), so
// MustRegister is used rather than threading an error up through Load's
// construction sequence.
func registerBuiltins(table *rpc.Table, w *world.World) {
	table.MustRegister("version", func(ctx context.Context, call *rpc.Call) error {
		return call.Reply(ctx, ProtocolVersion)
	})

	table.MustRegister("world_spawn", func(ctx context.Context, call *rpc.Call) error {
		var entity world.Entity
		if err := call.DecodeArgs(&entity); err != nil {
			return err
		}
		id, err := w.Spawn(entity.Components)
		if err != nil {
			return err
		}
		return call.Reply(ctx, id)
	})

	table.MustRegister("world_despawn", func(ctx context.Context, call *rpc.Call) error {
		var id world.EntityID
		if err := call.DecodeArgs(&id); err != nil {
			return err
		}
		return call.Reply(ctx, w.Despawn(id))
	})

	table.MustRegister("world_get", func(ctx context.Context, call *rpc.Call) error {
		var args struct {
			Entity world.EntityID `cbor:"entity"`
			Layout layout.ID      `cbor:"layout"`
		}
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		data, found, err := w.Get(args.Entity, args.Layout)
		if err != nil {
			return err
		}
		return call.Reply(ctx, struct {
			Found bool   `cbor:"found"`
			Bytes []byte `cbor:"bytes,omitempty"`
		}{Found: found, Bytes: data})
	})

	table.MustRegister("world_set", func(ctx context.Context, call *rpc.Call) error {
		var args struct {
			Entity world.EntityID `cbor:"entity"`
			Layout layout.ID      `cbor:"layout"`
			Bytes  []byte         `cbor:"bytes"`
		}
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}
		if err := w.Set(args.Entity, args.Layout, args.Bytes); err != nil {
			return err
		}
		return call.Reply(ctx, nil)
	})

	table.MustRegister("world_query", newWorldQueryHandler(w))
	table.MustRegister("world_query_commit", newWorldQueryCommitHandler(w))

	table.MustRegister("world_register_systems", func(ctx context.Context, call *rpc.Call) error {
		var wireAccesses []wireAccess
		if err := call.DecodeArgs(&wireAccesses); err != nil {
			return err
		}
		accesses := make([]world.Access, len(wireAccesses))
		for i, wa := range wireAccesses {
			a, err := wa.toAccess()
			if err != nil {
				return &rpc.ProtocolError{Op: "decode declared access", Err: err}
			}
			accesses[i] = a
		}
		w.RegisterSystem(accesses)
		return call.Reply(ctx, nil)
	})
}

type wireRow struct {
	Entity    world.EntityID `cbor:"entity"`
	Immutable [][]byte       `cbor:"immutable"`
	Mutable   [][]byte       `cbor:"mutable"`
}

type worldQueryReply struct {
	Token uint64    `cbor:"token"`
	Rows  []wireRow `cbor:"rows"`
}

// newWorldQueryHandler closes over w and reaches the per-plugin token
// counter through call.Env (the Plugin), so world_query_commit can later
// locate the exact snapshot it must write back.
func newWorldQueryHandler(w *world.World) rpc.Handler {
	return func(ctx context.Context, call *rpc.Call) error {
		var access wireAccess
		if err := call.DecodeArgs(&access); err != nil {
			return err
		}
		a, err := access.toAccess()
		if err != nil {
			return &rpc.ProtocolError{Op: "decode query access", Err: err}
		}
		result, err := w.Query(a)
		if err != nil {
			return err
		}

		plugin, ok := call.Env.(*Plugin)
		if !ok {
			return fmt.Errorf("quillhost: world_query handler requires a *Plugin env")
		}
		plugin.nextQueryToken++
		token := plugin.nextQueryToken
		plugin.pendingQueries[token] = result

		rows := make([]wireRow, len(result.Rows))
		for i, row := range result.Rows {
			rows[i] = wireRow{Entity: row.Entity, Immutable: row.Immutable, Mutable: row.Mutable}
		}
		return call.Reply(ctx, worldQueryReply{Token: token, Rows: rows})
	}
}

func newWorldQueryCommitHandler(w *world.World) rpc.Handler {
	return func(ctx context.Context, call *rpc.Call) error {
		var args struct {
			Token     uint64     `cbor:"token"`
			Mutations [][][]byte `cbor:"mutations"`
		}
		if err := call.DecodeArgs(&args); err != nil {
			return err
		}

		plugin, ok := call.Env.(*Plugin)
		if !ok {
			return fmt.Errorf("quillhost: world_query_commit handler requires a *Plugin env")
		}
		result, ok := plugin.pendingQueries[args.Token]
		if !ok {
			return &rpc.NotFoundError{Reason: "unknown or already-committed query token"}
		}
		if len(args.Mutations) != len(result.Rows) {
			return &rpc.ProtocolError{Op: "world_query_commit: mutation count does not match query row count"}
		}
		for i, mutated := range args.Mutations {
			result.Rows[i].Mutable = mutated
		}
		if err := w.Commit(result); err != nil {
			return err
		}
		delete(plugin.pendingQueries, args.Token)
		return call.Reply(ctx, nil)
	}
}
