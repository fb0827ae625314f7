// Package quillhost wires the layout, buffer, codec, rpc, and world
// packages to a wazero-instantiated guest module: Load compiles
// and instantiates a .wasm file, registers the env.__host_call import,
// and exposes the built-in world_* and version RPCs every guest can
// call.
package quillhost

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/gogpu/quillhost/layout"
	"github.com/gogpu/quillhost/rpc"
	"github.com/gogpu/quillhost/world"
)

// ProtocolVersion is returned by the built-in "version" RPC, letting a
// guest detect an incompatible host before calling anything else (see
// DESIGN.md, grounded on the prototype's "version" handshake RPC).
const ProtocolVersion = "quillhost/1"

// Plugin is a loaded guest module plus its host-side env: the buffer
// transport, the RPC table and dispatcher, the layout registry, and the
// World. Only the single thread driving this plugin's calls may use it;
// Plugin does not lock itself.
type Plugin struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	module   api.Module

	registry   *layout.Registry
	hostTable  *rpc.Table
	dispatcher *rpc.Dispatcher
	world      *world.World
	logger     *zap.Logger

	UserData any

	pendingQueries map[uint64]*world.QueryResult
	nextQueryToken uint64

	fatalErr error
}

// Load compiles and instantiates the guest module named by cfg, running
// its _start export as part of instantiation. The returned Plugin is
// ready to receive __host_call calls driven by the guest, and to issue
// ClientCall calls into it.
func Load(ctx context.Context, cfg PluginConfig) (*Plugin, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wasmBytes, err := os.ReadFile(cfg.WasmPath)
	if err != nil {
		return nil, fmt.Errorf("quillhost: read %s: %w", cfg.WasmPath, err)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	registry := layout.NewRegistry()
	w := world.NewWorld(registry)
	table := rpc.NewTable()

	p := &Plugin{
		runtime:        runtime,
		registry:       registry,
		hostTable:      table,
		world:          w,
		logger:         logger,
		UserData:       cfg.UserData,
		pendingQueries: make(map[uint64]*world.QueryResult),
	}
	p.dispatcher = rpc.NewDispatcher(table, p.reserve, p)
	registerBuiltins(table, w)

	envBuilder := runtime.NewHostModuleBuilder("env")
	envBuilder.NewFunctionBuilder().
		WithFunc(p.hostCall).
		Export("__host_call")
	if _, err := envBuilder.Instantiate(ctx); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("quillhost: instantiate env host module: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("quillhost: compile %s: %w", cfg.WasmPath, err)
	}
	p.compiled = compiled

	modCfg := wazero.NewModuleConfig().WithStartFunctions("_start")
	if cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(cfg.Stderr)
	}

	logger.Info("loading plugin", zap.String("wasm_path", cfg.WasmPath))
	module, err := runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("quillhost: instantiate %s: %w", cfg.WasmPath, err)
	}
	p.module = module

	if p.fatalErr != nil {
		err := p.fatalErr
		logger.Error("plugin failed during _start", zap.Error(err))
		runtime.Close(ctx)
		return nil, err
	}

	logger.Info("plugin loaded", zap.Strings("rpcs", table.Names()))
	return p, nil
}

// Close tears the plugin's sandbox engine down, releasing every guest
// resource. The World, registry, and RPC table are dropped with it.
func (p *Plugin) Close(ctx context.Context) error {
	p.logger.Info("closing plugin")
	return p.runtime.Close(ctx)
}

// Broken reports whether a fatal (Sandbox/Registry) error has already
// torn this plugin's usability down; callers should Close it and stop
// issuing further calls.
func (p *Plugin) Broken() bool { return p.fatalErr != nil }

// Err returns the fatal error that broke this plugin, if any.
func (p *Plugin) Err() error { return p.fatalErr }

// Names returns every RPC name registered on the host table, in
// registration order.
func (p *Plugin) Names() []string { return p.hostTable.Names() }

// World exposes the plugin's entity store directly, for host-side code
// that wants to inspect or seed it outside of the RPC surface (tests,
// admin tooling).
func (p *Plugin) World() *world.World { return p.world }

// hostCall is the env.__host_call(raw_ptr) import: the guest→host
// dispatch entry point. It never returns an error value
// to the guest — a recoverable failure is already encoded into the
// buffer by the Dispatcher; a fatal one is latched on fatalErr and
// surfaced to the embedder through Broken/Err, since the sandbox ABI
// here carries no side channel for "the host gave up on you".
func (p *Plugin) hostCall(ctx context.Context, m api.Module, rawPtr uint32) {
	if p.module == nil {
		p.module = m
	}
	if err := p.dispatcher.HostCall(ctx, m.Memory(), rawPtr); err != nil {
		p.logger.Error("fatal rpc error, plugin is now broken", zap.Error(err))
		p.fatalErr = err
	}
}

// reserve invokes the guest-exported __buffer_reserve trampoline, used
// by every buffer.Handle this Plugin hands to a Handler.
func (p *Plugin) reserve(ctx context.Context, rawPtr uint32, additional uint32) error {
	if p.module == nil {
		return fmt.Errorf("quillhost: reserve called before the guest module instance is known")
	}
	fn := p.module.ExportedFunction("__buffer_reserve")
	if fn == nil {
		return fmt.Errorf("quillhost: guest does not export __buffer_reserve")
	}
	_, err := fn.Call(ctx, uint64(rawPtr), uint64(additional))
	return err
}

// clientCaller adapts the guest's optional __client_call export to
// rpc.GuestCaller, for host→guest runtime calls.
type clientCaller struct{ module api.Module }

func (c clientCaller) CallClient(ctx context.Context, rawPtr uint32) error {
	fn := c.module.ExportedFunction("__client_call")
	if fn == nil {
		return fmt.Errorf("quillhost: guest does not export __client_call")
	}
	_, err := fn.Call(ctx, uint64(rawPtr))
	return err
}

// ClientCall issues a host→guest runtime call (the optional mirror path
// back into the guest), decoding the guest's Envelope return into out.
func (p *Plugin) ClientCall(ctx context.Context, rawPtr uint32, name string, args any, out any) error {
	if p.module == nil {
		return fmt.Errorf("quillhost: client call before module instantiation completed")
	}
	return p.dispatcher.ClientCall(ctx, p.module.Memory(), clientCaller{module: p.module}, rawPtr, name, args, out)
}
