package quillhost

import (
	"io"

	"go.uber.org/zap"
)

// PluginConfig configures a single Load call. There is no cancellation
// or per-call timeout knob here — calls run to completion once
// dispatched. Load builds its own wazero runtime; MemoryLimitPages is the
// only engine setting taken from here, and no instruction budget is
// configured.
type PluginConfig struct {
	// WasmPath is the path to a precompiled guest module, taken verbatim.
	WasmPath string

	// MemoryLimitPages caps the guest's linear memory growth, in 64KiB
	// wazero pages. Zero means no explicit limit beyond wazero's own
	// default.
	MemoryLimitPages uint32

	// Stdout and Stderr are wired to the guest's WASI-equivalent console
	// streams, if the embedding sandbox profile exposes one. Nil selects
	// wazero's own defaults (discarded output).
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives structured lifecycle and error events for this
	// plugin. A nil Logger installs zap.NewNop(), never a package-level
	// global.
	Logger *zap.Logger

	// UserData is stashed on the resulting Plugin and handed to every
	// Handler, generalizing the original prototype's per-plugin state
	// slot (see SPEC_FULL.md §7, PluginEnv<S>).
	UserData any
}
