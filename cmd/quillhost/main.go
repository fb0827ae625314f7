// Command quillhost loads a guest plugin module and lists the host RPCs
// registered for it (the built-in version and world_* RPCs). RPCs the
// guest registers in its own table are not listed.
//
// Usage:
//
//	quillhost [options] <plugin.wasm>
//
// Examples:
//
//	quillhost plugin.wasm                 # Load and list host RPCs
//	quillhost -memory-pages 64 plugin.wasm # Cap guest memory growth
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/gogpu/quillhost"
)

var (
	memoryPages = flag.Uint("memory-pages", 0, "cap guest linear memory, in 64KiB wazero pages (default: no explicit cap)")
	verbose     = flag.Bool("v", false, "enable verbose (debug-level) logging")
	versionFlag = flag.Bool("version", false, "print version")
)

// version returns the module version from build info.
func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Printf("quillhost version %s (protocol %s)\n", version(), quillhost.ProtocolVersion)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no plugin file specified")
		usage()
		os.Exit(1)
	}
	wasmPath := args[0]

	logCfg := zap.NewProductionConfig()
	if *verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	plugin, err := quillhost.Load(ctx, quillhost.PluginConfig{
		WasmPath:         wasmPath,
		MemoryLimitPages: uint32(*memoryPages),
		Stdout:           os.Stdout,
		Stderr:           os.Stderr,
		Logger:           logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading plugin: %v\n", err)
		os.Exit(1)
	}
	defer plugin.Close(ctx) //nolint:errcheck

	fmt.Printf("loaded %s (protocol %s)\n", wasmPath, quillhost.ProtocolVersion)
	names := plugin.Names()
	if len(names) == 0 {
		fmt.Println("no host RPCs registered")
		return
	}
	fmt.Println("host RPCs:")
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quillhost [options] <plugin.wasm>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  quillhost plugin.wasm                  Load and list host RPCs\n")
	fmt.Fprintf(os.Stderr, "  quillhost -memory-pages 64 plugin.wasm Cap guest memory growth\n")
}
