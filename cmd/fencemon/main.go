// Command fencemon submits fences against a bridge and reports their
// completion order. It drives the in-memory reference backend, so it runs
// anywhere and is useful for watching per-ring timeline behavior without a
// real renderer.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	gpubridge "github.com/virtgfx/gpu-bridge"
	"github.com/virtgfx/gpu-bridge/bridge"
	"github.com/virtgfx/gpu-bridge/component"
	"github.com/virtgfx/gpu-bridge/fence"
	"github.com/virtgfx/gpu-bridge/native"
	"github.com/virtgfx/gpu-bridge/native/nativetest"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to bridge TOML config (optional)")
		fences      = flag.Int("fences", 16, "Number of fences to submit")
		rings       = flag.Int("rings", 3, "Number of rings to spread fences across")
		verbose     = flag.Bool("v", false, "Verbose bridge logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		bridge.SetLogger(l)
		component.SetLogger(l)
		fence.SetLogger(l)
		native.SetLogger(l)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *fences, *rings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildBridge assembles a channel-delivery bridge over the reference
// backend, honoring a TOML config when one is given.
func buildBridge(configPath string) (*bridge.Bridge, *nativetest.Renderer, error) {
	fake := nativetest.New()

	var (
		builder *bridge.Builder
		err     error
	)
	if configPath != "" {
		cfg, lerr := bridge.LoadConfig(configPath)
		if lerr != nil {
			return nil, nil, lerr
		}
		builder, err = cfg.Builder(fake)
		if err != nil {
			return nil, nil, err
		}
	} else {
		builder = bridge.NewBuilder().
			WithStream(fake, gpubridge.StreamFlags(0).UseGLES(true).UseVulkan(true)).
			WithPassthrough()
	}

	if shmAlloc != nil {
		builder = builder.WithShmAlloc(shmAlloc)
	}
	if hostMapper != nil {
		builder = builder.WithMapper(hostMapper)
	}
	b, err := builder.
		WithAdopt(nativetest.Adopt).
		WithFenceChannel(256).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return b, fake, nil
}

func run(configPath string, fences, rings int) error {
	if fences < 1 || rings < 1 || rings > 64 {
		return fmt.Errorf("need at least one fence and 1..64 rings")
	}

	b, fake, err := buildBridge(configPath)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.CreateContext(1, 0, "fencemon"); err != nil {
		return err
	}

	fmt.Printf("Submitting %d fences across %d rings\n\n", fences, rings)
	for i := 0; i < fences; i++ {
		f := gpubridge.Fence{
			Flags:   gpubridge.FlagFence | gpubridge.FlagInfoRingIdx,
			FenceID: uint64(i + 1),
			CtxID:   1,
			RingIdx: uint8(i % rings),
		}
		if _, err := b.CreateFence(f); err != nil {
			return fmt.Errorf("fence %d: %w", f.FenceID, err)
		}
	}

	// Ring 1 fences completed synchronously inside CreateFence; everything
	// else completes when the backend sync thread runs.
	fake.RetireFences()

	for i := 0; i < fences; i++ {
		f := <-b.Completions()
		note := ""
		if f.RingIdx == 1 {
			note = "  (synchronous)"
		}
		fmt.Printf("  completed fence %3d  ring %d%s\n", f.FenceID, f.RingIdx, note)
	}

	fmt.Printf("\n%d completions delivered\n", fences)
	return nil
}
