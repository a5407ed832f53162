// Command evoloom runs the headless evolution loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/openfluke/evoloom/batch"
	"github.com/openfluke/evoloom/evolve"
	"github.com/openfluke/evoloom/gpu"
	"github.com/openfluke/evoloom/sim"
)

var (
	flagConfig      = flag.String("config", "", "Path to INI run configuration (defaults when empty)")
	flagGenerations = flag.Int("generations", 50, "Generations to run")
	flagFast        = flag.Bool("fast", false, "Teleport to goals instead of simulating movement")
	flagFastFor     = flag.Duration("fast-for", 10*time.Second, "How long to fast-train when -fast is set")
	flagOut         = flag.String("out", ".", "Directory for champion files and checkpoints")
	flagResume      = flag.String("resume", "", "Checkpoint to resume from")
	flagLoad        = flag.Bool("load-champions", false, "Inject champion files from -out into the population before the first generation")
	flagDebug       = flag.Bool("debug", false, "Print every generation")
)

var roles = []sim.Role{sim.RoleMovement, sim.RoleState, sim.RoleTarget}

func main() {
	flag.Parse()
	sim.Debug = *flagDebug

	cfg := evolve.DefaultConfig()
	if *flagConfig != "" {
		var err error
		if cfg, err = evolve.LoadConfig(*flagConfig); err != nil {
			log.Fatal(err)
		}
	}
	if err := os.MkdirAll(*flagOut, 0o755); err != nil {
		log.Fatal(err)
	}

	var engine *batch.Engine
	if cfg.Batch.Enabled {
		backend, err := gpu.Select(cfg.Batch.Backend, cfg.Batch.Adapter, cfg.Batch.GroupSize)
		if err != nil {
			log.Fatalf("backend: %v", err)
		}
		engine, err = batch.NewEngine(backend, sim.MovementTopology, true)
		if err != nil {
			fmt.Printf("Batched inference disabled: %v\n", err)
			engine = nil
		} else {
			defer engine.Release()
			fmt.Printf("Batched movement inference on %s\n", backend.Name())
		}
	}

	world, err := sim.NewWorld(cfg, engine)
	if err != nil {
		log.Fatal(err)
	}
	if *flagResume != "" {
		if err := world.LoadCheckpoint(*flagResume); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Checkpoint loaded from %s (Generation %d)\n", *flagResume, world.Generation())
	}
	if *flagLoad {
		for _, r := range roles {
			path := filepath.Join(*flagOut, r.ChampionFile())
			if _, err := os.Stat(path); err == nil {
				world.RequestLoad(r, path)
			}
		}
	}

	fmt.Printf("Evolutionary simulation started with %d NPCs (forced target: %v)\n",
		world.Len(), cfg.Simulation.ForcedTarget)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *flagFast {
		runFast(ctx, world)
	} else {
		runFrames(ctx, world, cfg)
	}

	for _, r := range roles {
		world.RequestSave(r, filepath.Join(*flagOut, r.ChampionFile()))
	}
	st, err := world.RunGeneration()
	if err != nil {
		log.Fatal(err)
	}
	ckpt := filepath.Join(*flagOut, "population.ckpt")
	if err := world.SaveCheckpoint(ckpt); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Final generation %d: %s\n", world.Generation(), st)
	fmt.Printf("Checkpoint saved to %s\n", ckpt)
}

func runFrames(ctx context.Context, world *sim.World, cfg *evolve.Config) {
	dt := float32(cfg.Simulation.StepDT)
	start := world.Generation()
	last := start
	for world.Generation()-start < *flagGenerations {
		if ctx.Err() != nil {
			return
		}
		if err := world.Step(dt); err != nil {
			log.Fatal(err)
		}
		if g := world.Generation(); g != last {
			last = g
			fmt.Printf("Generation %d: %s\n", g, world.Stats())
		}
	}
}

func runFast(ctx context.Context, world *sim.World) {
	if err := world.StartFastTraining(ctx); err != nil {
		log.Fatal(err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(*flagFastFor):
	}
	if err := world.StopFastTraining(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Fast training reached generation %d: %s\n", world.Generation(), world.Stats())
}
