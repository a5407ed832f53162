// Command paritycheck runs a population of identical-topology networks
// through the batched engine and through the CPU network and reports the
// largest output difference and both timings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/openfluke/evoloom/batch"
	"github.com/openfluke/evoloom/detector"
	"github.com/openfluke/evoloom/gpu"
	"github.com/openfluke/evoloom/nn"
	"golang.org/x/exp/rand"
)

var (
	flagN       = flag.Int("n", 100, "Number of network instances")
	flagSizes   = flag.String("sizes", "12,16,8", "Comma-separated layer sizes")
	flagLinear  = flag.Bool("linear", false, "Linear output layer")
	flagBackend = flag.String("backend", "auto", "Backend: gpu, host or auto")
	flagAdapter = flag.String("gpu", "", "Substring to select specific GPU adapter (e.g. 'NVIDIA', 'Intel')")
	flagSeed    = flag.Uint64("seed", 1, "Random seed")
	flagRuns    = flag.Int("runs", 3, "Number of timed batches")
	flagProbe   = flag.Bool("probe", false, "Print the adapter capability report and exit")
	flagDebug   = flag.Bool("debug", false, "Trace device selection and dispatches")
)

func main() {
	flag.Parse()
	gpu.Debug = *flagDebug

	if *flagProbe {
		rep, err := detector.Detect(*flagAdapter)
		if err != nil {
			log.Fatalf("probe: %v", err)
		}
		js, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			log.Fatalf("probe: %v", err)
		}
		fmt.Println(string(js))
		if sizes, err := parseSizes(*flagSizes); err == nil {
			if lay, err := nn.ComputeLayout(sizes); err == nil {
				n := detector.MaxInstances(rep.Limits, rep.Recommended,
					lay.TotalWeights, lay.TotalBiases, sizes[0], sizes[len(sizes)-1])
				fmt.Printf("max instances per dispatch for %v: %d\n", sizes, n)
			}
		}
		return
	}

	sizes, err := parseSizes(*flagSizes)
	if err != nil {
		log.Fatalf("-sizes: %v", err)
	}

	backend, err := gpu.Select(*flagBackend, *flagAdapter, 0)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	engine, err := batch.NewEngine(backend, sizes, *flagLinear)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Release()

	src := nn.NewSource(*flagSeed)
	nets := make([]*nn.DenseNetwork, *flagN)
	for k := range nets {
		if nets[k], err = nn.NewDenseNetwork(sizes, 0.01, *flagLinear, src); err != nil {
			log.Fatalf("network %d: %v", k, err)
		}
	}

	rng := rand.New(rand.NewSource(*flagSeed + 1))
	inputs := make([]float32, *flagN*sizes[0])
	for i := range inputs {
		inputs[i] = rng.Float32()*2 - 1
	}

	fmt.Printf("Parity check: %d x %v (linear=%v) on %s, group %d\n",
		*flagN, sizes, *flagLinear, backend.Name(), backend.GroupSize())

	failed := false
	for r := 0; r < *flagRuns; r++ {
		rep, err := batch.Verify(engine, nets, inputs)
		if err != nil {
			log.Fatalf("run %d: %v", r, err)
		}
		fmt.Printf("  run %d: %s\n", r, rep)
		fmt.Printf("         %s\n", rep.Deviation)
		failed = failed || !rep.OK
	}
	if failed {
		fmt.Printf("FAIL: difference above %g\n", batch.ParityTolerance)
		os.Exit(1)
	}
	fmt.Println("PASS")
}

func parseSizes(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
