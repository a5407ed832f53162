package evolve

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// DefaultSurvivalFraction keeps the top fifth of a generation.
const DefaultSurvivalFraction = 0.2

// SelectionConfig controls truncation selection.
type SelectionConfig struct {
	SurvivalFraction float64 `ini:"survival_fraction"`
}

// Validate requires a fraction in (0,1].
func (c SelectionConfig) Validate() error {
	if math.IsNaN(c.SurvivalFraction) || c.SurvivalFraction <= 0 || c.SurvivalFraction > 1 {
		return fmt.Errorf("survival fraction %v outside (0,1]", c.SurvivalFraction)
	}
	return nil
}

// Survivors is the number of individuals kept from a population of n.
func (c SelectionConfig) Survivors(n int) int {
	k := int(math.Floor(float64(n) * c.SurvivalFraction))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// Stats summarizes the fitness of one evaluated generation.
type Stats struct {
	Size      int
	Survivors int
	Best      float64
	Worst     float64
	Mean      float64
	StdDev    float64
}

func (s Stats) String() string {
	return fmt.Sprintf("n=%d kept=%d best=%.4f mean=%.4f sd=%.4f worst=%.4f",
		s.Size, s.Survivors, s.Best, s.Mean, s.StdDev, s.Worst)
}

// NextGeneration ranks pop by fitness (higher is better, NaN ranks last,
// ties keep their order), keeps the survivors unchanged in rank order and
// fills the remaining slots with reproduce(parent) for parents drawn
// uniformly with replacement from the survivors. The returned slice has
// the same length as pop; pop itself is not modified.
func NextGeneration[T any](pop []T, fitness []float64, cfg SelectionConfig, rng *rand.Rand, reproduce func(parent T) T) ([]T, Stats, error) {
	if len(pop) == 0 {
		return nil, Stats{}, fmt.Errorf("empty population")
	}
	if len(fitness) != len(pop) {
		return nil, Stats{}, fmt.Errorf("got %d fitness values for %d individuals", len(fitness), len(pop))
	}
	if err := cfg.Validate(); err != nil {
		return nil, Stats{}, err
	}

	order := Rank(fitness)
	keep := cfg.Survivors(len(pop))

	next := make([]T, 0, len(pop))
	for _, i := range order[:keep] {
		next = append(next, pop[i])
	}
	for len(next) < len(pop) {
		parent := next[rng.Intn(keep)]
		next = append(next, reproduce(parent))
	}

	st := Summarize(fitness)
	st.Survivors = keep
	return next, st, nil
}

// Rank returns indices of fitness from best to worst.
func Rank(fitness []float64) []int {
	order := make([]int, len(fitness))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return better(fitness[order[a]], fitness[order[b]])
	})
	return order
}

func better(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}

// Summarize computes fitness statistics, ignoring NaN values.
func Summarize(fitness []float64) Stats {
	vals := make([]float64, 0, len(fitness))
	for _, f := range fitness {
		if !math.IsNaN(f) {
			vals = append(vals, f)
		}
	}
	st := Stats{Size: len(fitness)}
	if len(vals) == 0 {
		st.Best, st.Worst, st.Mean, st.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return st
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	st.Worst = sorted[0]
	st.Best = sorted[len(sorted)-1]
	if len(vals) == 1 {
		st.Mean = vals[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(vals, nil)
	return st
}
