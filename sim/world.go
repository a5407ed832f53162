package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfluke/evoloom/batch"
	"github.com/openfluke/evoloom/evolve"
	"github.com/openfluke/evoloom/nn"
	"golang.org/x/exp/rand"
)

// Mode says who currently drives the world.
type Mode int32

const (
	// ModeFrame: the caller steps the world frame by frame.
	ModeFrame Mode = iota
	// ModeFast: a background goroutine runs generations back to back.
	ModeFast
)

func (m Mode) String() string {
	if m == ModeFast {
		return "fast"
	}
	return "frame"
}

// ErrFastTrainingActive is returned by StartFastTraining when fast
// training is already running.
var ErrFastTrainingActive = errors.New("fast training already active")

// FastTrainingPause is the idle time between fast generations.
var FastTrainingPause = 10 * time.Millisecond

// noFoodPenalty is the distance charged when there is no food to reach.
const noFoodPenalty = 1000

type championRequest struct {
	role Role
	path string
}

// World is a population of NPCs with food and a shared target.
//
// Exactly one owner drives the world at a time: the frame loop calling
// Step, or the fast-training goroutine. All population changes happen
// under the world mutex.
type World struct {
	mu sync.Mutex

	cfg    *evolve.Config
	rng    *rand.Rand
	engine *batch.Engine

	npcs       []*NPC
	food       []Vec2
	target     Vec2
	timer      float64
	generation int
	stats      evolve.Stats

	saves []championRequest
	loads []championRequest

	mode     atomic.Int32
	ctlMu    sync.Mutex
	fastStop context.CancelFunc
	fastDone chan struct{}
	fastErr  error
}

// NewWorld spawns cfg.Simulation.Population NPCs with fresh brains. engine
// is optional; when set it must be built for the movement topology and is
// used for movement inference once the population reaches
// cfg.Batch.MinBatch.
func NewWorld(cfg *evolve.Config, engine *batch.Engine) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine != nil {
		lay := engine.Layout()
		if !sameSizes(lay.LayerSizes, MovementTopology) || !engine.LinearOutput() {
			return nil, fmt.Errorf("engine topology %v does not run movement brains %v", lay.LayerSizes, MovementTopology)
		}
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	w := &World{cfg: cfg, rng: rand.New(rand.NewSource(seed)), engine: engine}

	w.npcs = make([]*NPC, cfg.Simulation.Population)
	for i := range w.npcs {
		b, err := NewBrains(w.rng)
		if err != nil {
			return nil, err
		}
		w.npcs[i] = &NPC{Brains: b}
	}
	w.target = w.randomPoint()
	w.resetLocked()
	if err := w.perceiveLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func sameSizes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (w *World) arena() float32 { return float32(w.cfg.Simulation.Arena) }

func (w *World) randomPoint() Vec2 {
	a := w.arena()
	return Vec2{w.rng.Float32()*2*a - a, w.rng.Float32()*2*a - a}
}

// Mode reports the current driver.
func (w *World) Mode() Mode { return Mode(w.mode.Load()) }

// Generation is the number of completed generations.
func (w *World) Generation() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Stats returns the fitness summary of the last completed generation.
func (w *World) Stats() evolve.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Target is the shared forced target.
func (w *World) Target() Vec2 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// Food returns a copy of the food positions.
func (w *World) Food() []Vec2 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Vec2(nil), w.food...)
}

// Positions returns a copy of every NPC position.
func (w *World) Positions() []Vec2 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Vec2, len(w.npcs))
	for i, n := range w.npcs {
		out[i] = n.Position
	}
	return out
}

// Brains returns the brains of NPC i. The networks are shared, not copied;
// callers must not use them while the world is being driven.
func (w *World) Brains(i int) Brains {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.npcs[i].Brains
}

// Len is the population size.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.npcs)
}

// SetForcedTarget switches between forced-target and food fitness.
func (w *World) SetForcedTarget(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg.Simulation.ForcedTarget = on
}

// RequestSave asks for the best NPC's role brain to be written to path at
// the next generation boundary.
func (w *World) RequestSave(role Role, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saves = append(w.saves, championRequest{role, path})
}

// RequestLoad asks for the champion at path to be injected into every
// NPC's role brain at the next generation boundary.
func (w *World) RequestLoad(role Role, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loads = append(w.loads, championRequest{role, path})
}

// Step advances the world by dt in frame mode and turns the generation over
// when its time is up. It does nothing while fast training owns the world.
func (w *World) Step(dt float32) error {
	if w.Mode() == ModeFast {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Mode() == ModeFast {
		return nil
	}
	return w.stepLocked(dt)
}

func (w *World) stepLocked(dt float32) error {
	nets := make([]*nn.DenseNetwork, len(w.npcs))
	inputs := make([][]float32, len(w.npcs))
	for i, n := range w.npcs {
		nets[i] = n.Movement
		inputs[i] = n.MovementInputs(w.goal(n))
	}

	var engine *batch.Engine
	if w.engine != nil && len(w.npcs) >= w.cfg.Batch.MinBatch {
		engine = w.engine
	}
	outs, err := batch.ForwardAll(engine, nets, inputs)
	if err != nil {
		return err
	}
	for i, n := range w.npcs {
		n.Apply(outs[i], dt)
	}

	w.timer += float64(dt)
	if w.timer >= w.cfg.Simulation.GenerationSeconds {
		if _, err := w.runGenerationLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) goal(n *NPC) Vec2 {
	if w.cfg.Simulation.ForcedTarget {
		return w.target
	}
	return n.PersonalTarget
}

// RunGeneration scores every NPC, applies champion requests, replaces the
// population with the next generation and resets the arena.
func (w *World) RunGeneration() (evolve.Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runGenerationLocked()
}

func (w *World) fitness(n *NPC) float64 {
	if w.cfg.Simulation.ForcedTarget {
		return -float64(n.Position.Dist(w.target))
	}
	if len(w.food) == 0 {
		return -noFoodPenalty
	}
	best := n.Position.Dist(w.food[0])
	for _, f := range w.food[1:] {
		if d := n.Position.Dist(f); d < best {
			best = d
		}
	}
	return -float64(best)
}

func (w *World) runGenerationLocked() (evolve.Stats, error) {
	fitness := make([]float64, len(w.npcs))
	for i, n := range w.npcs {
		fitness[i] = w.fitness(n)
	}

	if err := w.applySavesLocked(fitness); err != nil {
		return evolve.Stats{}, err
	}

	next, st, err := evolve.NextGeneration(w.npcs, fitness, w.cfg.Selection, w.rng, func(parent *NPC) *NPC {
		return &NPC{Brains: parent.Brains.Reproduce(w.cfg, w.rng)}
	})
	if err != nil {
		return evolve.Stats{}, err
	}
	w.npcs = next

	if err := w.applyLoadsLocked(); err != nil {
		return evolve.Stats{}, err
	}

	if w.cfg.Simulation.ForcedTarget {
		w.target = w.randomPoint()
	}
	w.resetLocked()
	if err := w.perceiveLocked(); err != nil {
		return evolve.Stats{}, err
	}

	w.generation++
	w.stats = st
	w.timer = 0
	Log("generation %d: %s", w.generation, st)
	return st, nil
}

func (w *World) applySavesLocked(fitness []float64) error {
	if len(w.saves) == 0 {
		return nil
	}
	best := w.npcs[evolve.Rank(fitness)[0]]
	reqs := w.saves
	w.saves = nil
	for _, r := range reqs {
		if err := evolve.SaveChampion(r.path, best.Get(r.role)); err != nil {
			return err
		}
		fmt.Printf("Best %s brain saved to %s\n", r.role, r.path)
	}
	return nil
}

func (w *World) applyLoadsLocked() error {
	if len(w.loads) == 0 {
		return nil
	}
	reqs := w.loads
	w.loads = nil
	for _, r := range reqs {
		champ, err := evolve.LoadChampion(r.path)
		if err != nil {
			return err
		}
		for _, n := range w.npcs {
			if err := evolve.InjectChampion(n.Get(r.role), champ); err != nil {
				return err
			}
		}
		fmt.Printf("Loaded %s champion from %s across population\n", r.role, r.path)
	}
	return nil
}

// resetLocked scatters NPCs, stops them and respawns 10-19 food items.
func (w *World) resetLocked() {
	for _, n := range w.npcs {
		n.Position = w.randomPoint()
		n.Velocity = Vec2{}
	}
	count := 10 + w.rng.Intn(10)
	w.food = w.food[:0]
	for i := 0; i < count; i++ {
		w.food = append(w.food, w.randomPoint())
	}
}

func (w *World) perceiveLocked() error {
	for _, n := range w.npcs {
		if err := n.Perceive(w.food, w.arena()); err != nil {
			return err
		}
	}
	return nil
}

// StartFastTraining hands the world to a background goroutine that runs
// generations back to back, teleporting every NPC to its goal instead of
// simulating movement. Step is a no-op until StopFastTraining returns or
// ctx is cancelled.
func (w *World) StartFastTraining(ctx context.Context) error {
	w.ctlMu.Lock()
	defer w.ctlMu.Unlock()
	if !w.mode.CompareAndSwap(int32(ModeFrame), int32(ModeFast)) {
		return ErrFastTrainingActive
	}

	if w.fastStop != nil {
		w.fastStop()
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.fastStop, w.fastDone, w.fastErr = cancel, done, nil

	go func() {
		defer close(done)
		defer w.mode.Store(int32(ModeFrame))
		fmt.Println("Starting fast training")
		for {
			if err := w.fastGeneration(); err != nil {
				w.ctlMu.Lock()
				w.fastErr = err
				w.ctlMu.Unlock()
				fmt.Printf("Fast training stopped: %v\n", err)
				return
			}
			select {
			case <-ctx.Done():
				fmt.Println("Stopped fast training")
				return
			case <-time.After(FastTrainingPause):
			}
		}
	}()
	return nil
}

func (w *World) fastGeneration() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.perceiveLocked(); err != nil {
		return err
	}
	for _, n := range w.npcs {
		n.Position = w.goal(n)
	}
	_, err := w.runGenerationLocked()
	return err
}

// StopFastTraining ends fast training and waits for the goroutine to exit,
// returning the error that stopped it early, if any.
func (w *World) StopFastTraining() error {
	w.ctlMu.Lock()
	stop, done := w.fastStop, w.fastDone
	w.fastStop, w.fastDone = nil, nil
	w.ctlMu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	<-done

	w.ctlMu.Lock()
	defer w.ctlMu.Unlock()
	return w.fastErr
}

// SaveCheckpoint snapshots every NPC's brains.
func (w *World) SaveCheckpoint(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := make([][]*nn.DenseNetwork, len(w.npcs))
	for i, n := range w.npcs {
		rows[i] = n.Brains.Slice()
	}
	return evolve.SaveCheckpoint(path, w.generation, rows)
}

// LoadCheckpoint replaces the population with a snapshot. The snapshot
// must hold three brains per NPC with the expected topologies.
func (w *World) LoadCheckpoint(path string) error {
	gen, rows, err := evolve.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	npcs := make([]*NPC, len(rows))
	for i, row := range rows {
		if len(row) != int(numRoles) {
			return fmt.Errorf("checkpoint individual %d has %d brains, want %d", i, len(row), numRoles)
		}
		b := Brains{Movement: row[RoleMovement], State: row[RoleState], Target: row[RoleTarget]}
		if !sameSizes(b.Movement.LayerSizes(), MovementTopology) ||
			!sameSizes(b.State.LayerSizes(), StateTopology) ||
			!sameSizes(b.Target.LayerSizes(), TargetTopology) {
			return fmt.Errorf("checkpoint individual %d: %w", i, evolve.ErrTopologyMismatch)
		}
		npcs[i] = &NPC{Brains: b}
	}
	if len(npcs) == 0 {
		return fmt.Errorf("checkpoint %s holds no individuals", path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.npcs = npcs
	w.generation = gen
	w.timer = 0
	w.resetLocked()
	return w.perceiveLocked()
}
