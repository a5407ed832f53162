// Package sim is a headless agent world driven by evolved networks. Each
// NPC carries three sibling brains: a state network that reads the food
// around it, a target network that turns that state into a personal goal,
// and a movement network that steers toward the goal.
package sim

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/openfluke/evoloom/evolve"
	"github.com/openfluke/evoloom/nn"
	"golang.org/x/exp/rand"
)

const (
	MaxSpeed     = 5.0
	Acceleration = 12.0
	MaxDistNorm  = 30.0

	// perceivedFood is how many of the nearest food items the state brain sees.
	perceivedFood = 3
)

// Brain topologies.
var (
	MovementTopology = []int{5, 12, 12, 2}
	StateTopology    = []int{12, 16, 8}
	TargetTopology   = []int{8, 12, 2}
)

// Role names one sibling brain.
type Role int

const (
	RoleMovement Role = iota
	RoleState
	RoleTarget
	numRoles
)

func (r Role) String() string {
	switch r {
	case RoleMovement:
		return "movement"
	case RoleState:
		return "state"
	case RoleTarget:
		return "target"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ChampionFile is the conventional file name for a role's champion.
func (r Role) ChampionFile() string {
	switch r {
	case RoleMovement:
		return "best_brain.bin"
	case RoleState:
		return "best_state.bin"
	case RoleTarget:
		return "best_target.bin"
	}
	return r.String() + ".bin"
}

// Brains are the sibling networks of one NPC. Siblings evolve
// independently, each under its own mutation settings.
type Brains struct {
	Movement *nn.DenseNetwork
	State    *nn.DenseNetwork
	Target   *nn.DenseNetwork
}

// NewBrains initializes fresh sibling networks.
func NewBrains(src rand.Source) (Brains, error) {
	var b Brains
	var err error
	if b.Movement, err = nn.NewDenseNetwork(MovementTopology, 0.01, true, src); err != nil {
		return b, err
	}
	if b.State, err = nn.NewDenseNetwork(StateTopology, 0.01, false, src); err != nil {
		return b, err
	}
	if b.Target, err = nn.NewDenseNetwork(TargetTopology, 0.01, true, src); err != nil {
		return b, err
	}
	return b, nil
}

// Get returns the network for role.
func (b Brains) Get(r Role) *nn.DenseNetwork {
	switch r {
	case RoleMovement:
		return b.Movement
	case RoleState:
		return b.State
	case RoleTarget:
		return b.Target
	}
	return nil
}

// Slice lists the brains in role order.
func (b Brains) Slice() []*nn.DenseNetwork {
	return []*nn.DenseNetwork{b.Movement, b.State, b.Target}
}

// Reproduce mutates a copy of each sibling with its own settings.
func (b Brains) Reproduce(cfg *evolve.Config, src rand.Source) Brains {
	return Brains{
		Movement: evolve.Reproduce(b.Movement, cfg.Movement, src),
		State:    evolve.Reproduce(b.State, cfg.State, src),
		Target:   evolve.Reproduce(b.Target, cfg.Target, src),
	}
}

// Vec2 is a point or direction on the ground plane.
type Vec2 struct{ X, Z float32 }

func (v Vec2) Sub(o Vec2) Vec2        { return Vec2{v.X - o.X, v.Z - o.Z} }
func (v Vec2) Add(o Vec2) Vec2        { return Vec2{v.X + o.X, v.Z + o.Z} }
func (v Vec2) Scale(s float32) Vec2   { return Vec2{v.X * s, v.Z * s} }
func (v Vec2) Len() float32           { return math32.Hypot(v.X, v.Z) }
func (v Vec2) Dist(o Vec2) float32    { return v.Sub(o).Len() }
func clamp(v, lo, hi float32) float32 { return math32.Max(lo, math32.Min(hi, v)) }
func (v Vec2) clampTo(half float32) Vec2 {
	return Vec2{clamp(v.X, -half, half), clamp(v.Z, -half, half)}
}

// NPC is one agent.
type NPC struct {
	Brains
	Position       Vec2
	Velocity       Vec2
	PersonalTarget Vec2
}

// MovementInputs builds the movement brain input for a target: direction
// to the target, velocity and distance, each normalized and clamped.
func (n *NPC) MovementInputs(target Vec2) []float32 {
	to := target.Sub(n.Position)
	dist := to.Len()
	if dist > 0.0001 {
		to = to.Scale(1 / dist)
	}
	return []float32{
		clamp(to.X, -1, 1),
		clamp(to.Z, -1, 1),
		clamp(n.Velocity.X/MaxSpeed, -1, 1),
		clamp(n.Velocity.Z/MaxSpeed, -1, 1),
		clamp(dist/MaxDistNorm, 0, 1),
	}
}

// Apply integrates one movement brain output over dt. Outputs are clamped
// to [-1,1] and scaled by Acceleration; speed is capped at MaxSpeed.
func (n *NPC) Apply(out []float32, dt float32) {
	ax := clamp(out[0], -1, 1)
	az := clamp(out[1], -1, 1)
	n.Velocity.X += ax * Acceleration * dt
	n.Velocity.Z += az * Acceleration * dt

	if speed := n.Velocity.Len(); speed > MaxSpeed {
		n.Velocity = n.Velocity.Scale(MaxSpeed / speed)
	}
	n.Position = n.Position.Add(n.Velocity.Scale(dt))
}

// Update runs the movement brain toward target and integrates the result.
func (n *NPC) Update(target Vec2, dt float32) error {
	out, err := n.Movement.Forward(n.MovementInputs(target))
	if err != nil {
		return err
	}
	n.Apply(out, dt)
	return nil
}

// stateInputs describes the nearest food and the NPC's own motion.
func (n *NPC) stateInputs(food []Vec2) []float32 {
	in := make([]float32, 0, StateTopology[0])
	for _, f := range nearest(n.Position, food, perceivedFood) {
		d := f.Sub(n.Position)
		in = append(in,
			clamp(d.X/MaxDistNorm, -1, 1),
			clamp(d.Z/MaxDistNorm, -1, 1),
			clamp(d.Len()/MaxDistNorm, 0, 1))
	}
	for len(in) < 3*perceivedFood {
		in = append(in, 0, 0, 1)
	}
	in = append(in,
		clamp(n.Velocity.X/MaxSpeed, -1, 1),
		clamp(n.Velocity.Z/MaxSpeed, -1, 1),
		clamp(float32(len(food))/20, 0, 1))
	return in
}

// Perceive runs state then target brain and sets PersonalTarget, an
// offset of up to MaxDistNorm from the NPC, kept inside the arena.
func (n *NPC) Perceive(food []Vec2, arena float32) error {
	state, err := n.State.Forward(n.stateInputs(food))
	if err != nil {
		return fmt.Errorf("state brain: %w", err)
	}
	out, err := n.Target.Forward(state)
	if err != nil {
		return fmt.Errorf("target brain: %w", err)
	}
	offset := Vec2{clamp(out[0], -1, 1), clamp(out[1], -1, 1)}.Scale(MaxDistNorm)
	n.PersonalTarget = n.Position.Add(offset).clampTo(arena)
	return nil
}

// nearest returns up to k points of pts closest to p, nearest first.
func nearest(p Vec2, pts []Vec2, k int) []Vec2 {
	out := make([]Vec2, 0, k)
	used := make([]bool, len(pts))
	for len(out) < k && len(out) < len(pts) {
		best := -1
		var bestD float32
		for i, q := range pts {
			if used[i] {
				continue
			}
			if d := p.Dist(q); best < 0 || d < bestD {
				best, bestD = i, d
			}
		}
		used[best] = true
		out = append(out, pts[best])
	}
	return out
}
