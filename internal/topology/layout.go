package topology

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// minSeparation guards the inverse-square repulsion against degenerate
// distances that would otherwise produce infinite or NaN forces.
const minSeparation = 1e-3

// Tick advances the physics simulation by dt seconds: pairwise inverse-square
// repulsion, spring attraction along edges beyond the rest length scaled by
// edge weight, a mild centering pull, then damped integration with a clamped
// per-tick displacement. It also applies activity decay and pruning, keeping
// the whole aging path on the layout cadence rather than the packet path.
func (g *Graph) Tick(dt float64) {
	if dt <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.decayAndPrune(dt, time.Now())

	if len(g.nodes) == 0 {
		return
	}

	// Stable iteration order for the pairwise pass.
	ordered := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		ordered = append(ordered, n)
	}

	forces := make(map[*node]r2.Vec, len(ordered))

	// Repulsion between every node pair.
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			delta := r2.Sub(a.pos, b.pos)
			d2 := delta.X*delta.X + delta.Y*delta.Y
			if d2 < minSeparation {
				// Coincident nodes: nudge apart along a pseudo-random axis.
				delta = r2.Vec{X: g.rng.Float64() - 0.5, Y: g.rng.Float64() - 0.5}
				d2 = minSeparation
			}
			d := math.Sqrt(d2)
			push := r2.Scale(g.cfg.Repulsion/d2/d, delta)
			forces[a] = r2.Add(forces[a], push)
			forces[b] = r2.Sub(forces[b], push)
		}
	}

	// Spring attraction along edges stretched beyond the rest length.
	for key, e := range g.edges {
		a, okA := g.nodes[key.a]
		b, okB := g.nodes[key.b]
		if !okA || !okB {
			continue
		}
		delta := r2.Sub(b.pos, a.pos)
		d := math.Hypot(delta.X, delta.Y)
		if d <= g.cfg.RestLength || d < minSeparation {
			continue
		}
		stretch := d - g.cfg.RestLength
		pull := g.cfg.Spring * stretch * edgeStrength(e.weight)
		dir := r2.Scale(1/d, delta)
		forces[a] = r2.Add(forces[a], r2.Scale(pull, dir))
		forces[b] = r2.Sub(forces[b], r2.Scale(pull, dir))
	}

	// Mild pull toward the canvas center keeps the cloud from drifting.
	for _, n := range ordered {
		forces[n] = r2.Sub(forces[n], r2.Scale(g.cfg.Centering, n.pos))
	}

	// Damped integration with a displacement clamp as the stability bound.
	for _, n := range ordered {
		n.vel = r2.Scale(g.cfg.Damping, r2.Add(n.vel, r2.Scale(dt, forces[n])))
		step := r2.Scale(dt, n.vel)
		norm := math.Hypot(step.X, step.Y)
		if norm > g.cfg.MaxStep {
			step = r2.Scale(g.cfg.MaxStep/norm, step)
		}
		n.pos = r2.Add(n.pos, step)
		if math.IsNaN(n.pos.X) || math.IsNaN(n.pos.Y) {
			// Degenerate frame: reset rather than propagate the artifact.
			n.pos = r2.Vec{}
			n.vel = r2.Vec{}
		}
	}
}

// edgeStrength maps an edge weight to a spring multiplier. Logarithmic so a
// single bulk transfer cannot collapse the layout, capped for stability.
func edgeStrength(weight float64) float64 {
	s := 1 + math.Log1p(weight)/2
	if s > 4 {
		s = 4
	}
	return s
}

// KineticEnergy sums the squared node velocities. Diagnostic used to observe
// convergence toward equilibrium.
func (g *Graph) KineticEnergy() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total float64
	for _, n := range g.nodes {
		total += n.vel.X*n.vel.X + n.vel.Y*n.vel.Y
	}
	return total
}
