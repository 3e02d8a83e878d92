// Package bench provides a small registry of classical black-box test
// objectives (Sphere, Rosenbrock, Rastrigin, Ackley, NoisySphere) used by
// the end-to-end convergence scenarios and by the CLI's "run" command when
// no user-supplied objective is wired in.
package bench

import (
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// Objective names a registered benchmark function together with the
// natural bounds it is conventionally evaluated over.
type Objective struct {
	Name string
	Fn   func(x []float64) float64
	// DefaultBounds returns a symmetric box of the requested dimension,
	// using the function's conventional search range.
	DefaultBounds func(dim int) (problem.Bounds, error)
}

// Sphere is the separable convex bowl f(x) = sum(x_i^2), global minimum 0 at
// the origin. The simplest possible convergence sanity check.
func Sphere(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v * v
	}
	return s
}

// Rosenbrock is the classic "banana" valley: non-separable, unimodal but
// ill-conditioned. Global minimum 0 at (1,1,...,1).
func Rosenbrock(x []float64) float64 {
	var s float64
	for i := 0; i+1 < len(x); i++ {
		t1 := x[i+1] - x[i]*x[i]
		t2 := 1 - x[i]
		s += 100*t1*t1 + t2*t2
	}
	return s
}

// Rastrigin is a highly multimodal function with a regular grid of local
// minima superimposed on a convex bowl. Global minimum 0 at the origin.
func Rastrigin(x []float64) float64 {
	a := 10.0
	s := a * float64(len(x))
	for _, v := range x {
		s += v*v - a*math.Cos(2*math.Pi*v)
	}
	return s
}

// Ackley is multimodal with a single, narrow global basin at the origin
// (minimum 0) surrounded by a nearly flat outer region.
func Ackley(x []float64) float64 {
	n := float64(len(x))
	var sumSq, sumCos float64
	for _, v := range x {
		sumSq += v * v
		sumCos += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20 + math.E
}

// NoisySphere is Sphere perturbed by zero-mean uniform noise, used to
// exercise the "noisy objective" end-to-end scenario where a single
// evaluation is not trustworthy evidence of true rank. The noise is
// absolute: uniform in [-level, level), independent of x and of the
// dimension.
func NoisySphere(rg *rng.Source, level float64) func(x []float64) float64 {
	return func(x []float64) float64 {
		base := Sphere(x)
		noise := level * (2*rg.Float64() - 1)
		return base + noise
	}
}

// noisySphereFixed wraps NoisySphere at a fixed noise level behind a single,
// mutex-guarded noise source so the resulting func(x) float64 can be handed
// to Registry and safely called by population-parallel evaluation the same
// way the other entries' plain Fn fields are.
func noisySphereFixed(level float64, seed uint64) func(x []float64) float64 {
	var mu sync.Mutex
	noiseRG := rng.New(seed)
	unlocked := NoisySphere(noiseRG, level)
	return func(x []float64) float64 {
		mu.Lock()
		defer mu.Unlock()
		return unlocked(x)
	}
}

// box returns a symmetric [-half, half]^dim bounds value.
func box(half float64) func(dim int) (problem.Bounds, error) {
	return func(dim int) (problem.Bounds, error) {
		if dim < 1 {
			return problem.Bounds{}, fmt.Errorf("bench: dimension must be positive, got %d", dim)
		}
		lo := make([]float64, dim)
		hi := make([]float64, dim)
		for i := range lo {
			lo[i] = -half
			hi[i] = half
		}
		return problem.NewBounds(lo, hi)
	}
}

// Registry lists every benchmark objective by name, for CLI lookup
// (`retryoptctl run --objective rastrigin`).
var Registry = map[string]Objective{
	"sphere":       {Name: "sphere", Fn: Sphere, DefaultBounds: box(5.12)},
	"rosenbrock":   {Name: "rosenbrock", Fn: Rosenbrock, DefaultBounds: box(2.048)},
	"rastrigin":    {Name: "rastrigin", Fn: Rastrigin, DefaultBounds: box(5.12)},
	"ackley":       {Name: "ackley", Fn: Ackley, DefaultBounds: box(32.768)},
	"noisy-sphere": {Name: "noisy-sphere", Fn: noisySphereFixed(0.5, 7), DefaultBounds: box(5.12)},
}

// Lookup returns the registered objective by name, or an error naming the
// available objectives if name is unknown.
func Lookup(name string) (Objective, error) {
	if o, ok := Registry[name]; ok {
		return o, nil
	}
	return Objective{}, fmt.Errorf("bench: unknown objective %q (available: %s)", name, availableNames())
}

func availableNames() string {
	names := make([]string, 0, len(Registry))
	for n := range Registry {
		names = append(names, n)
	}
	return fmt.Sprint(names)
}
