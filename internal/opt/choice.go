package opt

import (
	"context"

	"github.com/cwbudde/retryopt/internal/problem"
	"github.com/cwbudde/retryopt/internal/rng"
)

// RandomChoice picks one optimizer per invocation according to the discrete
// distribution Probs and hands it the full budget. Both Sequence and
// RandomChoice satisfy Optimizer, so they nest.
type RandomChoice struct {
	Optimizers []Optimizer
	// Probs sums to 1 and has the same length as Optimizers. A nil Probs
	// picks uniformly.
	Probs []float64
}

func (c *RandomChoice) pick(rg *rng.Source) Optimizer {
	if c.Probs == nil {
		return c.Optimizers[rg.IntN(len(c.Optimizers))]
	}
	u := rg.Float64()
	var cum float64
	for i, p := range c.Probs {
		cum += p
		if u < cum {
			return c.Optimizers[i]
		}
	}
	return c.Optimizers[len(c.Optimizers)-1]
}

// Minimize implements Optimizer.
func (c *RandomChoice) Minimize(ctx context.Context, p *problem.Problem, guess, sigma0 []float64, rg *rng.Source) (problem.Candidate, Status, int) {
	return c.pick(rg).Minimize(ctx, p, guess, sigma0, rg)
}
