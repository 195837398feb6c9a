/*

This file contains the low-discrepancy candidate generators. Backends are
a fixed enumerated set selected by configuration; both are deterministic
under a given seed so reruns reproduce the same initial sample.

*/

package sampler

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/stratforge/optimizer/internal/types"
)

// Backend names accepted by New.
const (
	BackendSobol = "sobol"
	BackendLHS   = "lhs"
)

// Sampler produces points in the unit hypercube [0,1)^dim.
type Sampler interface {
	Name() string
	Sample(n int) [][]float64
}

// New returns the configured backend. Unknown names are a configuration
// error, not a fallback.
func New(backend string, dim int, seed int64) (Sampler, error) {
	switch backend {
	case BackendSobol:
		return newSobol(dim, seed)
	case BackendLHS:
		return newLatinHypercube(dim, seed), nil
	default:
		return nil, fmt.Errorf("unknown sampler backend %q (want %q or %q)", backend, BackendSobol, BackendLHS)
	}
}

// MapToSpace scales a unit-hypercube point onto the parameter space:
// continuous dimensions linearly, integer dimensions rounded, categorical
// dimensions indexed into their choice list.
func MapToSpace(space types.ParameterSpace, point []float64) []float64 {
	out := make([]float64, len(space.Dimensions))
	for i, d := range space.Dimensions {
		u := 0.0
		if i < len(point) {
			u = point[i]
		}
		switch d.Kind {
		case types.ParamContinuous:
			out[i] = d.Low + u*(d.High-d.Low)
		case types.ParamInteger:
			out[i] = math.Round(d.Low + u*(d.High-d.Low))
		case types.ParamCategorical:
			idx := int(u * float64(len(d.Choices)))
			if idx >= len(d.Choices) {
				idx = len(d.Choices) - 1
			}
			out[i] = d.Choices[idx]
		}
	}
	return out
}

// latinHypercube stratifies each dimension into n bins and draws one
// jittered point per bin, with an independent permutation per dimension.
type latinHypercube struct {
	dim int
	rng *rand.Rand
}

func newLatinHypercube(dim int, seed int64) *latinHypercube {
	return &latinHypercube{dim: dim, rng: rand.New(rand.NewSource(seed))}
}

func (l *latinHypercube) Name() string { return BackendLHS }

func (l *latinHypercube) Sample(n int) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, l.dim)
	}
	for d := 0; d < l.dim; d++ {
		perm := l.rng.Perm(n)
		for i := 0; i < n; i++ {
			points[i][d] = (float64(perm[i]) + l.rng.Float64()) / float64(n)
		}
	}
	return points
}
