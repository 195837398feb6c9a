/*

This file contains the shared evaluation contract of the search stages
and the deterministic per-candidate seeding. Seeds derive from the run
seed and the candidate's position, never from worker scheduling order, so
identical runs reproduce identical trajectories.

*/

package search

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/stratforge/optimizer/internal/types"
)

// EvalFunc scores a parameter vector at a fidelity (bar count; 0 means
// the complete dataset). Implementations must be pure with respect to
// (vector, fidelity, seed).
type EvalFunc func(vec []float64, fidelityBars int, seed int64) (types.ScoreBreakdown, error)

// DeriveSeed mixes the run seed with a stream index into an independent
// 64-bit seed (splitmix64 finalizer).
func DeriveSeed(runSeed int64, stream int64) int64 {
	z := uint64(runSeed) + uint64(stream)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return int64(z)
}

// newCandidate wraps a vector in an immutable candidate with provenance.
// IDs are name-based UUIDs over (stage, seed, vector), so identical runs
// mint identical IDs and the composite tie-break stays stable across
// reruns.
func newCandidate(vec []float64, stage string, seed int64) types.Candidate {
	name := make([]byte, 0, len(stage)+8+8*len(vec))
	name = append(name, stage...)
	name = binary.BigEndian.AppendUint64(name, uint64(seed))
	for _, v := range vec {
		name = binary.BigEndian.AppendUint64(name, math.Float64bits(v))
	}
	return types.Candidate{
		ID:     uuid.NewSHA1(uuid.NameSpaceOID, name).String(),
		Vector: append([]float64(nil), vec...),
		Stage:  stage,
		Seed:   seed,
	}
}

// rankByComposite sorts candidates best-first by composite score. Only
// scored candidates participate; unscored ones sink to the end. Ties are
// broken by ID so ordering is deterministic across runs.
func rankByComposite(cands []types.Candidate) []types.Candidate {
	out := append([]types.Candidate(nil), cands...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lessCandidate(out[j-1], out[j]); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func lessCandidate(a, b types.Candidate) bool {
	sa, sb := compositeOf(a), compositeOf(b)
	if sa != sb {
		return sa < sb
	}
	return a.ID > b.ID
}

func compositeOf(c types.Candidate) float64 {
	if c.Score == nil {
		return -1e300
	}
	return c.Score.Composite
}
