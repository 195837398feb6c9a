package sampler

import (
	"fmt"
	"math/rand"
)

// sobolMaxDim is bounded by the direction-number table below.
const sobolMaxDim = 16

// sobolParams holds the primitive polynomial degree s, coefficient a and
// initial direction numbers m for one dimension (Joe-Kuo table prefix).
type sobolParams struct {
	s int
	a uint32
	m []uint32
}

var sobolTable = []sobolParams{
	{1, 0, []uint32{1}},
	{2, 1, []uint32{1, 3}},
	{3, 1, []uint32{1, 3, 1}},
	{3, 2, []uint32{1, 1, 1}},
	{4, 1, []uint32{1, 1, 3, 3}},
	{4, 4, []uint32{1, 3, 5, 13}},
	{5, 2, []uint32{1, 1, 5, 5, 17}},
	{5, 4, []uint32{1, 1, 5, 5, 5}},
	{5, 7, []uint32{1, 1, 7, 11, 19}},
	{5, 11, []uint32{1, 1, 5, 1, 1}},
	{5, 13, []uint32{1, 1, 1, 3, 11}},
	{5, 14, []uint32{1, 3, 5, 5, 31}},
	{6, 1, []uint32{1, 3, 3, 9, 7, 49}},
	{6, 13, []uint32{1, 1, 1, 15, 21, 21}},
	{6, 16, []uint32{1, 3, 1, 13, 27, 49}},
}

const sobolBits = 32

// sobol is a gray-code Sobol sequence with a seeded digital shift so
// different run seeds explore shifted but equally well-spread nets.
type sobol struct {
	dim   int
	v     [][]uint32 // direction numbers per dimension
	shift []uint32   // per-dimension digital shift
	x     []uint32   // current state
	count uint32
}

func newSobol(dim int, seed int64) (*sobol, error) {
	if dim < 1 || dim > sobolMaxDim {
		return nil, fmt.Errorf("sobol sampler supports 1..%d dimensions, got %d", sobolMaxDim, dim)
	}

	s := &sobol{
		dim:   dim,
		v:     make([][]uint32, dim),
		shift: make([]uint32, dim),
		x:     make([]uint32, dim),
	}

	// Dimension 0: van der Corput in base 2.
	s.v[0] = make([]uint32, sobolBits)
	for i := 0; i < sobolBits; i++ {
		s.v[0][i] = 1 << (sobolBits - 1 - i)
	}

	for d := 1; d < dim; d++ {
		p := sobolTable[d-1]
		v := make([]uint32, sobolBits)
		for i := 0; i < p.s; i++ {
			v[i] = p.m[i] << (sobolBits - 1 - i)
		}
		for i := p.s; i < sobolBits; i++ {
			v[i] = v[i-p.s] ^ (v[i-p.s] >> p.s)
			for k := 1; k < p.s; k++ {
				if (p.a>>(p.s-1-k))&1 == 1 {
					v[i] ^= v[i-k]
				}
			}
		}
		s.v[d] = v
	}

	rng := rand.New(rand.NewSource(seed))
	for d := 0; d < dim; d++ {
		s.shift[d] = rng.Uint32()
	}
	return s, nil
}

func (s *sobol) Name() string { return BackendSobol }

func (s *sobol) Sample(n int) [][]float64 {
	points := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, s.next())
	}
	return points
}

func (s *sobol) next() []float64 {
	// Gray-code update: flip the direction number of the lowest zero bit.
	c := 0
	value := s.count
	for value&1 == 1 {
		value >>= 1
		c++
	}
	s.count++
	point := make([]float64, s.dim)
	for d := 0; d < s.dim; d++ {
		s.x[d] ^= s.v[d][c]
		point[d] = float64(s.x[d]^s.shift[d]) / float64(1<<sobolBits)
	}
	return point
}
