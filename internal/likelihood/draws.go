package likelihood

import (
	"math/rand/v2"
	"strings"

	"kickchoice/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// DrawMethod selects how standard normal draws are produced
type DrawMethod string

const (
	DrawPseudo     DrawMethod = "pseudo"
	DrawAntithetic DrawMethod = "antithetic"
	DrawHalton     DrawMethod = "halton"
)

// haltonSkip points are discarded at the start of every Halton dimension
const haltonSkip = 10

// ParseDrawMethod accepts pseudo, antithetic or halton (case-insensitive)
func ParseDrawMethod(s string) (DrawMethod, error) {
	switch m := DrawMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case DrawPseudo, DrawAntithetic, DrawHalton:
		return m, nil
	}
	return "", errors.Newf(errors.CodeInvalidInput, "unknown draw method %q (want pseudo, antithetic or halton)", s)
}

// DrawSet holds R standard normal draws per individual and random
// coefficient, laid out [individual][draw][dimension]. It is generated once
// per run and read concurrently by every evaluation.
type DrawSet struct {
	method      DrawMethod
	individuals int
	draws       int
	dims        int
	values      []float64
}

// GenerateDraws builds a reproducible draw set: the same method, sizes and
// seed always give bit-identical values. The seed is ignored by Halton.
func GenerateDraws(method DrawMethod, individuals, draws, dims int, seed uint64) (*DrawSet, error) {
	if individuals < 0 || draws < 1 || dims < 0 {
		return nil, errors.Newf(errors.CodeInvalidInput,
			"invalid draw set size: %d individuals, %d draws, %d dimensions", individuals, draws, dims)
	}
	ds := &DrawSet{
		method:      method,
		individuals: individuals,
		draws:       draws,
		dims:        dims,
		values:      make([]float64, individuals*draws*dims),
	}
	if dims == 0 {
		return ds, nil
	}

	switch method {
	case DrawPseudo:
		ds.fillPseudo(seed, false)
	case DrawAntithetic:
		ds.fillPseudo(seed, true)
	case DrawHalton:
		ds.fillHalton()
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown draw method %q", method)
	}
	return ds, nil
}

func (ds *DrawSet) fillPseudo(seed uint64, antithetic bool) {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	for i := 0; i < ds.individuals; i++ {
		for r := 0; r < ds.draws; r++ {
			d := ds.Draw(i, r)
			if antithetic && r%2 == 1 {
				prev := ds.Draw(i, r-1)
				for k := range d {
					d[k] = -prev[k]
				}
				continue
			}
			for k := range d {
				d[k] = normal.Rand()
			}
		}
	}
}

// fillHalton uses one prime base per dimension. Individual i takes the
// consecutive segment [i*R, (i+1)*R) of the sequence after the skipped
// points, so individuals never share points.
func (ds *DrawSet) fillHalton() {
	bases := primes(ds.dims)
	for k, base := range bases {
		for i := 0; i < ds.individuals; i++ {
			for r := 0; r < ds.draws; r++ {
				n := haltonSkip + i*ds.draws + r + 1
				ds.Draw(i, r)[k] = distuv.UnitNormal.Quantile(radicalInverse(n, base))
			}
		}
	}
}

// radicalInverse mirrors the base-b digits of n about the radix point.
// For n >= 1 the result lies strictly inside (0, 1).
func radicalInverse(n, base int) float64 {
	inv := 1.0 / float64(base)
	f := inv
	x := 0.0
	for n > 0 {
		x += float64(n%base) * f
		n /= base
		f *= inv
	}
	return x
}

func primes(n int) []int {
	out := make([]int, 0, n)
	for c := 2; len(out) < n; c++ {
		prime := true
		for _, p := range out {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			out = append(out, c)
		}
	}
	return out
}

// Draw returns the draw vector of individual i at replication r. The slice
// aliases the set and must not be modified by callers.
func (ds *DrawSet) Draw(i, r int) []float64 {
	off := (i*ds.draws + r) * ds.dims
	return ds.values[off : off+ds.dims : off+ds.dims]
}

// Method returns the generation method
func (ds *DrawSet) Method() DrawMethod {
	return ds.method
}

// NumIndividuals returns the number of individuals covered
func (ds *DrawSet) NumIndividuals() int {
	return ds.individuals
}

// NumDraws returns R
func (ds *DrawSet) NumDraws() int {
	return ds.draws
}

// Dimensions returns the number of random coefficients
func (ds *DrawSet) Dimensions() int {
	return ds.dims
}
