package likelihood

import (
	"math"

	"kickchoice/internal/errors"
)

// LogSumExp returns log sum_j exp(v_j) over the available entries, with the
// maximum factored out. availability may be nil (all available). It returns
// -Inf when nothing is available.
func LogSumExp(v []float64, availability []bool) float64 {
	m := math.Inf(-1)
	for j, x := range v {
		if availability != nil && !availability[j] {
			continue
		}
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, 0) {
		return m
	}
	s := 0.0
	for j, x := range v {
		if availability != nil && !availability[j] {
			continue
		}
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}

// LogProbability returns log P(chosen) = V_chosen - log sum_{j avail} exp(V_j).
// utilities and availability are indexed by alternative position.
func LogProbability(utilities []float64, availability []bool, chosen int) (float64, error) {
	if err := checkChoice(utilities, availability, chosen); err != nil {
		return math.NaN(), err
	}
	return utilities[chosen] - LogSumExp(utilities, availability), nil
}

// Probabilities fills dst with the logit probability of every alternative;
// unavailable alternatives get 0. dst is reused when it has the right length.
func Probabilities(utilities []float64, availability []bool, dst []float64) ([]float64, error) {
	if len(dst) != len(utilities) {
		dst = make([]float64, len(utilities))
	}
	if !anyAvailable(len(utilities), availability) {
		return dst, errors.ErrNoAvailableAlternatives
	}
	probabilities(utilities, availability, dst)
	return dst, nil
}

// probabilities assumes at least one available alternative
func probabilities(utilities []float64, availability []bool, dst []float64) float64 {
	lse := LogSumExp(utilities, availability)
	for j, v := range utilities {
		if availability != nil && !availability[j] {
			dst[j] = 0
			continue
		}
		dst[j] = math.Exp(v - lse)
	}
	return lse
}

func anyAvailable(n int, availability []bool) bool {
	if availability == nil {
		return n > 0
	}
	for _, av := range availability {
		if av {
			return true
		}
	}
	return false
}

func checkChoice(utilities []float64, availability []bool, chosen int) error {
	if availability != nil && len(availability) != len(utilities) {
		return errors.InvalidInput("utilities and availability differ in length")
	}
	if !anyAvailable(len(utilities), availability) {
		return errors.ErrNoAvailableAlternatives
	}
	if chosen < 0 || chosen >= len(utilities) {
		return errors.Wrapf(errors.ErrChosenNotAvailable, "chosen position %d outside %d alternatives", chosen, len(utilities))
	}
	if availability != nil && !availability[chosen] {
		return errors.Wrapf(errors.ErrChosenNotAvailable, "chosen position %d is not available", chosen)
	}
	return nil
}
