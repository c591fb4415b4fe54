package statistics

import (
	"fmt"
	"math"
)

// Tally counts trials and how many of them ended with both players on the
// same number of heads.
type Tally struct {
	Trials int
	Equal  int
}

// Add records one finished trial.
func (t *Tally) Add(tied bool) {
	t.Trials++
	if tied {
		t.Equal++
	}
}

// Merge folds another tally into this one.
func (t *Tally) Merge(other Tally) {
	t.Trials += other.Trials
	t.Equal += other.Equal
}

// Probability returns the empirical tie probability, Equal / Trials
func (t Tally) Probability() float64 {
	if t.Trials == 0 {
		return 0
	}
	return float64(t.Equal) / float64(t.Trials)
}

// StdError returns the binomial standard error of the estimate
func (t Tally) StdError() float64 {
	if t.Trials == 0 {
		return 0
	}
	p := t.Probability()
	return math.Sqrt(p * (1 - p) / float64(t.Trials))
}

// ConfidenceInterval95 returns the normal-approximation 95% interval for the
// estimate, clamped to [0, 1].
func (t Tally) ConfidenceInterval95() (float64, float64) {
	p := t.Probability()
	margin := 1.96 * t.StdError() // 95% confidence
	return math.Max(0, p-margin), math.Min(1, p+margin)
}

// Validate checks the counting invariants.
func (t Tally) Validate() error {
	if t.Trials <= 0 {
		return fmt.Errorf("invalid trial count: %d", t.Trials)
	}
	if t.Equal < 0 {
		return fmt.Errorf("invalid equal count: %d", t.Equal)
	}
	if t.Equal > t.Trials {
		return fmt.Errorf("equal count (%d) exceeds trial count (%d)", t.Equal, t.Trials)
	}
	return nil
}

// TieProbability returns the exact probability that two Binomial(flips, 0.5)
// variables are equal: C(2n, n) / 4^n. It is computed in log space so that
// large flip counts do not overflow.
func TieProbability(flips int) float64 {
	if flips < 0 {
		return 0
	}
	if flips == 0 {
		return 1
	}
	n := float64(flips)
	num, _ := math.Lgamma(2*n + 1)
	den, _ := math.Lgamma(n + 1)
	return math.Exp(num - 2*den - n*math.Log(4))
}

// ZScore returns how many standard errors the estimate sits from the
// expected probability, using the expected value's binomial variance.
func ZScore(t Tally, expected float64) float64 {
	if t.Trials == 0 || expected <= 0 || expected >= 1 {
		return 0
	}
	se := math.Sqrt(expected * (1 - expected) / float64(t.Trials))
	return (t.Probability() - expected) / se
}

// ChiSquared returns the one degree of freedom goodness-of-fit statistic of
// the observed tie/non-tie split against the expected probability.
func ChiSquared(t Tally, expected float64) float64 {
	if t.Trials == 0 || expected <= 0 || expected >= 1 {
		return 0
	}
	n := float64(t.Trials)
	expectedTies := n * expected
	expectedOther := n * (1 - expected)
	ties := float64(t.Equal)
	other := n - ties
	return math.Pow(ties-expectedTies, 2)/expectedTies +
		math.Pow(other-expectedOther, 2)/expectedOther
}
