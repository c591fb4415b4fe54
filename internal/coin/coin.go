// Package coin estimates the probability that two players flipping fair
// coins end up with the same number of heads.
package coin

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/cointie/internal/statistics"
)

// N is both the number of trials and the number of flips per player in the
// default simulation.
const N = 2000

// ErrInvalidArgument is returned when a trial or flip count is not positive.
var ErrInvalidArgument = errors.New("invalid argument")

// Source yields uniform values in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Trial holds the head counts of both players for one round of flips.
type Trial struct {
	HeadsA int
	HeadsB int
}

// Tied reports whether both players flipped the same number of heads.
func (t Trial) Tied() bool {
	return t.HeadsA == t.HeadsB
}

// Flip draws one fair coin: heads when the draw is at least 0.5.
func Flip(src Source) bool {
	return src.Float64() >= 0.5
}

// PlayTrial flips flips coins for each player. Every round draws for A first
// and then independently for B.
func PlayTrial(flips int, src Source) Trial {
	var t Trial
	for i := 0; i < flips; i++ {
		if Flip(src) {
			t.HeadsA++
		}
		if Flip(src) {
			t.HeadsB++
		}
	}
	return t
}

// Context is checked every checkTrials trials and every checkFlips rounds
// within a trial.
const (
	checkTrials = 64
	checkFlips  = 4096
)

// Simulate plays trials trials of flipsPerPlayer flips each and counts ties.
func Simulate(trials, flipsPerPlayer int, src Source) (statistics.Tally, error) {
	return SimulateContext(context.Background(), trials, flipsPerPlayer, src)
}

// SimulateContext is Simulate that stops with ctx.Err() once ctx is done.
// Draws are consumed in the same order as Simulate, so an uncancelled run
// gives the same tally.
func SimulateContext(ctx context.Context, trials, flipsPerPlayer int, src Source) (statistics.Tally, error) {
	if trials <= 0 {
		return statistics.Tally{}, fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidArgument, trials)
	}
	if flipsPerPlayer <= 0 {
		return statistics.Tally{}, fmt.Errorf("%w: flips per player must be positive, got %d", ErrInvalidArgument, flipsPerPlayer)
	}

	var tally statistics.Tally
	for q := 0; q < trials; q++ {
		if q%checkTrials == 0 {
			if err := ctx.Err(); err != nil {
				return statistics.Tally{}, err
			}
		}
		if flipsPerPlayer <= checkFlips {
			tally.Add(PlayTrial(flipsPerPlayer, src).Tied())
			continue
		}

		var t Trial
		for done := 0; done < flipsPerPlayer; done += checkFlips {
			if err := ctx.Err(); err != nil {
				return statistics.Tally{}, err
			}
			part := PlayTrial(min(checkFlips, flipsPerPlayer-done), src)
			t.HeadsA += part.HeadsA
			t.HeadsB += part.HeadsB
		}
		tally.Add(t.Tied())
	}
	return tally, nil
}

// Run plays n trials of n flips per player and returns the fraction of
// trials that ended tied.
func Run(n int, src Source) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidArgument, n)
	}
	tally, err := Simulate(n, n, src)
	if err != nil {
		return 0, err
	}
	return tally.Probability(), nil
}
