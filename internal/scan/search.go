package scan

import (
	"context"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

// MaxSearchFrames is the hard ceiling on frames examined by one search.
const MaxSearchFrames = 10_000_000

// NotFoundMessage is what callers show when a search exhausts the ceiling
const NotFoundMessage = "no result found within 10 million frames"

// cancelCheckInterval is how many frames run between context checks.
const cancelCheckInterval = 1 << 16

// Result is the outcome of a search. Found is false when the ceiling
// was reached; that is a normal result, not an error.
type Result struct {
	Found     bool         `json:"found"`
	Skips     uint64       `json:"skips"`
	Frame     engine.Frame `json:"frame"`
	Evaluated uint64       `json:"evaluated"`
}

// Search walks frames forward from seed and returns the first one m accepts.
// The only errors are a malformed encounter and cancellation of ctx.
func Search(ctx context.Context, enc engine.Encounter, seed engine.Seed, m Matcher) (Result, error) {
	if err := enc.Validate(); err != nil {
		return Result{}, err
	}
	if m == nil {
		m = MatchAll{}
	}

	state := seed
	for skips := uint64(0); skips < MaxSearchFrames; skips++ {
		if skips%cancelCheckInterval == 0 && skips > 0 {
			if err := ctx.Err(); err != nil {
				return Result{Evaluated: skips}, err
			}
		}

		next, frame := engine.Advance(enc, state)
		if m.Matches(frame) {
			frame.Skips = skips
			return Result{Found: true, Skips: skips, Frame: frame, Evaluated: skips + 1}, nil
		}
		state = next
	}

	return Result{Evaluated: MaxSearchFrames}, nil
}
