package scan

import (
	"fmt"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

// Admit rejects filters that no frame of enc can ever satisfy.
// Search never calls it; the API and CLI do before submitting work.
func Admit(enc engine.Encounter, ff *FrameFilter) error {
	if err := enc.Validate(); err != nil {
		return err
	}
	if ff == nil {
		return nil
	}

	belowBest := 0
	for _, ivf := range ff.IVs {
		if ivf == nil {
			continue
		}
		if ivf.Judgment > Best || ivf.Direction > AtMost {
			return fmt.Errorf("%w: iv filter %s %d", ErrInvalidFilter, ivf.Direction, ivf.Judgment)
		}
		if ivf.RequiresBelowBest() {
			belowBest++
		}
	}
	if limit := engine.StatCount - int(enc.MinFlawlessIVs); belowBest > limit {
		return fmt.Errorf("%w: %d stats filtered below 31 but only %d can be imperfect",
			ErrUnsatisfiable, belowBest, limit)
	}

	if ff.Shiny != nil {
		if *ff.Shiny > ShinyAny {
			return fmt.Errorf("%w: shiny filter %d", ErrInvalidFilter, *ff.Shiny)
		}
		if enc.ShinyPool == engine.ShinyNever && *ff.Shiny != ShinyNone {
			return fmt.Errorf("%w: encounter is never shiny", ErrUnsatisfiable)
		}
		if enc.ShinyPool == engine.ShinyAlways && *ff.Shiny == ShinyNone {
			return fmt.Errorf("%w: encounter is always shiny", ErrUnsatisfiable)
		}
	}

	if ff.Ability != nil && !enc.AbilityPool.Permits(*ff.Ability) {
		return fmt.Errorf("%w: ability %s not in pool %s", ErrUnsatisfiable, ff.Ability, enc.AbilityPool)
	}

	if ff.Gender != nil && !genderPossible(enc, *ff.Gender) {
		return fmt.Errorf("%w: gender %s impossible for this encounter", ErrUnsatisfiable, ff.Gender)
	}

	if ff.Natures != nil && !naturePossible(enc, *ff.Natures) {
		return fmt.Errorf("%w: no nature in {%s} can be rolled", ErrUnsatisfiable, ff.Natures)
	}

	return nil
}

func naturePossible(enc engine.Encounter, set NatureSet) bool {
	for _, n := range set.Natures() {
		if enc.CanHaveNature(n) {
			return true
		}
	}
	return false
}

func genderPossible(enc engine.Encounter, g engine.Gender) bool {
	for _, possible := range enc.PossibleGenders() {
		if possible == g {
			return true
		}
	}
	return false
}
