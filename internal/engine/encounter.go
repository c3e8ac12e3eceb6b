package engine

import "fmt"

// AbilityPool is the den's ability policy, using the game's encoding
type AbilityPool uint8

const (
	AbilityFixedFirst AbilityPool = iota
	AbilityFixedSecond
	AbilityFixedHidden
	AbilityRandomNoHidden
	AbilityRandom
)

var abilityPoolNames = []string{"fixed_first", "fixed_second", "fixed_hidden", "random_no_hidden", "random"}

func (p AbilityPool) String() string { return enumName(abilityPoolNames, int(p)) }

func (p AbilityPool) MarshalText() ([]byte, error) { return marshalEnum(abilityPoolNames, int(p)) }

func (p *AbilityPool) UnmarshalText(text []byte) error {
	v, err := parseEnum(abilityPoolNames, "ability pool", string(text))
	*p = AbilityPool(v)
	return err
}

// Permits reports whether a frame from this pool can carry ability a
func (p AbilityPool) Permits(a Ability) bool {
	switch p {
	case AbilityFixedFirst:
		return a == AbilityFirst
	case AbilityFixedSecond:
		return a == AbilitySecond
	case AbilityFixedHidden:
		return a == AbilityHidden
	case AbilityRandomNoHidden:
		return a != AbilityHidden
	default:
		return true
	}
}

// GenderPool is the den's gender policy, using the game's encoding
type GenderPool uint8

const (
	GenderRandom GenderPool = iota
	GenderLockedMale
	GenderLockedFemale
	GenderLockedGenderless
)

var genderPoolNames = []string{"random", "locked_male", "locked_female", "locked_genderless"}

func (p GenderPool) String() string { return enumName(genderPoolNames, int(p)) }

func (p GenderPool) MarshalText() ([]byte, error) { return marshalEnum(genderPoolNames, int(p)) }

func (p *GenderPool) UnmarshalText(text []byte) error {
	v, err := parseEnum(genderPoolNames, "gender pool", string(text))
	*p = GenderPool(v)
	return err
}

// ShinyPool is the den's shiny policy, using the game's encoding
type ShinyPool uint8

const (
	ShinyRandom ShinyPool = iota
	ShinyNever
	ShinyAlways
)

var shinyPoolNames = []string{"random", "never", "always"}

func (p ShinyPool) String() string { return enumName(shinyPoolNames, int(p)) }

func (p ShinyPool) MarshalText() ([]byte, error) { return marshalEnum(shinyPoolNames, int(p)) }

func (p *ShinyPool) UnmarshalText(text []byte) error {
	v, err := parseEnum(shinyPoolNames, "shiny pool", string(text))
	*p = ShinyPool(v)
	return err
}

// Gender ratio values with fixed outcomes in the personal table
const (
	RatioAlwaysMale   uint8 = 0
	RatioAlwaysFemale uint8 = 254
	RatioGenderless   uint8 = 255
)

// SpeciesToxtricity has form-dependent nature tables
const SpeciesToxtricity = 849

// Encounter describes what a den generates: everything the frame
// generator needs besides the seed.
type Encounter struct {
	Species        uint16      `json:"species"`
	AltForm        uint8       `json:"alt_form"`
	MinFlawlessIVs uint8       `json:"min_flawless_ivs"`
	IsGmax         bool        `json:"is_gmax"`
	AbilityPool    AbilityPool `json:"ability_pool"`
	GenderPool     GenderPool  `json:"gender_pool"`
	GenderRatio    uint8       `json:"gender_ratio"`
	ShinyPool      ShinyPool   `json:"shiny_pool"`
}

// Validate checks the encounter for values the generator cannot handle
func (e Encounter) Validate() error {
	if e.Species == 0 {
		return fmt.Errorf("%w: species must be positive", ErrInvalidEncounter)
	}
	if e.MinFlawlessIVs < 1 || e.MinFlawlessIVs > 5 {
		return fmt.Errorf("%w: min_flawless_ivs %d outside [1,5]", ErrInvalidEncounter, e.MinFlawlessIVs)
	}
	if e.AbilityPool > AbilityRandom {
		return fmt.Errorf("%w: ability pool %d", ErrInvalidEncounter, e.AbilityPool)
	}
	if e.GenderPool > GenderLockedGenderless {
		return fmt.Errorf("%w: gender pool %d", ErrInvalidEncounter, e.GenderPool)
	}
	if e.ShinyPool > ShinyAlways {
		return fmt.Errorf("%w: shiny pool %d", ErrInvalidEncounter, e.ShinyPool)
	}
	return nil
}

// PossibleGenders lists the genders a frame from this encounter can have
func (e Encounter) PossibleGenders() []Gender {
	switch e.GenderPool {
	case GenderLockedMale:
		return []Gender{GenderMale}
	case GenderLockedFemale:
		return []Gender{GenderFemale}
	case GenderLockedGenderless:
		return []Gender{GenderGenderless}
	}
	switch e.GenderRatio {
	case RatioAlwaysMale:
		return []Gender{GenderMale}
	case RatioAlwaysFemale:
		return []Gender{GenderFemale}
	case RatioGenderless:
		return []Gender{GenderGenderless}
	}
	return []Gender{GenderMale, GenderFemale}
}
