package engine

// Frame is one generated raid mon at a given skip count.
type Frame struct {
	Skips     uint64    `json:"skips"`
	Seed      Seed      `json:"seed"`
	EC        uint32    `json:"ec"`
	PID       uint32    `json:"pid"`
	Shininess Shininess `json:"shiny"`
	IVs       IVs       `json:"ivs"`
	Ability   Ability   `json:"ability"`
	Gender    Gender    `json:"gender"`
	Nature    Nature    `json:"nature"`
}

// Toxtricity's nature decides its evolved form, so each form has its own table.
var (
	toxtricityAmpedNatures = []Nature{
		Lonely, Bold, Relaxed, Timid, Serious, Modest,
		Mild, Quiet, Bashful, Calm, Gentle, Careful,
	}
	toxtricityLowKeyNatures = []Nature{
		Hardy, Brave, Adamant, Naughty, Docile, Impish, Lax,
		Hasty, Jolly, Naive, Rash, Sassy, Quirky,
	}
)

// CanHaveNature reports whether frames of this encounter can roll n
func (e Encounter) CanHaveNature(n Nature) bool {
	if !n.Valid() {
		return false
	}
	if e.Species != SpeciesToxtricity {
		return true
	}
	for _, v := range toxtricityNatures(e.AltForm) {
		if v == n {
			return true
		}
	}
	return false
}

// Advance generates the frame at state and returns the seed of the next frame.
// It is pure: the same encounter and state always give the same frame.
// The returned frame has Skips == 0; callers that count skips set it.
func Advance(enc Encounter, state Seed) (Seed, Frame) {
	var rng Rng
	rng.Reset(uint64(state))
	return state.Next(), generate(&rng, enc, state)
}

// generate performs the draws in the game's order: EC, TID/SID, PID,
// flawless IV slots, remaining IVs, ability, gender, nature.
func generate(rng *Rng, enc Encounter, seed Seed) Frame {
	f := Frame{Seed: seed}

	f.EC = rng.NextUint32(0xffffffff)
	tidsid := rng.NextUint32(0xffffffff)
	f.PID = rng.NextUint32(0xffffffff)
	f.Shininess = shininess(enc.ShinyPool, ShinyValue(f.PID, tidsid))

	f.IVs = rollIVs(rng, enc.MinFlawlessIVs)
	f.Ability = rollAbility(rng, enc.AbilityPool)
	f.Gender = rollGender(rng, enc)
	f.Nature = rollNature(rng, enc)

	return f
}

// ShinyValue xors the halves of the PID with the halves of the TID/SID draw.
// The temporary TID/SID is used because the real trainer IDs are unknown.
func ShinyValue(pid, tidsid uint32) uint16 {
	splitXor := func(n uint32) uint16 {
		return uint16(n>>16) ^ uint16(n&0xffff)
	}
	return splitXor(pid) ^ splitXor(tidsid)
}

func shininess(pool ShinyPool, sv uint16) Shininess {
	switch pool {
	case ShinyNever:
		return ShinyNone
	case ShinyAlways:
		if sv == 0 || sv >= 16 {
			return ShinySquare
		}
		return ShinyStar
	default:
		switch {
		case sv == 0:
			return ShinySquare
		case sv < 16:
			return ShinyStar
		default:
			return ShinyNone
		}
	}
}

// rollIVs picks the guaranteed-flawless slots by rerolling the stat index
// until enough distinct slots are chosen, then fills the rest in stat order.
func rollIVs(rng *Rng, minFlawless uint8) IVs {
	var ivs IVs
	var set [StatCount]bool

	for placed := uint8(0); placed < minFlawless; {
		stat := rng.Below(StatCount)
		if !set[stat] {
			set[stat] = true
			ivs[stat] = MaxIV
			placed++
		}
	}

	for i := range ivs {
		if !set[i] {
			ivs[i] = uint8(rng.NextUint32(MaxIV))
		}
	}
	return ivs
}

func rollAbility(rng *Rng, pool AbilityPool) Ability {
	switch pool {
	case AbilityFixedFirst:
		return AbilityFirst
	case AbilityFixedSecond:
		return AbilitySecond
	case AbilityFixedHidden:
		return AbilityHidden
	case AbilityRandomNoHidden:
		return Ability(rng.Below(2))
	default:
		return Ability(rng.Below(3))
	}
}

func rollGender(rng *Rng, enc Encounter) Gender {
	switch enc.GenderPool {
	case GenderLockedMale:
		return GenderMale
	case GenderLockedFemale:
		return GenderFemale
	case GenderLockedGenderless:
		return GenderGenderless
	}

	switch enc.GenderRatio {
	case RatioGenderless:
		return GenderGenderless
	case RatioAlwaysFemale:
		return GenderFemale
	case RatioAlwaysMale:
		return GenderMale
	}
	if rng.Below(253)+1 < uint32(enc.GenderRatio) {
		return GenderFemale
	}
	return GenderMale
}

func rollNature(rng *Rng, enc Encounter) Nature {
	if enc.Species == SpeciesToxtricity {
		table := toxtricityNatures(enc.AltForm)
		return table[rng.Below(uint32(len(table)))]
	}
	return Nature(rng.Below(NatureCount))
}

func toxtricityNatures(form uint8) []Nature {
	if form == 0 {
		return toxtricityAmpedNatures
	}
	return toxtricityLowKeyNatures
}

// FrameGenerator walks frames forward from a starting seed.
// It is not safe for concurrent use; give each goroutine its own.
type FrameGenerator struct {
	enc   Encounter
	seed  Seed
	skips uint64
	rng   Rng
}

// NewFrameGenerator creates a generator positioned at skip 0
func NewFrameGenerator(enc Encounter, seed Seed) *FrameGenerator {
	return &FrameGenerator{enc: enc, seed: seed}
}

// NewFrameGeneratorAt creates a generator positioned skips frames after seed.
// Frames it produces report skips relative to seed.
func NewFrameGeneratorAt(enc Encounter, seed Seed, skips uint64) *FrameGenerator {
	return &FrameGenerator{enc: enc, seed: SeedAtOffset(seed, skips), skips: skips}
}

// Next returns the current frame and moves to the following one
func (g *FrameGenerator) Next() Frame {
	g.rng.Reset(uint64(g.seed))
	f := generate(&g.rng, g.enc, g.seed)
	f.Skips = g.skips

	g.seed = g.seed.Next()
	g.skips++
	return f
}

// Seed returns the seed of the frame Next will produce
func (g *FrameGenerator) Seed() Seed { return g.seed }

// Skips returns how many frames have been produced so far
func (g *FrameGenerator) Skips() uint64 { return g.skips }

// ListFrames returns the first n frames starting at seed
func ListFrames(enc Encounter, seed Seed, n int) []Frame {
	if n <= 0 {
		return nil
	}
	g := NewFrameGenerator(enc, seed)
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = g.Next()
	}
	return frames
}

// FrameAt generates the frame skips advances after seed without walking
// the frames in between.
func FrameAt(enc Encounter, seed Seed, skips uint64) Frame {
	_, f := Advance(enc, SeedAtOffset(seed, skips))
	f.Skips = skips
	return f
}
