package scan

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

// Matcher decides whether a frame is acceptable.
// Implementations must be pure for a given frame.
type Matcher interface {
	Matches(f engine.Frame) bool
}

// MatchAll accepts every frame
type MatchAll struct{}

func (MatchAll) Matches(engine.Frame) bool { return true }

// Judgment is the in-game IV judge band. Bands are ordered.
type Judgment uint8

const (
	NoGood     Judgment = iota // 0
	Decent                     // 1-15
	PrettyGood                 // 16-25
	VeryGood                   // 26-29
	Fantastic                  // 30
	Best                       // 31
)

var judgmentNames = []string{"no_good", "decent", "pretty_good", "very_good", "fantastic", "best"}

// JudgeIV maps a raw IV to its band
func JudgeIV(iv uint8) Judgment {
	switch {
	case iv == 0:
		return NoGood
	case iv <= 15:
		return Decent
	case iv <= 25:
		return PrettyGood
	case iv <= 29:
		return VeryGood
	case iv == 30:
		return Fantastic
	default:
		return Best
	}
}

func (j Judgment) String() string { return nameOf(judgmentNames, int(j)) }

func (j Judgment) MarshalText() ([]byte, error) { return textOf(judgmentNames, "judgment", int(j)) }

func (j *Judgment) UnmarshalText(text []byte) error {
	v, err := lookup(judgmentNames, "judgment", string(text))
	*j = Judgment(v)
	return err
}

// Direction selects which side of the band a stat filter accepts
type Direction uint8

const (
	AtLeast Direction = iota
	AtMost
)

var directionNames = []string{"at_least", "at_most"}

func (d Direction) String() string { return nameOf(directionNames, int(d)) }

func (d Direction) MarshalText() ([]byte, error) { return textOf(directionNames, "direction", int(d)) }

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := lookup(directionNames, "direction", string(text))
	*d = Direction(v)
	return err
}

// IVFilter constrains a single stat by judge band
type IVFilter struct {
	Direction Direction `json:"direction"`
	Judgment  Judgment  `json:"judgment"`
}

// Matches reports whether iv falls in the accepted bands
func (f IVFilter) Matches(iv uint8) bool {
	band := JudgeIV(iv)
	if f.Direction == AtMost {
		return band <= f.Judgment
	}
	return band >= f.Judgment
}

// RequiresBelowBest reports whether the filter rules out a flawless stat
func (f IVFilter) RequiresBelowBest() bool {
	return f.Direction == AtMost && f.Judgment < Best
}

// ShinyFilter selects a shininess. ShinyAny accepts star or square.
type ShinyFilter uint8

const (
	ShinyNone ShinyFilter = iota
	ShinyStar
	ShinySquare
	ShinyAny
)

var shinyFilterNames = []string{"none", "star", "square", "any"}

func (s ShinyFilter) String() string { return nameOf(shinyFilterNames, int(s)) }

func (s ShinyFilter) MarshalText() ([]byte, error) {
	return textOf(shinyFilterNames, "shiny filter", int(s))
}

func (s *ShinyFilter) UnmarshalText(text []byte) error {
	v, err := lookup(shinyFilterNames, "shiny filter", string(text))
	*s = ShinyFilter(v)
	return err
}

// Matches reports whether the shininess passes
func (s ShinyFilter) Matches(sh engine.Shininess) bool {
	switch s {
	case ShinyNone:
		return sh == engine.ShinyNone
	case ShinyStar:
		return sh == engine.ShinyStar
	case ShinySquare:
		return sh == engine.ShinySquare
	case ShinyAny:
		return sh != engine.ShinyNone
	default:
		return false
	}
}

// NatureSet is a bitset over the 25 natures.
// JSON form is a list of nature names.
type NatureSet uint32

// NewNatureSet builds a set from the given natures; invalid values are ignored
func NewNatureSet(natures ...engine.Nature) NatureSet {
	var s NatureSet
	for _, n := range natures {
		s = s.With(n)
	}
	return s
}

// With returns the set plus n
func (s NatureSet) With(n engine.Nature) NatureSet {
	if !n.Valid() {
		return s
	}
	return s | 1<<n
}

// Contains reports membership
func (s NatureSet) Contains(n engine.Nature) bool {
	return n.Valid() && s&(1<<n) != 0
}

// Len returns the number of natures in the set
func (s NatureSet) Len() int { return bits.OnesCount32(uint32(s) & (1<<engine.NatureCount - 1)) }

// Natures lists the members in game order
func (s NatureSet) Natures() []engine.Nature {
	out := make([]engine.Nature, 0, s.Len())
	for n := engine.Nature(0); n < engine.NatureCount; n++ {
		if s.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

func (s NatureSet) String() string {
	names := make([]string, 0, s.Len())
	for _, n := range s.Natures() {
		names = append(names, n.String())
	}
	return strings.Join(names, ",")
}

func (s NatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Natures())
}

func (s *NatureSet) UnmarshalJSON(data []byte) error {
	var natures []engine.Nature
	if err := json.Unmarshal(data, &natures); err != nil {
		return err
	}
	*s = NewNatureSet(natures...)
	return nil
}

// ParseNatureSet reads a comma separated list of nature names
func ParseNatureSet(s string) (NatureSet, error) {
	var set NatureSet
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := engine.ParseNature(part)
		if err != nil {
			return 0, err
		}
		set = set.With(n)
	}
	return set, nil
}

// FrameFilter is a conjunction of optional constraints.
// A nil field accepts any value.
type FrameFilter struct {
	Shiny   *ShinyFilter                `json:"shiny,omitempty"`
	IVs     [engine.StatCount]*IVFilter `json:"ivs"`
	Ability *engine.Ability             `json:"ability,omitempty"`
	Gender  *engine.Gender              `json:"gender,omitempty"`
	Natures *NatureSet                  `json:"natures,omitempty"`
}

// Matches reports whether every present constraint passes
func (ff *FrameFilter) Matches(f engine.Frame) bool {
	if ff.Shiny != nil && !ff.Shiny.Matches(f.Shininess) {
		return false
	}
	for i, ivf := range ff.IVs {
		if ivf != nil && !ivf.Matches(f.IVs[i]) {
			return false
		}
	}
	if ff.Ability != nil && *ff.Ability != f.Ability {
		return false
	}
	if ff.Gender != nil && *ff.Gender != f.Gender {
		return false
	}
	if ff.Natures != nil && !ff.Natures.Contains(f.Nature) {
		return false
	}
	return true
}

// Filter setters return the receiver so a filter can be built in one expression.

func (ff *FrameFilter) WithShiny(s ShinyFilter) *FrameFilter {
	ff.Shiny = &s
	return ff
}

func (ff *FrameFilter) WithIV(stat engine.Stat, dir Direction, j Judgment) *FrameFilter {
	ff.IVs[stat] = &IVFilter{Direction: dir, Judgment: j}
	return ff
}

func (ff *FrameFilter) WithAbility(a engine.Ability) *FrameFilter {
	ff.Ability = &a
	return ff
}

func (ff *FrameFilter) WithGender(g engine.Gender) *FrameFilter {
	ff.Gender = &g
	return ff
}

func (ff *FrameFilter) WithNatures(natures ...engine.Nature) *FrameFilter {
	set := NewNatureSet(natures...)
	ff.Natures = &set
	return ff
}

// Describe renders the present constraints for logs and run records
func (ff *FrameFilter) Describe() string {
	var parts []string
	if ff.Shiny != nil {
		parts = append(parts, "shiny="+ff.Shiny.String())
	}
	for i, ivf := range ff.IVs {
		if ivf != nil {
			parts = append(parts, fmt.Sprintf("%s %s %s", engine.Stat(i), ivf.Direction, ivf.Judgment))
		}
	}
	if ff.Ability != nil {
		parts = append(parts, "ability="+ff.Ability.String())
	}
	if ff.Gender != nil {
		parts = append(parts, "gender="+ff.Gender.String())
	}
	if ff.Natures != nil {
		parts = append(parts, "natures="+ff.Natures.String())
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, "; ")
}

// AllOf combines matchers with logical AND
type AllOf []Matcher

func (a AllOf) Matches(f engine.Frame) bool {
	for _, m := range a {
		if !m.Matches(f) {
			return false
		}
	}
	return true
}

// Clone gives each member that needs it a private copy, so a combination
// holding a script can still be scanned in parallel.
func (a AllOf) Clone() (Matcher, error) {
	out := make(AllOf, len(a))
	for i, m := range a {
		c, err := workerMatcher(m)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func nameOf(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func textOf(names []string, kind string, v int) ([]byte, error) {
	if v < 0 || v >= len(names) {
		return nil, fmt.Errorf("%w: %s %d", ErrInvalidFilter, kind, v)
	}
	return []byte(names[v]), nil
}

func lookup(names []string, kind, s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidFilter, kind, s)
}
