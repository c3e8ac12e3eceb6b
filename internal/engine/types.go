package engine

import (
	"fmt"
	"strings"
)

// Stat indexes the six IVs in the order the game rolls them
type Stat int

const (
	StatHP Stat = iota
	StatAtk
	StatDef
	StatSpA
	StatSpD
	StatSpe
)

// StatCount is the number of IVs per mon
const StatCount = 6

// MaxIV is the flawless IV value
const MaxIV = 31

var statNames = []string{"hp", "atk", "def", "spa", "spd", "spe"}

func (s Stat) String() string {
	if s < 0 || int(s) >= len(statNames) {
		return fmt.Sprintf("stat(%d)", int(s))
	}
	return statNames[s]
}

// IVs holds the six individual values, HP/Atk/Def/SpA/SpD/Spe
type IVs [StatCount]uint8

// Flawless counts the IVs equal to 31
func (iv IVs) Flawless() int {
	n := 0
	for _, v := range iv {
		if v == MaxIV {
			n++
		}
	}
	return n
}

func (iv IVs) String() string {
	return fmt.Sprintf("%d/%d/%d/%d/%d/%d", iv[0], iv[1], iv[2], iv[3], iv[4], iv[5])
}

// Shininess is the cosmetic rarity tier of a frame
type Shininess uint8

const (
	ShinyNone Shininess = iota
	ShinyStar
	ShinySquare
)

var shininessNames = []string{"none", "star", "square"}

func (s Shininess) String() string { return enumName(shininessNames, int(s)) }

// Symbol returns the short display form
func (s Shininess) Symbol() string {
	switch s {
	case ShinyStar:
		return "★"
	case ShinySquare:
		return "■"
	default:
		return "-"
	}
}

func (s Shininess) MarshalText() ([]byte, error) { return marshalEnum(shininessNames, int(s)) }

func (s *Shininess) UnmarshalText(text []byte) error {
	v, err := parseEnum(shininessNames, "shininess", string(text))
	*s = Shininess(v)
	return err
}

// Ability is the rolled ability slot
type Ability uint8

const (
	AbilityFirst Ability = iota
	AbilitySecond
	AbilityHidden
)

var abilityNames = []string{"first", "second", "hidden"}

func (a Ability) String() string { return enumName(abilityNames, int(a)) }

// Short returns the compact display form used in frame tables
func (a Ability) Short() string {
	switch a {
	case AbilityFirst:
		return "1"
	case AbilitySecond:
		return "2"
	default:
		return "H"
	}
}

func (a Ability) MarshalText() ([]byte, error) { return marshalEnum(abilityNames, int(a)) }

func (a *Ability) UnmarshalText(text []byte) error {
	v, err := parseEnum(abilityNames, "ability", string(text))
	*a = Ability(v)
	return err
}

// Gender of a generated mon
type Gender uint8

const (
	GenderMale Gender = iota
	GenderFemale
	GenderGenderless
)

var genderNames = []string{"male", "female", "genderless"}

func (g Gender) String() string { return enumName(genderNames, int(g)) }

// Short returns M, F or -
func (g Gender) Short() string {
	switch g {
	case GenderMale:
		return "M"
	case GenderFemale:
		return "F"
	default:
		return "-"
	}
}

func (g Gender) MarshalText() ([]byte, error) { return marshalEnum(genderNames, int(g)) }

func (g *Gender) UnmarshalText(text []byte) error {
	v, err := parseEnum(genderNames, "gender", string(text))
	*g = Gender(v)
	return err
}

// Nature is one of the 25 natures, by game index
type Nature uint8

const (
	Hardy Nature = iota
	Lonely
	Brave
	Adamant
	Naughty
	Bold
	Docile
	Relaxed
	Impish
	Lax
	Timid
	Hasty
	Serious
	Jolly
	Naive
	Modest
	Mild
	Quiet
	Bashful
	Rash
	Calm
	Gentle
	Sassy
	Careful
	Quirky
)

// NatureCount is the size of the nature domain
const NatureCount = 25

var natureNames = []string{
	"hardy", "lonely", "brave", "adamant", "naughty",
	"bold", "docile", "relaxed", "impish", "lax",
	"timid", "hasty", "serious", "jolly", "naive",
	"modest", "mild", "quiet", "bashful", "rash",
	"calm", "gentle", "sassy", "careful", "quirky",
}

func (n Nature) String() string { return enumName(natureNames, int(n)) }

// Valid reports whether n is in [0, 24]
func (n Nature) Valid() bool { return n < NatureCount }

func (n Nature) MarshalText() ([]byte, error) { return marshalEnum(natureNames, int(n)) }

func (n *Nature) UnmarshalText(text []byte) error {
	v, err := parseEnum(natureNames, "nature", string(text))
	*n = Nature(v)
	return err
}

// ParseNature resolves a nature by name, ignoring case
func ParseNature(s string) (Nature, error) {
	v, err := parseEnum(natureNames, "nature", s)
	return Nature(v), err
}

// Display names are the lowercase keys with the first letter upper-cased.
func displayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Title returns the capitalised nature name, e.g. "Timid"
func (n Nature) Title() string { return displayName(n.String()) }

func enumName(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func marshalEnum(names []string, v int) ([]byte, error) {
	if v < 0 || v >= len(names) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownValue, v)
	}
	return []byte(names[v]), nil
}

func parseEnum(names []string, kind, s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownValue, kind, s)
}
