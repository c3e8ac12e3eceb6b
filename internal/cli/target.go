package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

// ErrUsage marks bad command-line input; main prints usage for it
var ErrUsage = errors.New("usage")

// targetFlags selects an encounter either from a den or by its fields
type targetFlags struct {
	seed      string
	den       string
	index     int
	species   uint
	form      uint
	flawless  uint
	ability   string
	gender    string
	ratio     uint
	shinyPool string
	gmax      bool
}

func (t *targetFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&t.seed, "seed", "", "den seed in hex (required)")
	fs.StringVar(&t.den, "den", "", "den id; selects the encounter from the den table")
	fs.IntVar(&t.index, "index", 0, "entry index within the den")
	fs.UintVar(&t.species, "species", 0, "species number (without -den)")
	fs.UintVar(&t.form, "form", 0, "alternate form")
	fs.UintVar(&t.flawless, "flawless", 1, "guaranteed flawless IVs, 1-5")
	fs.StringVar(&t.ability, "ability-pool", "random", "ability pool: fixed_first, fixed_second, fixed_hidden, random_no_hidden, random")
	fs.StringVar(&t.gender, "gender-pool", "random", "gender pool: random, locked_male, locked_female, locked_genderless")
	fs.UintVar(&t.ratio, "gender-ratio", 127, "species gender ratio, 0-255")
	fs.StringVar(&t.shinyPool, "shiny-pool", "random", "shiny pool: random, never, always")
	fs.BoolVar(&t.gmax, "gmax", false, "G-Max encounter")
}

// resolve parses the seed and builds the encounter
func (t *targetFlags) resolve(table *dens.Table, cfg Config) (engine.Encounter, engine.Seed, error) {
	if t.seed == "" {
		return engine.Encounter{}, 0, fmt.Errorf("%w: -seed is required", ErrUsage)
	}
	seed, err := engine.ParseSeed(t.seed)
	if err != nil {
		return engine.Encounter{}, 0, err
	}

	if t.den != "" {
		if t.species != 0 {
			return engine.Encounter{}, 0, fmt.Errorf("%w: give either -den or -species, not both", ErrUsage)
		}
		title, err := dens.ParseTitle(cfg.Title)
		if err != nil {
			return engine.Encounter{}, 0, err
		}
		badge, err := dens.ParseBadgeLevel(cfg.Badge)
		if err != nil {
			return engine.Encounter{}, 0, err
		}
		entry, err := table.Entry(t.den, title, badge, t.index)
		if err != nil {
			return engine.Encounter{}, 0, err
		}
		enc, err := table.Encounter(entry)
		return enc, seed, err
	}

	if t.species == 0 {
		return engine.Encounter{}, 0, fmt.Errorf("%w: -den or -species is required", ErrUsage)
	}
	if t.species > 0xffff || t.form > 0xff || t.flawless > 0xff || t.ratio > 0xff {
		return engine.Encounter{}, 0, fmt.Errorf("%w: numeric encounter field out of range", engine.ErrInvalidEncounter)
	}
	enc := engine.Encounter{
		Species:        uint16(t.species),
		AltForm:        uint8(t.form),
		MinFlawlessIVs: uint8(t.flawless),
		IsGmax:         t.gmax,
		GenderRatio:    uint8(t.ratio),
	}
	if err := enc.AbilityPool.UnmarshalText([]byte(t.ability)); err != nil {
		return engine.Encounter{}, 0, err
	}
	if err := enc.GenderPool.UnmarshalText([]byte(t.gender)); err != nil {
		return engine.Encounter{}, 0, err
	}
	if err := enc.ShinyPool.UnmarshalText([]byte(t.shinyPool)); err != nil {
		return engine.Encounter{}, 0, err
	}
	return enc, seed, enc.Validate()
}

// filterFlags builds a FrameFilter from text flags. Empty flags add no constraint.
type filterFlags struct {
	shiny   string
	ivs     string
	ability string
	gender  string
	natures string
	script  string
}

func (f *filterFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.shiny, "shiny", "", "shininess: none, star, square or any")
	fs.StringVar(&f.ivs, "ivs", "", "IV bands, e.g. atk:at_most:no_good,spe:at_least:best")
	fs.StringVar(&f.ability, "ability", "", "ability: first, second or hidden")
	fs.StringVar(&f.gender, "gender", "", "gender: male, female or genderless")
	fs.StringVar(&f.natures, "natures", "", "accepted natures, comma separated")
	fs.StringVar(&f.script, "script", "", "JavaScript predicate over frame")
}

// build returns nil when no filter flag was set
func (f *filterFlags) build() (*scan.FrameFilter, error) {
	if f.shiny == "" && f.ivs == "" && f.ability == "" && f.gender == "" && f.natures == "" {
		return nil, nil
	}

	ff := &scan.FrameFilter{}
	if f.shiny != "" {
		var s scan.ShinyFilter
		if err := s.UnmarshalText([]byte(f.shiny)); err != nil {
			return nil, err
		}
		ff.WithShiny(s)
	}
	if err := parseIVBands(ff, f.ivs); err != nil {
		return nil, err
	}
	if f.ability != "" {
		var a engine.Ability
		if err := a.UnmarshalText([]byte(f.ability)); err != nil {
			return nil, err
		}
		ff.WithAbility(a)
	}
	if f.gender != "" {
		var g engine.Gender
		if err := g.UnmarshalText([]byte(f.gender)); err != nil {
			return nil, err
		}
		ff.WithGender(g)
	}
	if f.natures != "" {
		set, err := scan.ParseNatureSet(f.natures)
		if err != nil {
			return nil, err
		}
		ff.Natures = &set
	}
	return ff, nil
}

var statByName = map[string]engine.Stat{
	"hp": engine.StatHP, "atk": engine.StatAtk, "def": engine.StatDef,
	"spa": engine.StatSpA, "spd": engine.StatSpD, "spe": engine.StatSpe,
}

// parseIVBands reads "stat:direction:judgment" items
func parseIVBands(ff *scan.FrameFilter, text string) error {
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return fmt.Errorf("%w: iv band %q is not stat:direction:judgment", scan.ErrInvalidFilter, item)
		}
		stat, ok := statByName[strings.ToLower(parts[0])]
		if !ok {
			return fmt.Errorf("%w: unknown stat %q", scan.ErrInvalidFilter, parts[0])
		}
		var dir scan.Direction
		if err := dir.UnmarshalText([]byte(parts[1])); err != nil {
			return err
		}
		var j scan.Judgment
		if err := j.UnmarshalText([]byte(parts[2])); err != nil {
			return err
		}
		ff.WithIV(stat, dir, j)
	}
	return nil
}
