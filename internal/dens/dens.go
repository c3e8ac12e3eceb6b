// Package dens holds the static raid den tables and the per-species data
// needed to turn a den entry into an encounter.
package dens

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

//go:embed data/dens.json
var densJSON []byte

//go:embed data/personal.json
var personalJSON []byte

var (
	ErrDenNotFound     = errors.New("den not found")
	ErrEntryNotFound   = errors.New("den entry not found")
	ErrUnknownSpecies  = errors.New("unknown species")
	ErrInvalidSettings = errors.New("invalid den settings")
)

// Title is the game version; each den has separate entry lists per title.
type Title string

const (
	Sword  Title = "sword"
	Shield Title = "shield"
)

// ParseTitle accepts the title name in any case
func ParseTitle(s string) (Title, error) {
	switch t := Title(strings.ToLower(strings.TrimSpace(s))); t {
	case Sword, Shield:
		return t, nil
	}
	return "", fmt.Errorf("%w: title %q", ErrInvalidSettings, s)
}

// BadgeLevel selects which star levels are visible
type BadgeLevel string

const (
	BadgeAll   BadgeLevel = "all"
	BadgeBaby  BadgeLevel = "baby"  // 1-2 stars
	BadgeAdult BadgeLevel = "adult" // 3-5 stars
)

// ParseBadgeLevel accepts the level name in any case
func ParseBadgeLevel(s string) (BadgeLevel, error) {
	switch b := BadgeLevel(strings.ToLower(strings.TrimSpace(s))); b {
	case BadgeAll, BadgeBaby, BadgeAdult:
		return b, nil
	}
	return "", fmt.Errorf("%w: badge level %q", ErrInvalidSettings, s)
}

// Entry is one possible encounter in a den. Stars[i] means the entry
// appears at i+1 stars.
type Entry struct {
	Species        uint16             `json:"species"`
	AltForm        uint8              `json:"alt_form"`
	MinFlawlessIVs uint8              `json:"min_flawless_ivs"`
	AbilityPool    engine.AbilityPool `json:"ability_pool"`
	GenderPool     engine.GenderPool  `json:"gender_pool"`
	IsGmax         bool               `json:"is_gmax"`
	Stars          [5]bool            `json:"stars"`
}

// visibleAt reports whether the entry has a star level the badge level shows
func (e Entry) visibleAt(badge BadgeLevel) bool {
	for stars, present := range e.Stars {
		if !present {
			continue
		}
		switch badge {
		case BadgeAll:
			return true
		case BadgeBaby:
			if stars < 2 {
				return true
			}
		case BadgeAdult:
			if stars >= 2 {
				return true
			}
		}
	}
	return false
}

// Den is a raid den with its Sword and Shield entry lists
type Den struct {
	ID     string  `json:"id"`
	Sword  []Entry `json:"sw"`
	Shield []Entry `json:"sh"`
}

// Entries returns the list for a title
func (d Den) Entries(title Title) []Entry {
	if title == Shield {
		return d.Shield
	}
	return d.Sword
}

// Personal is the subset of per-species data raids need
type Personal struct {
	Species     uint16 `json:"species"`
	Form        uint8  `json:"form"`
	Name        string `json:"name"`
	GenderRatio uint8  `json:"gender_ratio"`
}

type personalKey struct {
	species uint16
	form    uint8
}

// Table is a loaded, immutable set of dens and personal data
type Table struct {
	dens     []Den
	byID     map[string]int
	personal map[personalKey]Personal
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table. Embedded data is checked by tests,
// so a load failure here is a build defect and panics.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(densJSON, personalJSON)
		if err != nil {
			panic(fmt.Sprintf("failed to load embedded den tables: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Load parses den and personal JSON and checks every entry resolves
func Load(densData, personalData []byte) (*Table, error) {
	var personal []Personal
	if err := json.Unmarshal(personalData, &personal); err != nil {
		return nil, fmt.Errorf("parse personal table: %w", err)
	}
	var dens []Den
	if err := json.Unmarshal(densData, &dens); err != nil {
		return nil, fmt.Errorf("parse den table: %w", err)
	}

	t := &Table{
		dens:     dens,
		byID:     make(map[string]int, len(dens)),
		personal: make(map[personalKey]Personal, len(personal)),
	}
	for _, p := range personal {
		t.personal[personalKey{p.Species, p.Form}] = p
	}

	for i, d := range dens {
		if d.ID == "" {
			return nil, fmt.Errorf("den %d has no id", i)
		}
		if _, dup := t.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate den id %q", d.ID)
		}
		t.byID[d.ID] = i

		for _, title := range []Title{Sword, Shield} {
			for j, e := range d.Entries(title) {
				if _, err := t.Encounter(e); err != nil {
					return nil, fmt.Errorf("den %s %s entry %d: %w", d.ID, title, j, err)
				}
			}
		}
	}

	sort.SliceStable(t.dens, func(i, j int) bool { return denLess(t.dens[i].ID, t.dens[j].ID) })
	for i, d := range t.dens {
		t.byID[d.ID] = i
	}
	return t, nil
}

// Numeric ids sort numerically, the rest after them by text.
func denLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// Get returns a den by id
func (t *Table) Get(id string) (Den, error) {
	i, ok := t.byID[id]
	if !ok {
		return Den{}, fmt.Errorf("%w: %q", ErrDenNotFound, id)
	}
	return t.dens[i], nil
}

// List returns all dens in id order
func (t *Table) List() []Den {
	out := make([]Den, len(t.dens))
	copy(out, t.dens)
	return out
}

// Entries returns the entries of a den visible for the title and badge level
func (t *Table) Entries(id string, title Title, badge BadgeLevel) ([]Entry, error) {
	d, err := t.Get(id)
	if err != nil {
		return nil, err
	}

	all := d.Entries(title)
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.visibleAt(badge) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entry returns the index-th visible entry of a den
func (t *Table) Entry(id string, title Title, badge BadgeLevel, index int) (Entry, error) {
	entries, err := t.Entries(id, title, badge)
	if err != nil {
		return Entry{}, err
	}
	if index < 0 || index >= len(entries) {
		return Entry{}, fmt.Errorf("%w: den %s index %d of %d", ErrEntryNotFound, id, index, len(entries))
	}
	return entries[index], nil
}

// Personal looks up species data, falling back to the base form
func (t *Table) Personal(species uint16, form uint8) (Personal, bool) {
	if p, ok := t.personal[personalKey{species, form}]; ok {
		return p, true
	}
	p, ok := t.personal[personalKey{species, 0}]
	return p, ok
}

// Encounter resolves an entry into generator input. Den raids are never
// shiny-locked, and the gender ratio comes from the personal table.
func (t *Table) Encounter(e Entry) (engine.Encounter, error) {
	p, ok := t.Personal(e.Species, e.AltForm)
	if !ok {
		return engine.Encounter{}, fmt.Errorf("%w: %d form %d", ErrUnknownSpecies, e.Species, e.AltForm)
	}

	enc := engine.Encounter{
		Species:        e.Species,
		AltForm:        e.AltForm,
		MinFlawlessIVs: e.MinFlawlessIVs,
		IsGmax:         e.IsGmax,
		AbilityPool:    e.AbilityPool,
		GenderPool:     e.GenderPool,
		GenderRatio:    p.GenderRatio,
		ShinyPool:      engine.ShinyRandom,
	}
	if err := enc.Validate(); err != nil {
		return engine.Encounter{}, err
	}
	return enc, nil
}

// Label formats an entry for display, e.g. "Meowstic 1 (F)"
func (t *Table) Label(e Entry) string {
	parts := []string{fmt.Sprintf("#%d", e.Species)}
	if p, ok := t.Personal(e.Species, e.AltForm); ok && p.Name != "" {
		parts[0] = p.Name
	}
	if e.AltForm > 0 {
		parts = append(parts, strconv.Itoa(int(e.AltForm)))
	}
	if e.IsGmax {
		parts = append(parts, "G-Max")
	}
	switch e.GenderPool {
	case engine.GenderLockedMale:
		parts = append(parts, "(M)")
	case engine.GenderLockedFemale:
		parts = append(parts, "(F)")
	}
	return strings.Join(parts, " ")
}

// StarRange returns the lowest and highest star level of an entry
func (e Entry) StarRange() (lo, hi int) {
	for i, present := range e.Stars {
		if !present {
			continue
		}
		if lo == 0 {
			lo = i + 1
		}
		hi = i + 1
	}
	return lo, hi
}
