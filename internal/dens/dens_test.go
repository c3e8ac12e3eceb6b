package dens

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-frame-finder/internal/engine"
)

func TestDefaultTableLoads(t *testing.T) {
	table := Default()
	require.NotEmpty(t, table.List())

	for _, d := range table.List() {
		for _, title := range []Title{Sword, Shield} {
			for _, e := range d.Entries(title) {
				enc, err := table.Encounter(e)
				require.NoError(t, err, "den %s %s species %d", d.ID, title, e.Species)
				require.NoError(t, enc.Validate())
			}
		}
	}
}

func TestListIsOrdered(t *testing.T) {
	ids := []string{}
	for _, d := range Default().List() {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestGet(t *testing.T) {
	d, err := Default().Get("2")
	require.NoError(t, err)
	require.Equal(t, "2", d.ID)

	_, err = Default().Get("999")
	require.ErrorIs(t, err, ErrDenNotFound)
}

func TestEntriesByBadge(t *testing.T) {
	table := Default()

	all, err := table.Entries("1", Sword, BadgeAll)
	require.NoError(t, err)
	require.Len(t, all, 5)

	baby, err := table.Entries("1", Sword, BadgeBaby)
	require.NoError(t, err)
	require.Len(t, baby, 2)
	for _, e := range baby {
		lo, _ := e.StarRange()
		require.LessOrEqual(t, lo, 2)
	}

	adult, err := table.Entries("1", Sword, BadgeAdult)
	require.NoError(t, err)
	require.Len(t, adult, 3)
	for _, e := range adult {
		_, hi := e.StarRange()
		require.GreaterOrEqual(t, hi, 3)
	}

	shield, err := table.Entries("1", Shield, BadgeAll)
	require.NoError(t, err)
	require.Equal(t, uint16(856), shield[1].Species)
}

func TestEntryIndex(t *testing.T) {
	e, err := Default().Entry("2", Sword, BadgeAll, 2)
	require.NoError(t, err)
	require.Equal(t, uint16(678), e.Species)
	require.Equal(t, engine.GenderLockedFemale, e.GenderPool)

	_, err = Default().Entry("2", Sword, BadgeAll, 50)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestEncounterResolvesGenderRatio(t *testing.T) {
	table := Default()

	tests := []struct {
		name  string
		den   string
		title Title
		index int
		ratio uint8
		pool  engine.GenderPool
	}{
		{"wigglytuff", "2", Sword, 3, 191, engine.GenderRandom},
		{"bronzong genderless", "2", Sword, 4, engine.RatioGenderless, engine.GenderRandom},
		{"hatenna always female", "1", Shield, 1, engine.RatioAlwaysFemale, engine.GenderRandom},
		{"sawk always male", "2", Shield, 2, engine.RatioAlwaysMale, engine.GenderRandom},
		{"meowstic locked", "2", Shield, 1, 127, engine.GenderLockedFemale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := table.Entry(tt.den, tt.title, BadgeAll, tt.index)
			require.NoError(t, err)
			enc, err := table.Encounter(e)
			require.NoError(t, err)
			require.Equal(t, tt.ratio, enc.GenderRatio)
			require.Equal(t, tt.pool, enc.GenderPool)
			require.Equal(t, engine.ShinyRandom, enc.ShinyPool)
		})
	}
}

func TestPersonalFallsBackToBaseForm(t *testing.T) {
	p, ok := Default().Personal(530, 3)
	require.True(t, ok)
	require.Equal(t, "Excadrill", p.Name)

	_, ok = Default().Personal(1, 0)
	require.False(t, ok)
}

func TestLabel(t *testing.T) {
	table := Default()
	require.Equal(t, "Meowstic 1 (F)", table.Label(Entry{Species: 678, AltForm: 1, GenderPool: engine.GenderLockedFemale}))
	require.Equal(t, "Toxtricity G-Max", table.Label(Entry{Species: 849, IsGmax: true}))
	require.Equal(t, "#9999", table.Label(Entry{Species: 9999}))
}

func TestLoadRejectsBadData(t *testing.T) {
	personal := []byte(`[{"species": 25, "form": 0, "name": "Pikachu", "gender_ratio": 127}]`)

	tests := []struct {
		name string
		dens string
	}{
		{"not json", `{`},
		{"missing id", `[{"id": "", "sw": [], "sh": []}]`},
		{"duplicate id", `[{"id": "1", "sw": [], "sh": []}, {"id": "1", "sw": [], "sh": []}]`},
		{"unknown species", `[{"id": "1", "sw": [{"species": 26, "min_flawless_ivs": 1, "ability_pool": "random", "gender_pool": "random"}], "sh": []}]`},
		{"bad flawless", `[{"id": "1", "sw": [{"species": 25, "min_flawless_ivs": 0, "ability_pool": "random", "gender_pool": "random"}], "sh": []}]`},
		{"bad pool name", `[{"id": "1", "sw": [{"species": 25, "min_flawless_ivs": 1, "ability_pool": "sometimes", "gender_pool": "random"}], "sh": []}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.dens), personal)
			require.Error(t, err)
		})
	}
}

func TestParseSettings(t *testing.T) {
	title, err := ParseTitle("Shield")
	require.NoError(t, err)
	require.Equal(t, Shield, title)

	_, err = ParseTitle("violet")
	require.ErrorIs(t, err, ErrInvalidSettings)

	badge, err := ParseBadgeLevel(" ADULT ")
	require.NoError(t, err)
	require.Equal(t, BadgeAdult, badge)

	_, err = ParseBadgeLevel("elder")
	require.ErrorIs(t, err, ErrInvalidSettings)
}
