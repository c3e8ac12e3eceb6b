package scripting

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

var excadrill = engine.Encounter{
	Species: 530, MinFlawlessIVs: 4,
	AbilityPool: engine.AbilityRandom, GenderPool: engine.GenderRandom, GenderRatio: 127,
}

func sampleFrame() engine.Frame {
	return engine.Frame{
		Skips:     6,
		Seed:      0xcb51371ed6531e57,
		IVs:       engine.IVs{31, 1, 15, 31, 31, 31},
		Shininess: engine.ShinySquare,
		Ability:   engine.AbilityHidden,
		Gender:    engine.GenderFemale,
		Nature:    engine.Bashful,
	}
}

func TestExpressionFilter(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{"shiny", `frame.shiny == "square"`, true},
		{"iv index", `frame.ivs[ATK] <= 1`, true},
		{"judge helper", `judge(frame.ivs[DEF]) == "decent"`, true},
		{"flawless count", `frame.flawless >= 5`, false},
		{"seed text", `frame.seed == "cb51371ed6531e57"`, true},
		{"combined", `frame.gender == "female" && frame.nature == "bashful" && frame.skips < 10`, true},
		{"truthy non-boolean", `frame.ivs[HP]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.source)
			require.NoError(t, err)
			require.Equal(t, tt.want, f.Matches(sampleFrame()))
			require.NoError(t, f.Err())
		})
	}
}

func TestProgramFilter(t *testing.T) {
	src := `
		var wanted = ["timid", "modest", "bashful"];
		function match(frame) {
			if (frame.shiny === "none") {
				return false;
			}
			return wanted.indexOf(frame.nature) >= 0;
		}
	`
	f, err := Compile(src)
	require.NoError(t, err)
	require.True(t, f.Matches(sampleFrame()))

	other := sampleFrame()
	other.Nature = engine.Adamant
	require.False(t, f.Matches(other))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("   ")
	require.ErrorIs(t, err, ErrEmptyScript)

	_, err = Compile("frame.ivs[")
	require.Error(t, err)
	require.Contains(t, err.Error(), "compile script")
}

func TestRuntimeErrorIsNonMatch(t *testing.T) {
	f, err := Compile(`frame.missing.field == 1`)
	require.NoError(t, err)

	require.False(t, f.Matches(sampleFrame()))
	require.Error(t, f.Err())
	require.True(t, strings.HasPrefix(f.Err().Error(), "frame 6:"))
}

func TestSandboxedGlobals(t *testing.T) {
	for _, src := range []string{
		`typeof require === "undefined"`,
		`typeof fetch === "undefined"`,
		`typeof eval === "undefined"`,
		`typeof Function === "undefined"`,
	} {
		f, err := Compile(src)
		require.NoError(t, err, src)
		require.True(t, f.Matches(sampleFrame()), src)
	}
}

func TestRunawayScriptTimesOut(t *testing.T) {
	f, err := Compile(`function match(frame) { while (true) {} }`)
	require.NoError(t, err)

	require.False(t, f.Matches(sampleFrame()))
	require.Error(t, f.Err())

	// The interrupt is cleared, so later calls still run.
	g, err := Compile(`frame.skips == 6`)
	require.NoError(t, err)
	require.True(t, g.Matches(sampleFrame()))
}

func TestLogs(t *testing.T) {
	f, err := Compile(`function match(frame) { console.log("seen", frame.skips); return false; }`)
	require.NoError(t, err)

	f.Matches(sampleFrame())
	logs := f.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, "seen 6", logs[0].Message)
}

func TestScriptAgreesWithFrameFilter(t *testing.T) {
	script, err := Compile(`frame.shiny == "square"`)
	require.NoError(t, err)
	ff := (&scan.FrameFilter{}).WithShiny(scan.ShinySquare)

	a, err := scan.Search(context.Background(), excadrill, 0xbb810e6006a2a035, script)
	require.NoError(t, err)
	b, err := scan.Search(context.Background(), excadrill, 0xbb810e6006a2a035, ff)
	require.NoError(t, err)
	require.Equal(t, b, a)
	require.Equal(t, uint64(6), a.Skips)
}

func TestScriptInParallelScan(t *testing.T) {
	script, err := Compile(`frame.shiny != "none"`)
	require.NoError(t, err)

	res, err := scan.NewScannerWithWorkers(4).Scan(context.Background(), scan.ScanRequest{
		Encounter: excadrill,
		Seed:      0xbb810e6006a2a035,
		SkipEnd:   20_000,
		Matcher:   script,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	require.Equal(t, uint64(6), res.Hits[0].Skips)

	ff := (&scan.FrameFilter{}).WithShiny(scan.ShinyAny)
	for _, h := range res.Hits {
		require.True(t, ff.Matches(h.Frame))
	}
}

func TestScriptCombinedWithFilterInScan(t *testing.T) {
	script, err := Compile(`frame.nature == "bashful"`)
	require.NoError(t, err)
	ff := (&scan.FrameFilter{}).WithShiny(scan.ShinySquare)

	res, err := scan.NewScannerWithWorkers(3).Scan(context.Background(), scan.ScanRequest{
		Encounter: excadrill,
		Seed:      0xbb810e6006a2a035,
		SkipEnd:   100,
		Matcher:   scan.AllOf{ff, script},
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, uint64(6), res.Hits[0].Skips)
}
