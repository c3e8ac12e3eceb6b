package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	shinyStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("11"))
	bestStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("10"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	plainStyle  = lipgloss.NewStyle().Padding(0, 1)
)

var frameHeaders = []string{"Skips", "Seed", "Shiny", "HP", "Atk", "Def", "SpA", "SpD", "Spe", "Ability", "Gender", "Nature"}

const (
	colShiny = 2
	colHP    = 3
)

func frameRow(f engine.Frame) []string {
	row := []string{strconv.FormatUint(f.Skips, 10), f.Seed.String(), f.Shininess.Symbol()}
	for _, iv := range f.IVs {
		row = append(row, strconv.Itoa(int(iv)))
	}
	return append(row, f.Ability.Short(), f.Gender.Short(), f.Nature.Title())
}

// renderFrames draws frames as a table, highlighting shiny frames and flawless IVs
func renderFrames(frames []engine.Frame, color bool) string {
	rows := make([][]string, 0, len(frames))
	for _, f := range frames {
		rows = append(rows, frameRow(f))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		BorderHeader(true).
		BorderRow(false).
		Headers(frameHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if !color {
				return plainStyle
			}
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			f := frames[row]
			switch {
			case col == colShiny && f.Shininess != engine.ShinyNone:
				return shinyStyle
			case col >= colHP && col < colHP+engine.StatCount && f.IVs[col-colHP] == engine.MaxIV:
				return bestStyle
			}
			return cellStyle
		})
	return t.Render()
}

// renderDen draws the visible entries of one den
func renderDen(denTable *dens.Table, id string, entries []dens.Entry, color bool) string {
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		lo, hi := e.StarRange()
		stars := strconv.Itoa(lo)
		if hi != lo {
			stars = fmt.Sprintf("%d-%d", lo, hi)
		}
		rows = append(rows, []string{
			id,
			strconv.Itoa(i),
			denTable.Label(e),
			stars,
			strconv.Itoa(int(e.MinFlawlessIVs)),
			e.AbilityPool.String(),
			e.GenderPool.String(),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		BorderHeader(true).
		BorderRow(false).
		Headers("Den", "Index", "Pokemon", "Stars", "IVs", "Ability", "Gender").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if color && row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return plainStyle
		})
	return t.Render()
}
