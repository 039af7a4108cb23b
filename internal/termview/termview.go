// Package termview prints the month view to a terminal.
package termview

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bnappcal/internal/app"
	"bnappcal/internal/grid"
	"bnappcal/internal/model"
)

const cellWidth = 12

var (
	colorPrimary  = lipgloss.Color("#6C63FF")
	colorMuted    = lipgloss.Color("#666666")
	colorAccent   = lipgloss.Color("#FF6B6B")
	colorBenjamin = lipgloss.Color("#7AA2F7")
	colorNana     = lipgloss.Color("#F7768E")
	colorBoth     = lipgloss.Color("#2EC4B6")
	colorSubtle   = lipgloss.Color("#414868")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	headerCellStyle = lipgloss.NewStyle().
			Width(cellWidth).
			Align(lipgloss.Center).
			Bold(true)

	cellStyle = lipgloss.NewStyle().
			Width(cellWidth).
			Height(4).
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorSubtle)

	outsideStyle = cellStyle.
			Foreground(colorMuted)

	todayStyle = cellStyle.
			BorderForeground(colorPrimary).
			Bold(true)

	busyStyle = cellStyle.
			BorderForeground(colorAccent)
)

// Render draws the header and the 6x7 grid.
func Render(m app.MonthView) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.Gregorian))
	if m.Hebrew != "" {
		b.WriteString("  ")
		b.WriteString(subtitleStyle.Render(m.Hebrew))
	}
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(m.City + " • " + m.Today))
	b.WriteString("\n\n")

	heads := make([]string, 0, len(app.WeekdayLetters))
	for _, h := range app.WeekdayLetters {
		heads = append(heads, headerCellStyle.Render(h))
	}
	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, heads...)}

	for week := 0; week*7 < len(m.Cells); week++ {
		end := min(week*7+7, len(m.Cells))
		cells := make([]string, 0, 7)
		for _, c := range m.Cells[week*7 : end] {
			cells = append(cells, renderCell(c))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	b.WriteString("\n")
	return b.String()
}

func renderCell(c grid.Cell) string {
	top := strconv.Itoa(c.Day)
	if c.HebrewDay != "" {
		top += " " + c.HebrewDay
	}
	switch c.Shabbat {
	case grid.MarkerCandle:
		top += " 🕯"
	case grid.MarkerHavdalah:
		top += " ✨"
	}

	lines := []string{top}
	if c.Holiday != "" {
		lines = append(lines, truncate(c.Holiday))
	}
	for _, p := range c.Previews {
		lines = append(lines, lipgloss.NewStyle().Foreground(ownerColor(p.Owner)).Render(truncate(p.Title)))
	}
	if c.More > 0 {
		lines = append(lines, "+ "+strconv.Itoa(c.More))
	}
	if c.Weather != nil {
		lines = append(lines, c.Weather.Emoji+" "+strconv.Itoa(c.Weather.TMax)+"°/"+strconv.Itoa(c.Weather.TMin)+"°")
	}

	style := cellStyle
	switch {
	case c.Today:
		style = todayStyle
	case c.Busy:
		style = busyStyle
	case !c.InMonth:
		style = outsideStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func ownerColor(o model.Owner) lipgloss.Color {
	switch o {
	case model.OwnerBenjamin:
		return colorBenjamin
	case model.OwnerNana:
		return colorNana
	default:
		return colorBoth
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= cellWidth-1 {
		return s
	}
	return string(r[:cellWidth-2]) + "…"
}
