package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/tautsync/internal/models"
)

var styles = newPalette(paletteColors{
	title: "#7D56F4",
	ok:    "#04B575",
	err:   "#FF5F87",
	warn:  "#FFA500",
	muted: "#626262",
})

type paletteColors struct {
	title, ok, err, warn, muted string
}

// palette is a small stylesheet of named [lipgloss.Style] values
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func newPalette(c paletteColors) *palette {
	fg := func(color string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
	}
	return &palette{
		title: fg(c.title).Bold(true).MarginBottom(1),
		ok:    fg(c.ok).Bold(true),
		err:   fg(c.err).Bold(true),
		warn:  fg(c.warn),
		help:  fg(c.muted).Italic(true),
		label: fg(c.muted).Width(12),
	}
}

// status picks the style for a run outcome.
func (p *palette) status(s models.RunStatus) lipgloss.Style {
	switch s {
	case models.RunFailed:
		return p.err
	case models.RunPartial, models.RunRunning:
		return p.warn
	default:
		return p.ok
	}
}
