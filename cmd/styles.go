package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"grimm.is/topoctl/internal/reconcile"
)

// Palette
var (
	ColorIce   = lipgloss.Color("#A8D8EA") // Headers
	ColorAlert = lipgloss.Color("#FF6B6B") // Failures
	ColorGood  = lipgloss.Color("#4ECDC4") // Changes applied
	ColorWarn  = lipgloss.Color("#FFE66D") // Skipped and conflicting objects
	ColorMuted = lipgloss.Color("#6c757d") // Nothing to do
)

var (
	StyleHeader = lipgloss.NewStyle().Foreground(ColorIce).Bold(true)

	StyleStatusGood  = lipgloss.NewStyle().Foreground(ColorGood).Bold(true)
	StyleStatusBad   = lipgloss.NewStyle().Foreground(ColorAlert).Bold(true)
	StyleStatusWarn  = lipgloss.NewStyle().Foreground(ColorWarn).Bold(true)
	StyleStatusMuted = lipgloss.NewStyle().Foreground(ColorMuted)

	StyleDiffAdd    = lipgloss.NewStyle().Foreground(ColorGood)
	StyleDiffRemove = lipgloss.NewStyle().Foreground(ColorAlert)
	StyleDiffHunk   = lipgloss.NewStyle().Foreground(ColorIce)
)

func outcomeStyle(o reconcile.Outcome) lipgloss.Style {
	switch o {
	case reconcile.Created, reconcile.Updated, reconcile.Removed:
		return StyleStatusGood
	case reconcile.Failed:
		return StyleStatusBad
	case reconcile.Skipped, reconcile.Conflict:
		return StyleStatusWarn
	}
	return StyleStatusMuted
}

func summaryStyle(r *reconcile.Report) lipgloss.Style {
	switch {
	case !r.Success():
		return StyleStatusBad
	case r.Counts()[reconcile.Conflict] > 0 || r.Interrupted:
		return StyleStatusWarn
	case r.Changed():
		return StyleStatusGood
	}
	return StyleStatusMuted
}
