package cmd

import (
	"fmt"
	"strings"

	"github.com/GoCodeAlone/modhooks"
	"github.com/GoCodeAlone/modhooks/lifecycle"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func stateStyle(state modhooks.State) lipgloss.Style {
	switch state {
	case modhooks.StateEnabled:
		return okStyle
	case modhooks.StateDisabled:
		return warnStyle
	case modhooks.StateInstalled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	default:
		return dimStyle
	}
}

func renderModules(modules []lifecycle.ModuleStatus) string {
	if len(modules) == 0 {
		return dimStyle.Render("No modules discovered.") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%-16s %-10s %-12s %-8s %s", "ID", "VERSION", "STATE", "HANDLERS", "DEPENDS ON")))
	b.WriteString("\n")
	for _, m := range modules {
		state := fmt.Sprintf("%-12s", m.State)
		style := stateStyle(m.State)
		if m.Missing {
			state = fmt.Sprintf("%-12s", "missing")
			style = errStyle
		}
		fmt.Fprintf(&b, "%-16s %-10s %s %-8d %s\n",
			m.ID, m.Version, style.Render(state), m.Handlers, strings.Join(m.Dependencies, ", "))
	}
	return b.String()
}
