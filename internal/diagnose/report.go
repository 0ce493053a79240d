package diagnose

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	repairedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	evidenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Render formats the report for an operator. With styled=false (stdout
// is not a terminal, or logs) the same layout is emitted without ANSI
// escapes.
func (r *Report) Render(styled bool) string {
	var b strings.Builder

	passed, failed, repaired := 0, 0, 0
	for _, res := range r.Results {
		switch {
		case res.Passed:
			passed++
			b.WriteString(mark(styled, passStyle, "✓") + " " + res.Name + "\n")
		case res.Repaired:
			repaired++
			b.WriteString(mark(styled, repairedStyle, "↻") + " " + res.Name + " (repaired)\n")
			b.WriteString(indent(styled, "was: "+res.Evidence))
		default:
			failed++
			b.WriteString(mark(styled, failStyle, "✗") + " " + res.Name + "\n")
			b.WriteString(indent(styled, res.Evidence))
			if res.RepairErr != nil {
				b.WriteString(indent(styled, "repair failed: "+res.RepairErr.Error()))
			}
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d passed, %d failed, %d repaired", passed, failed, repaired)
	if failed > 0 {
		b.WriteString(mark(styled, failStyle, summary) + "\n")
	} else {
		b.WriteString(mark(styled, passStyle, summary) + "\n")
	}
	return b.String()
}

func mark(styled bool, style lipgloss.Style, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

func indent(styled bool, s string) string {
	line := "    " + s
	if styled {
		line = evidenceStyle.Render(line)
	}
	return line + "\n"
}
