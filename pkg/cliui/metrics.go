package cliui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/recall/pkg/metrics"
)

var (
	metricsBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	rateGood = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	rateWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	rateBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// RenderMetrics renders a pipeline metrics snapshot as a bordered table.
func RenderMetrics(s metrics.Snapshot) string {
	rows := [][2]string{
		{"processed", fmt.Sprintf("%d", s.TotalProcessed)},
		{"failed", fmt.Sprintf("%d", s.TotalFailed)},
		{"retries", fmt.Sprintf("%d", s.TotalRetries)},
		{"success rate", rateStyle(s).Render(fmt.Sprintf("%.1f%%", s.SuccessRate))},
		{"avg retries", fmt.Sprintf("%.2f", s.AvgRetriesPerMessage)},
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		label := KeyStyle.Render(fmt.Sprintf("%-*s", width, r[0]))
		lines = append(lines, label+"  "+ValueStyle.Render(r[1]))
	}

	return metricsBox.Render(strings.Join(lines, "\n"))
}

func rateStyle(s metrics.Snapshot) lipgloss.Style {
	switch {
	case s.TotalProcessed+s.TotalFailed == 0:
		return DimStyle
	case s.SuccessRate >= 95:
		return rateGood
	case s.SuccessRate >= 75:
		return rateWarn
	default:
		return rateBad
	}
}
