package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"framecast/internal/model"
)

type SummaryRow struct {
	Label string
	Value string
	Fail  bool
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Label))
		valueWidth = max(valueWidth, len(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		style := valueStyle
		if row.Fail {
			style = failStyle
		}
		lines = append(lines, fmt.Sprintf("%s | %s", labelStyle.Render(label), style.Render(value)))
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// ResultRows renders one row per format plus a row for any error text.
func ResultRows(results []model.Result) []SummaryRow {
	rows := make([]SummaryRow, 0, len(results)*2)
	for _, r := range results {
		label := strings.ToUpper(string(r.Format))
		if !r.Success {
			rows = append(rows, SummaryRow{Label: label, Value: "failed", Fail: true})
		} else {
			value := fmt.Sprintf("%s (%s)", r.Path, HumanBytes(r.CompressedSize))
			if r.CompressedSize != r.OriginalSize {
				value = fmt.Sprintf("%s (%s -> %s)", r.Path, HumanBytes(r.OriginalSize), HumanBytes(r.CompressedSize))
			}
			rows = append(rows, SummaryRow{Label: label, Value: value})
		}
		if r.Error != "" {
			rows = append(rows, SummaryRow{Label: "  error", Value: r.Error, Fail: true})
		}
	}
	return rows
}

func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(ColorWarn)
)
