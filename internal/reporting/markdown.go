package reporting

import (
	"fmt"
	"strings"
	"time"

	"backtest-lab/internal/domain"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Run Report %s\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Strategy Type | %s |\n", r.StrategyType))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Status))
	sb.WriteString(fmt.Sprintf("| Scenarios | %d/%d |\n", r.CompletedScenarios, r.TotalScenarios))
	if r.StartedAt != nil {
		sb.WriteString(fmt.Sprintf("| Started | %s |\n", r.StartedAt.Format(time.RFC3339)))
	}
	if r.FinishedAt != nil {
		sb.WriteString(fmt.Sprintf("| Finished | %s |\n", r.FinishedAt.Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Overall\n\n")
	sb.WriteString("| Trades | Wins | Losses | Timeouts | Win Rate % |\n")
	sb.WriteString("|--------|------|--------|----------|------------|\n")
	t := r.Rollup.Totals
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %.2f |\n\n",
		t.Total, t.Wins, t.Losses, t.Timeouts, r.Rollup.WinRatePercent))

	sb.WriteString("## Scenarios\n\n")
	if len(r.Scenarios) > 0 {
		sb.WriteString("| Scenario | Status | Result Rows | Error |\n")
		sb.WriteString("|----------|--------|-------------|-------|\n")
		for _, sc := range r.Scenarios {
			errText := sc.Error
			if errText == "" {
				errText = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
				sc.ScenarioID, sc.Status, sc.ResultRows, errText))
		}
	} else {
		sb.WriteString("No scenarios.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Results\n\n")
	if len(r.Results) > 0 {
		sb.WriteString("| Scenario | Level | Grouping | Trades | Wins | Losses | Timeouts | Win Rate % | R | Expectancy R | Profit Factor |\n")
		sb.WriteString("|----------|-------|----------|--------|------|--------|----------|------------|---|--------------|---------------|\n")
		for _, row := range r.Results {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %d | %.2f | %.2f | %.4f | %s |\n",
				row.ScenarioID, row.GroupLevel, row.Grouping,
				row.Totals.Total, row.Totals.Wins, row.Totals.Losses, row.Totals.Timeouts,
				row.KPIs.WinRatePercent, row.KPIs.RRatio, row.KPIs.ExpectancyR,
				formatProfitFactor(row.KPIs.ProfitFactor)))
		}
	} else {
		sb.WriteString("No result rows.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// formatProfitFactor renders the ratio, or "-" for a bucket without
// losses where the ratio is undefined.
func formatProfitFactor(pf domain.ProfitFactor) string {
	if pf.NoLosses {
		return "-"
	}
	return fmt.Sprintf("%.4f", pf.Value)
}
