package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders a report's result rows as a CSV string.
func RenderCSV(rows []ResultRow) string {
	var sb strings.Builder

	sb.WriteString("scenario_id,group_level,grouping,total_trades,wins,losses,timeouts,")
	sb.WriteString("win_rate_percent,r_ratio,expectancy_r,profit_factor\n")

	for _, row := range rows {
		pf := ""
		if !row.KPIs.ProfitFactor.NoLosses {
			pf = fmt.Sprintf("%.6f", row.KPIs.ProfitFactor.Value)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%d,%d,%.2f,%.6f,%.6f,%s\n",
			row.ScenarioID,
			row.GroupLevel,
			row.Grouping,
			row.Totals.Total,
			row.Totals.Wins,
			row.Totals.Losses,
			row.Totals.Timeouts,
			row.KPIs.WinRatePercent,
			row.KPIs.RRatio,
			row.KPIs.ExpectancyR,
			pf,
		))
	}

	return sb.String()
}
