package replay

import (
	"fmt"
	"os"
	"strings"
	"time"

	"winter/internal/perf"
	"winter/internal/xerrors"
)

// WriteTradesCSV writes the fill log in the winter_trades.csv layout: a
// header, one row per fill (P&L filled only on SELL rows), an empty row,
// then the summary block.
func WriteTradesCSV(path string, trades []TradeRow, initialBalance, finalBalance float64) error {
	var b strings.Builder
	b.WriteString("Time,Symbol,Side,Quantity,Price,Value,P&L,Z-Score\n")
	for _, t := range trades {
		b.WriteString(csvField(formatTimestamp(t.TimestampUS)))
		b.WriteByte(',')
		b.WriteString(csvField(t.Symbol))
		b.WriteByte(',')
		b.WriteString(t.Side)
		fmt.Fprintf(&b, ",%d,%.2f,%.2f,", t.Quantity, t.Price, t.Value)
		if t.Side == "SELL" {
			fmt.Fprintf(&b, "%.2f", t.RealizedPnL)
		}
		fmt.Fprintf(&b, ",%.4f\n", t.ZScore)
	}
	b.WriteString("\n")
	b.WriteString("Summary\n")
	fmt.Fprintf(&b, "Initial Balance:,%.2f\n", initialBalance)
	fmt.Fprintf(&b, "Final Balance:,%.2f\n", finalBalance)
	fmt.Fprintf(&b, "P&L:,%.2f\n", finalBalance-initialBalance)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return xerrors.Wrapf(err, "replay: write %s", path)
	}
	return nil
}

// csvField quotes a field that carries a comma, quote, or newline.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatTimestamp(us int64) string {
	if us <= 0 {
		return fmt.Sprintf("%d", us)
	}
	return time.UnixMicro(us).UTC().Format("15:04:05")
}

// WriteBacktestReport writes a self-contained HTML page with the metrics
// table and the equity curve rendered as an inline SVG; nothing is loaded
// from the network.
func WriteBacktestReport(path string, m perf.Metrics, equity []EquityPoint, initialBalance float64) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<title>Backtest Report</title>\n<style>\n")
	b.WriteString("body{font-family:sans-serif;margin:2em;background:#fafafa}\n")
	b.WriteString("table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 12px;text-align:right}\n")
	b.WriteString("th{background:#eee}svg{background:#fff;border:1px solid #ccc}\n")
	b.WriteString("</style></head><body>\n<h1>Backtest Report</h1>\n")

	finalBalance := initialBalance
	if len(equity) > 0 {
		finalBalance = equity[len(equity)-1].Equity
	}

	b.WriteString("<h2>Summary</h2>\n<table>\n")
	writeMetricRow(&b, "Initial Balance", fmt.Sprintf("%.2f", initialBalance))
	writeMetricRow(&b, "Final Balance", fmt.Sprintf("%.2f", finalBalance))
	writeMetricRow(&b, "P&amp;L", fmt.Sprintf("%.2f", finalBalance-initialBalance))
	writeMetricRow(&b, "Total Return", fmt.Sprintf("%.2f%%", m.TotalReturn*100))
	writeMetricRow(&b, "Annualized Return", fmt.Sprintf("%.2f%%", m.AnnualizedReturn*100))
	writeMetricRow(&b, "Sharpe Ratio", fmt.Sprintf("%.4f", m.SharpeRatio))
	writeMetricRow(&b, "Sortino Ratio", fmt.Sprintf("%.4f", m.SortinoRatio))
	writeMetricRow(&b, "Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100))
	writeMetricRow(&b, "Max Drawdown Duration", fmt.Sprintf("%d points", m.MaxDrawdownDuration))
	writeMetricRow(&b, "Calmar Ratio", fmt.Sprintf("%.4f", m.CalmarRatio))
	writeMetricRow(&b, "Volatility", fmt.Sprintf("%.2f%%", m.Volatility*100))
	writeMetricRow(&b, "Profit Factor", fmt.Sprintf("%.4f", m.ProfitFactor))
	writeMetricRow(&b, "Win Rate", fmt.Sprintf("%.2f%%", m.WinRate*100))
	writeMetricRow(&b, "Avg MFE", fmt.Sprintf("%.2f", m.AvgMFE))
	writeMetricRow(&b, "Avg MAE", fmt.Sprintf("%.2f", m.AvgMAE))
	writeMetricRow(&b, "Total Trades", fmt.Sprintf("%d", m.TotalTrades))
	b.WriteString("</table>\n")

	b.WriteString("<h2>Equity Curve</h2>\n")
	writeEquitySVG(&b, equity)
	b.WriteString("</body></html>\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return xerrors.Wrapf(err, "replay: write %s", path)
	}
	return nil
}

// WriteTradeGraphs writes the standalone graphs page: the equity curve
// plus a per-fill P&L listing.
func WriteTradeGraphs(path string, equity []EquityPoint, trades []TradeRow) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">\n")
	b.WriteString("<title>Trade Result Graphs</title>\n<style>\n")
	b.WriteString("body{font-family:sans-serif;margin:2em;background:#fafafa}\n")
	b.WriteString("svg{background:#fff;border:1px solid #ccc}\n")
	b.WriteString("table{border-collapse:collapse;margin-top:1em}td,th{border:1px solid #ccc;padding:3px 10px;text-align:right}\n")
	b.WriteString("</style></head><body>\n<h1>Trade Result Graphs</h1>\n")

	b.WriteString("<h2>Equity Curve</h2>\n")
	writeEquitySVG(&b, equity)

	b.WriteString("<h2>Fills</h2>\n<table>\n<tr><th>Time</th><th>Symbol</th><th>Side</th><th>Qty</th><th>Price</th><th>P&amp;L</th></tr>\n")
	for _, t := range trades {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%.2f</td><td>%.2f</td></tr>\n",
			formatTimestamp(t.TimestampUS), t.Symbol, t.Side, t.Quantity, t.Price, t.RealizedPnL)
	}
	b.WriteString("</table>\n</body></html>\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return xerrors.Wrapf(err, "replay: write %s", path)
	}
	return nil
}

func writeMetricRow(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "<tr><th>%s</th><td>%s</td></tr>\n", name, value)
}

// writeEquitySVG renders the equity curve as a polyline scaled into a
// fixed 800x300 view box.
func writeEquitySVG(b *strings.Builder, equity []EquityPoint) {
	const width, height, pad = 800.0, 300.0, 10.0
	if len(equity) < 2 {
		b.WriteString("<p>Not enough equity points to draw a curve.</p>\n")
		return
	}

	lo, hi := equity[0].Equity, equity[0].Equity
	for _, p := range equity {
		if p.Equity < lo {
			lo = p.Equity
		}
		if p.Equity > hi {
			hi = p.Equity
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	fmt.Fprintf(b, "<svg width=\"%.0f\" height=\"%.0f\" viewBox=\"0 0 %.0f %.0f\">\n", width, height, width, height)
	b.WriteString("<polyline fill=\"none\" stroke=\"#2266cc\" stroke-width=\"1.5\" points=\"")
	for i, p := range equity {
		x := pad + (width-2*pad)*float64(i)/float64(len(equity)-1)
		y := height - pad - (height-2*pad)*(p.Equity-lo)/span
		fmt.Fprintf(b, "%.1f,%.1f ", x, y)
	}
	b.WriteString("\"/>\n</svg>\n")
}
