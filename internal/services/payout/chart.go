package payout

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/accrue/internal/models"
)

// RenderPreviewChart renders a PNG of a quoted schedule with two series:
// cumulative interest (green solid) and invested balance (gray dashed),
// which drops to zero when principal is returned at maturity.
// Returns raw PNG bytes.
func RenderPreviewChart(entries []models.PreviewEntry) ([]byte, error) {
	if len(entries) < 2 {
		return nil, fmt.Errorf("need at least 2 schedule entries, got %d", len(entries))
	}

	xValues := make([]float64, len(entries))
	interestY := make([]float64, len(entries))
	balanceY := make([]float64, len(entries))
	xTicks := make([]chart.Tick, len(entries))

	cumulative := decimal.Zero
	for i, e := range entries {
		cumulative = cumulative.Add(e.InterestPortion)
		xValues[i] = chart.TimeToFloat64(e.Date)
		interestY[i] = cumulative.InexactFloat64()
		balanceY[i] = e.RunningBalance.InexactFloat64()
		xTicks[i] = chart.Tick{Value: xValues[i], Label: e.Date.Format("Jan 06")}
	}

	interestSeries := chart.ContinuousSeries{
		Name: "Cumulative Interest",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("16a34a"), // green-600
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: interestY,
	}

	balanceSeries := chart.ContinuousSeries{
		Name: "Invested Balance",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: xValues,
		YValues: balanceY,
	}

	graph := chart.Chart{
		Title:  "Payout Schedule",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{Ticks: thinTicks(xTicks, 12)},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			interestSeries,
			balanceSeries,
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// thinTicks keeps at most max labelled ticks, always including the last.
func thinTicks(ticks []chart.Tick, max int) []chart.Tick {
	if len(ticks) <= max {
		return ticks
	}
	step := (len(ticks) + max - 1) / max
	var out []chart.Tick
	for i := 0; i < len(ticks); i += step {
		out = append(out, ticks[i])
	}
	if last := ticks[len(ticks)-1]; out[len(out)-1].Value != last.Value {
		out = append(out, last)
	}
	return out
}
