package payout

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/bobmcallan/accrue/internal/models"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestRenderPreviewChart(t *testing.T) {
	entries, err := GeneratePreviewSchedule(models.PreviewRequest{
		Principal:  d("25000"),
		Rate:       d("4.5"),
		TermMonths: 36,
		Frequency:  models.FrequencyMonthly,
		StartDate:  date(2025, time.March, 1),
	})
	require.NoError(t, err)

	png, err := RenderPreviewChart(entries)
	require.NoError(t, err)
	require.Greater(t, len(png), len(pngMagic))
	assert.True(t, bytes.HasPrefix(png, pngMagic), "output is not a PNG")
}

func TestRenderPreviewChartNeedsTwoEntries(t *testing.T) {
	_, err := RenderPreviewChart(nil)
	assert.Error(t, err)

	entries, err := GeneratePreviewSchedule(models.PreviewRequest{
		Principal:  d("1000"),
		Rate:       d("5"),
		TermMonths: 12,
		Frequency:  models.FrequencyAtMaturity,
		StartDate:  date(2025, time.March, 1),
	})
	require.NoError(t, err)
	_, err = RenderPreviewChart(entries)
	assert.Error(t, err)
}

func TestThinTicks(t *testing.T) {
	ticks := make([]chart.Tick, 36)
	for i := range ticks {
		ticks[i] = chart.Tick{Value: float64(i)}
	}

	got := thinTicks(ticks, 12)
	assert.LessOrEqual(t, len(got), 13)
	assert.Equal(t, 0.0, got[0].Value)
	assert.Equal(t, 35.0, got[len(got)-1].Value)

	assert.Len(t, thinTicks(ticks[:5], 12), 5)
}
