package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() *InvestmentPlan {
	return &InvestmentPlan{
		Name:             "Fixed 12",
		Type:             PlanTypeFixedDeposit,
		MinAmount:        decimal.NewFromInt(1000),
		MaxAmount:        decimal.NewFromInt(100000),
		BaseRate:         decimal.NewFromFloat(5.5),
		MinTermMonths:    3,
		MaxTermMonths:    24,
		DefaultFrequency: FrequencyMonthly,
		RiskLevel:        2,
		Currency:         "USD",
		Brackets: []RateBracket{
			{Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(9999), Rate: decimal.NewFromFloat(5.5)},
			{Min: decimal.NewFromInt(10000), Max: decimal.NewFromInt(100000), Rate: decimal.NewFromInt(6)},
		},
	}
}

func TestInvestmentPlan_Validate(t *testing.T) {
	require.NoError(t, validPlan().Validate())

	tests := []struct {
		name    string
		mutate  func(p *InvestmentPlan)
		wantErr error
	}{
		{"missing name", func(p *InvestmentPlan) { p.Name = "" }, nil},
		{"bad type", func(p *InvestmentPlan) { p.Type = "crypto" }, nil},
		{"bad frequency", func(p *InvestmentPlan) { p.DefaultFrequency = "weekly" }, nil},
		{"max below min", func(p *InvestmentPlan) { p.MaxAmount = decimal.NewFromInt(10) }, ErrInvalidAmount},
		{"zero min term", func(p *InvestmentPlan) { p.MinTermMonths = 0 }, ErrInvalidTerm},
		{"max term below min", func(p *InvestmentPlan) { p.MaxTermMonths = 1 }, ErrInvalidTerm},
		{"risk out of range", func(p *InvestmentPlan) { p.RiskLevel = 6 }, nil},
		{"negative rate", func(p *InvestmentPlan) { p.BaseRate = decimal.NewFromInt(-1) }, nil},
		{"inverted bracket", func(p *InvestmentPlan) { p.Brackets[0].Max = decimal.NewFromInt(1) }, nil},
		{"missing currency", func(p *InvestmentPlan) { p.Currency = "" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestInvestmentPlan_Limits(t *testing.T) {
	p := validPlan()
	assert.True(t, p.AcceptsAmount(decimal.NewFromInt(1000)))
	assert.True(t, p.AcceptsAmount(decimal.NewFromInt(100000)))
	assert.False(t, p.AcceptsAmount(decimal.NewFromInt(999)))
	assert.False(t, p.AcceptsAmount(decimal.NewFromInt(100001)))

	p.MaxAmount = decimal.Zero
	assert.True(t, p.AcceptsAmount(decimal.NewFromInt(10_000_000)), "zero max means unbounded")

	assert.True(t, p.AcceptsTerm(3))
	assert.True(t, p.AcceptsTerm(24))
	assert.False(t, p.AcceptsTerm(2))
	assert.False(t, p.AcceptsTerm(25))
	assert.False(t, p.AcceptsTerm(0))
}

func TestRateBracket_Contains(t *testing.T) {
	b := RateBracket{Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(200)}
	assert.True(t, b.Contains(decimal.NewFromInt(100)))
	assert.True(t, b.Contains(decimal.NewFromInt(200)))
	assert.False(t, b.Contains(decimal.RequireFromString("200.01")))
	assert.False(t, b.Contains(decimal.NewFromInt(99)))
}

func TestPayoutFrequency(t *testing.T) {
	cases := map[PayoutFrequency]int{
		FrequencyMonthly:    1,
		FrequencyQuarterly:  3,
		FrequencySemiAnnual: 6,
		FrequencyAnnual:     12,
		FrequencyAtMaturity: 0,
	}
	for f, months := range cases {
		parsed, err := ParsePayoutFrequency(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
		assert.Equal(t, months, f.MonthsPerPeriod(), string(f))
	}

	_, err := ParsePayoutFrequency("fortnightly")
	assert.Error(t, err)
}
