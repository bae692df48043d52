package usecase_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mei-diagnostic/internal/domain"
	"mei-diagnostic/internal/usecase"
)

var avg = decimal.RequireFromString("75.60")

func guide(year int, status domain.ObligationStatus, amount string) domain.PeriodicObligation {
	return domain.PeriodicObligation{
		Year:          year,
		Amount:        decimal.RequireFromString(amount),
		AmountValid:   true,
		DerivedStatus: status,
	}
}

func pendingFiling(year int) domain.AnnualFiling {
	return domain.AnnualFiling{Year: year, DerivedStatus: domain.FilingPending}
}

func TestEstimator_Estimate(t *testing.T) {
	tests := []struct {
		name        string
		now         time.Time
		obligations []domain.PeriodicObligation
		filings     []domain.AnnualFiling
		wantDebt    string
		wantPeriods []domain.EstimatedPeriod
		estimated   bool
	}{
		{
			name: "only overdue valid amounts are summed",
			now:  at(2024, time.January, 10),
			obligations: []domain.PeriodicObligation{
				guide(2023, domain.ObligationOverdue, "75.60"),
				guide(2023, domain.ObligationOverdue, "70.60"),
				guide(2023, domain.ObligationPaid, "1000"),
				guide(2024, domain.ObligationUpcoming, "75.60"),
				{Year: 2023, DerivedStatus: domain.ObligationOverdue, AmountValid: false},
			},
			wantDebt: "146.20",
		},
		{
			name:        "pending past year without guides adds twelve periods",
			now:         at(2024, time.January, 10),
			filings:     []domain.AnnualFiling{pendingFiling(2022)},
			wantDebt:    "907.20",
			wantPeriods: []domain.EstimatedPeriod{{Year: 2022, Months: 12, Amount: avg.Mul(decimal.NewFromInt(12))}},
			estimated:   true,
		},
		{
			name:        "pending past year with guides is not double counted",
			now:         at(2024, time.January, 10),
			obligations: []domain.PeriodicObligation{guide(2022, domain.ObligationOverdue, "61.00")},
			filings:     []domain.AnnualFiling{pendingFiling(2022)},
			wantDebt:    "61.00",
		},
		{
			name:    "pending previous year projects the current year partially",
			now:     at(2024, time.May, 10),
			filings: []domain.AnnualFiling{pendingFiling(2023)},
			// 12 for 2023 plus January..April for 2024
			wantDebt: "1209.60",
			wantPeriods: []domain.EstimatedPeriod{
				{Year: 2023, Months: 12, Amount: avg.Mul(decimal.NewFromInt(12))},
				{Year: 2024, Months: 4, Amount: avg.Mul(decimal.NewFromInt(4))},
			},
			estimated: true,
		},
		{
			name:        "pending current year with no guides projects elapsed months",
			now:         at(2024, time.March, 5),
			filings:     []domain.AnnualFiling{pendingFiling(2024)},
			wantDebt:    "151.20",
			wantPeriods: []domain.EstimatedPeriod{{Year: 2024, Months: 2, Amount: avg.Mul(decimal.NewFromInt(2))}},
			estimated:   true,
		},
		{
			name:        "current year with guides is skipped",
			now:         at(2024, time.May, 10),
			obligations: []domain.PeriodicObligation{guide(2024, domain.ObligationUpcoming, "75.60"), guide(2023, domain.ObligationPaid, "75.60")},
			filings:     []domain.AnnualFiling{pendingFiling(2023)},
			wantDebt:    "0",
		},
		{
			name:     "january never estimates zero months",
			now:      at(2024, time.January, 31),
			filings:  []domain.AnnualFiling{pendingFiling(2024)},
			wantDebt: "0",
		},
		{
			name:     "future and filed years are ignored",
			now:      at(2024, time.June, 1),
			filings:  []domain.AnnualFiling{pendingFiling(2026), {Year: 2022, DerivedStatus: domain.FilingFiled}, {Year: 2021, DerivedStatus: domain.FilingExempt}},
			wantDebt: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := usecase.NewEstimator(usecase.EstimatorConfig{AveragePeriodAmount: avg}, fixedClock(tt.now))
			got := e.Estimate(tt.obligations, tt.filings, nil)

			assert.True(t, decimal.RequireFromString(tt.wantDebt).Equal(got.TotalDebt), "debt %s, want %s", got.TotalDebt, tt.wantDebt)
			assert.Equal(t, tt.estimated, got.IsEstimated)
			require.Len(t, got.Periods, len(tt.wantPeriods))
			for i, p := range tt.wantPeriods {
				assert.Equal(t, p.Year, got.Periods[i].Year)
				assert.Equal(t, p.Months, got.Periods[i].Months)
				assert.True(t, p.Amount.Equal(got.Periods[i].Amount))
			}
			assert.False(t, got.TotalDebt.IsNegative())
		})
	}
}

func TestEstimator_WarnsWhenSkippingYear(t *testing.T) {
	e := usecase.NewEstimator(usecase.EstimatorConfig{}, fixedClock(at(2024, time.January, 10)))
	narrator := usecase.NewNarrator("run", nil, nil)

	e.Estimate([]domain.PeriodicObligation{guide(2022, domain.ObligationPaid, "60")}, []domain.AnnualFiling{pendingFiling(2022)}, narrator)

	assert.Contains(t, strings.Join(narrator.Lines(), "\n"), "warning: DASN 2022 pending but 1 guides exist")
}

func TestEstimator_DefaultAverage(t *testing.T) {
	e := usecase.NewEstimator(usecase.EstimatorConfig{}, fixedClock(at(2024, time.January, 10)))
	got := e.Estimate(nil, []domain.AnnualFiling{pendingFiling(2023)}, nil)

	assert.True(t, usecase.DefaultAveragePeriodAmount.Mul(decimal.NewFromInt(12)).Equal(got.TotalDebt))
}

func TestEstimator_TrailingAverage(t *testing.T) {
	cfg := usecase.EstimatorConfig{AveragePeriodAmount: avg, UseTrailingAverage: true, TrailingWindow: 2}
	e := usecase.NewEstimator(cfg, fixedClock(at(2024, time.January, 10)))

	obligations := []domain.PeriodicObligation{
		guide(2021, domain.ObligationPaid, "60.00"),
		guide(2021, domain.ObligationPaid, "61.00"),
		guide(2021, domain.ObligationPaid, "10.00"),
	}
	got := e.Estimate(obligations, []domain.AnnualFiling{pendingFiling(2022)}, nil)

	// (60 + 61) / 2 = 60.50, times 12
	assert.True(t, decimal.RequireFromString("726").Equal(got.TotalDebt), "debt %s", got.TotalDebt)
}

func TestEstimator_TrailingAverageFallsBackToConstant(t *testing.T) {
	cfg := usecase.EstimatorConfig{AveragePeriodAmount: avg, UseTrailingAverage: true}
	e := usecase.NewEstimator(cfg, fixedClock(at(2024, time.January, 10)))

	got := e.Estimate(nil, []domain.AnnualFiling{pendingFiling(2023)}, nil)
	assert.True(t, avg.Mul(decimal.NewFromInt(12)).Equal(got.TotalDebt))
}
