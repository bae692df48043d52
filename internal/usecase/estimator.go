package usecase

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"mei-diagnostic/internal/calendar"
	"mei-diagnostic/internal/domain"
)

// DefaultAveragePeriodAmount is the historical average monthly DAS amount.
var DefaultAveragePeriodAmount = decimal.RequireFromString("75.60")

// EstimatorConfig tunes the debt projection.
type EstimatorConfig struct {
	AveragePeriodAmount decimal.Decimal
	// UseTrailingAverage replaces the constant with the mean of the most
	// recent paid guides, when there is at least one.
	UseTrailingAverage bool
	TrailingWindow     int
}

// Estimate is the estimator output.
type Estimate struct {
	TotalDebt   decimal.Decimal
	Periods     []domain.EstimatedPeriod
	IsEstimated bool
}

// Estimator sums overdue guides and projects guides withheld upstream for
// years whose DASN is still pending.
type Estimator struct {
	cfg   EstimatorConfig
	nowFn func() time.Time
}

// NewEstimator creates an estimator. A zero average falls back to
// DefaultAveragePeriodAmount.
func NewEstimator(cfg EstimatorConfig, nowFn func() time.Time) *Estimator {
	if cfg.AveragePeriodAmount.IsZero() {
		cfg.AveragePeriodAmount = DefaultAveragePeriodAmount
	}
	if cfg.TrailingWindow <= 0 {
		cfg.TrailingWindow = 12
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Estimator{cfg: cfg, nowFn: nowFn}
}

// Estimate computes the outstanding amount. Obligations are expected in the
// classifier's order (most recent first).
func (e *Estimator) Estimate(obligations []domain.PeriodicObligation, filings []domain.AnnualFiling, n *Narrator) Estimate {
	now := e.nowFn().In(calendar.BRT)
	currentYear := now.Year()

	// Step 1: explicit overdue guides
	est := Estimate{TotalDebt: decimal.Zero}
	recordsPerYear := make(map[int]int)
	for _, ob := range obligations {
		recordsPerYear[ob.Year]++
		if ob.DerivedStatus == domain.ObligationOverdue && ob.AmountValid {
			est.TotalDebt = est.TotalDebt.Add(ob.Amount)
		}
	}
	n.Sayf("explicit overdue debt: R$ %s", est.TotalDebt.StringFixed(2))

	// Step 2: years with a pending DASN
	pending := make(map[int]bool)
	for _, f := range filings {
		if f.DerivedStatus == domain.FilingPending && f.Year > 0 {
			pending[f.Year] = true
		}
	}
	years := make([]int, 0, len(pending))
	for y := range pending {
		years = append(years, y)
	}
	sort.Ints(years)

	marked := make(map[int]int)
	for _, y := range years {
		if y >= currentYear {
			continue
		}
		if recordsPerYear[y] > 0 {
			n.Sayf("warning: DASN %d pending but %d guides exist for that year, not estimating", y, recordsPerYear[y])
			continue
		}
		marked[y] = 12
	}

	// Step 3: the current year, withheld because last year's DASN is pending
	if (pending[currentYear-1] || pending[currentYear]) && recordsPerYear[currentYear] == 0 {
		elapsed := int(now.Month()) - 1
		marked[currentYear] = elapsed - recordsPerYear[currentYear]
	}

	// Step 4: project each marked year
	avg := e.averageAmount(obligations, n)
	for _, y := range sortedKeys(marked) {
		months := marked[y]
		if months <= 0 {
			continue
		}
		amount := avg.Mul(decimal.NewFromInt(int64(months)))
		est.TotalDebt = est.TotalDebt.Add(amount)
		est.Periods = append(est.Periods, domain.EstimatedPeriod{Year: y, Months: months, Amount: amount})
		est.IsEstimated = true
		n.Sayf("estimated %d guides for %d at R$ %s each: R$ %s", months, y, avg.StringFixed(2), amount.StringFixed(2))
	}
	return est
}

func (e *Estimator) averageAmount(obligations []domain.PeriodicObligation, n *Narrator) decimal.Decimal {
	if !e.cfg.UseTrailingAverage {
		return e.cfg.AveragePeriodAmount
	}
	var paid []decimal.Decimal
	for _, ob := range obligations {
		if ob.DerivedStatus == domain.ObligationPaid && ob.AmountValid && ob.Amount.IsPositive() {
			paid = append(paid, ob.Amount)
			if len(paid) == e.cfg.TrailingWindow {
				break
			}
		}
	}
	if len(paid) == 0 {
		return e.cfg.AveragePeriodAmount
	}
	avg := decimal.Avg(paid[0], paid[1:]...).Round(2)
	n.Sayf("using trailing average of %d paid guides: R$ %s", len(paid), avg.StringFixed(2))
	return avg
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
