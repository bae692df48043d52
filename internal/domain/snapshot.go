package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComplianceState summarizes whether an entity is current on its obligations.
type ComplianceState string

const (
	ComplianceRegular   ComplianceState = "regular"
	ComplianceIrregular ComplianceState = "irregular"
)

// EstimatedPeriod records a projection added for a year whose guides were
// withheld upstream.
type EstimatedPeriod struct {
	Year   int             `json:"year"`
	Months int             `json:"months"`
	Amount decimal.Decimal `json:"amount"`
}

// DiagnosticSnapshot is the result of one complete diagnostic run.
type DiagnosticSnapshot struct {
	EntityID            string               `json:"entity_id"`
	PeriodicObligations []PeriodicObligation `json:"periodic_obligations"`
	AnnualFilings       []AnnualFiling       `json:"annual_filings"`
	EstimatedPeriods    []EstimatedPeriod    `json:"estimated_periods"`
	TotalDebt           decimal.Decimal      `json:"total_debt"`
	PendingFilingCount  int                  `json:"pending_filing_count"`
	ComplianceState     ComplianceState      `json:"compliance_state"`
	IsEstimated         bool                 `json:"is_estimated"`
	ComputedAt          time.Time            `json:"computed_at"`
}
