package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus is the derived lifecycle status of a monthly DAS guide.
type ObligationStatus string

const (
	ObligationPaid     ObligationStatus = "paid"
	ObligationOverdue  ObligationStatus = "overdue"
	ObligationUpcoming ObligationStatus = "upcoming"
)

// FilingStatus is the derived status of an annual DASN declaration.
type FilingStatus string

const (
	FilingFiled   FilingStatus = "filed"
	FilingExempt  FilingStatus = "exempt"
	FilingPending FilingStatus = "pending"
)

// PeriodicObligation represents a monthly DAS guide after classification.
type PeriodicObligation struct {
	Period        string           `json:"period"`
	Year          int              `json:"year"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	AmountValid   bool             `json:"amount_valid"`
	RawStatus     string           `json:"raw_status,omitempty"`
	DerivedStatus ObligationStatus `json:"derived_status"`
}

// AnnualFiling represents a DASN declaration after classification.
type AnnualFiling struct {
	Year          int          `json:"year"`
	SubmittedDate *time.Time   `json:"submitted_date,omitempty"`
	RawStatus     string       `json:"raw_status,omitempty"`
	DerivedStatus FilingStatus `json:"derived_status"`
}

// RawPeriodic is a DAS record as extracted from the upstream body, with every
// scalar coerced to its string form.
type RawPeriodic struct {
	Period  string `json:"periodo"`
	DueDate string `json:"vencimento"`
	Total   string `json:"total"`
	Status  string `json:"situacao"`
	Year    string `json:"ano"`
}

// RawAnnual is a DASN record as extracted from the upstream body.
type RawAnnual struct {
	Year          string `json:"ano"`
	Status        string `json:"status"`
	SubmittedDate string `json:"dataApresentacao"`
}

// CanonicalResult is the normalized view of an upstream diagnostic body.
type CanonicalResult struct {
	PeriodicRaw []RawPeriodic `json:"periodic_raw"`
	AnnualRaw   []RawAnnual   `json:"annual_raw"`
}
