package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"mei-diagnostic/internal/calendar"
	"mei-diagnostic/internal/domain"
)

var paidMarkers = []string{"liquidado", "pago"}

var monthNames = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "marco": time.March,
	"abril": time.April, "maio": time.May, "junho": time.June,
	"julho": time.July, "agosto": time.August, "setembro": time.September,
	"outubro": time.October, "novembro": time.November, "dezembro": time.December,
}

// Classifier assigns derived statuses to raw DAS and DASN records.
type Classifier struct {
	nowFn func() time.Time
}

// NewClassifier creates a classifier. A nil nowFn means time.Now.
func NewClassifier(nowFn func() time.Time) *Classifier {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Classifier{nowFn: nowFn}
}

// ClassifyPeriodic converts raw guides into obligations, sorted by due date,
// most recent first. Malformed fields degrade the record, never drop it.
func (c *Classifier) ClassifyPeriodic(raw []domain.RawPeriodic, n *Narrator) []domain.PeriodicObligation {
	today := calendar.StartOfDay(c.nowFn())
	out := make([]domain.PeriodicObligation, 0, len(raw))

	for _, r := range raw {
		ob := domain.PeriodicObligation{
			Period:    r.Period,
			RawStatus: r.Status,
		}

		amount, err := ParseAmount(r.Total)
		if err != nil {
			n.Sayf("guide %q: %v, excluded from totals", r.Period, err)
		} else {
			ob.Amount = amount
			ob.AmountValid = true
		}

		if due, ok := resolveDueDate(r); ok {
			ob.DueDate = &due
		} else {
			n.Sayf("guide %q: due date could not be determined", r.Period)
		}
		ob.Year = resolveYear(r, ob.DueDate)

		switch {
		case isPaid(r.Status):
			ob.DerivedStatus = domain.ObligationPaid
		case ob.DueDate != nil && ob.DueDate.Before(today):
			ob.DerivedStatus = domain.ObligationOverdue
		default:
			ob.DerivedStatus = domain.ObligationUpcoming
		}
		out = append(out, ob)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})
	return out
}

// ClassifyAnnual converts raw declarations into filings.
func (c *Classifier) ClassifyAnnual(raw []domain.RawAnnual, n *Narrator) []domain.AnnualFiling {
	out := make([]domain.AnnualFiling, 0, len(raw))
	for _, r := range raw {
		f := domain.AnnualFiling{RawStatus: r.Status}

		year, err := strconv.Atoi(strings.TrimSpace(r.Year))
		if err != nil {
			n.Sayf("declaration with unreadable year %q", r.Year)
		}
		f.Year = year

		if r.SubmittedDate != "" {
			if d, ok := parseDate(r.SubmittedDate); ok {
				f.SubmittedDate = &d
			}
		}

		status := fold(r.Status)
		switch {
		case isFiledStatus(status) || r.SubmittedDate != "":
			f.DerivedStatus = domain.FilingFiled
		case isExemptStatus(status):
			f.DerivedStatus = domain.FilingExempt
		default:
			f.DerivedStatus = domain.FilingPending
		}
		out = append(out, f)
	}
	return out
}

// ParseAmount parses a localized currency string such as "R$ 1.234,56".
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ReplaceAll(s, "R$", ""))
	if clean == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", domain.ErrMalformedAmount)
	}

	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.Replace(clean, ",", ".", 1)

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrMalformedAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative value %q", domain.ErrMalformedAmount, s)
	}
	return d, nil
}

// ParsePeriod reads a competence label such as "Março/2024", "03/2024" or
// "março de 2024".
func ParsePeriod(label string) (int, time.Month, bool) {
	tokens := strings.FieldsFunc(fold(label), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var (
		year  int
		month time.Month
	)
	for _, tok := range tokens {
		if n, err := strconv.Atoi(tok); err == nil {
			switch {
			case len(tok) == 4:
				year = n
			case n >= 1 && n <= 12 && month == 0:
				month = time.Month(n)
			}
			continue
		}
		if m, ok := monthFromName(tok); ok && month == 0 {
			month = m
		}
	}
	if year == 0 || month == 0 {
		return 0, 0, false
	}
	return year, month, true
}

func monthFromName(tok string) (time.Month, bool) {
	if m, ok := monthNames[tok]; ok {
		return m, true
	}
	if len(tok) < 3 {
		return 0, false
	}
	for name, m := range monthNames {
		if strings.HasPrefix(name, tok) {
			return m, true
		}
	}
	return 0, false
}

// resolveDueDate prefers the explicit due date and otherwise derives it from
// the competence month.
func resolveDueDate(r domain.RawPeriodic) (time.Time, bool) {
	if r.DueDate != "" {
		if d, ok := parseDate(r.DueDate); ok {
			return d, true
		}
	}
	year, month, ok := ParsePeriod(r.Period)
	if !ok {
		return time.Time{}, false
	}
	return calendar.DueDateForPeriod(year, month), true
}

func resolveYear(r domain.RawPeriodic, due *time.Time) int {
	if y, err := strconv.Atoi(strings.TrimSpace(r.Year)); err == nil && y > 0 {
		return y
	}
	if y, _, ok := ParsePeriod(r.Period); ok {
		return y
	}
	if due != nil {
		return due.Year()
	}
	return 0
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006", "2006-01-02", time.RFC3339} {
		if d, err := time.ParseInLocation(layout, s, calendar.BRT); err == nil {
			return calendar.StartOfDay(d), true
		}
	}
	return time.Time{}, false
}

func isPaid(status string) bool {
	s := fold(status)
	for _, m := range paidMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isFiledStatus(s string) bool {
	for _, neg := range []string{"irregular", "nao apresentad", "nao entregue", "pendente"} {
		if strings.Contains(s, neg) {
			return false
		}
	}
	for _, m := range []string{"apresentada", "entregue", "regular"} {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isExemptStatus(s string) bool {
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Contains(s, "nao optante")
}
