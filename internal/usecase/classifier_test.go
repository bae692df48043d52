package usecase_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mei-diagnostic/internal/domain"
	"mei-diagnostic/internal/usecase"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "R$ 1.234,56", want: "1234.56"},
		{input: "R$ 75,00", want: "75"},
		{input: "R$75,60", want: "75.6"},
		{input: "R$ 1.000.000,01", want: "1000000.01"},
		{input: "  70,6 ", want: "70.6"},
		{input: "0,00", want: "0"},
		{input: "", wantErr: true},
		{input: "R$ ", wantErr: true},
		{input: "R$ --", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "-R$ 5,00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := usecase.ParseAmount(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrMalformedAmount)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		label string
		year  int
		month time.Month
		ok    bool
	}{
		{"Março/2024", 2024, time.March, true},
		{"MARCO/2024", 2024, time.March, true},
		{"03/2024", 2024, time.March, true},
		{"dezembro de 2023", 2023, time.December, true},
		{"Fev/2025", 2025, time.February, true},
		{"2024", 0, 0, false},
		{"Março", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			year, month, ok := usecase.ParsePeriod(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.year, year)
			assert.Equal(t, tt.month, month)
		})
	}
}

func TestClassifier_ClassifyPeriodic(t *testing.T) {
	now := at(2024, time.May, 20)
	c := usecase.NewClassifier(fixedClock(now))

	tests := []struct {
		name        string
		raw         domain.RawPeriodic
		wantStatus  domain.ObligationStatus
		wantDue     *time.Time
		wantYear    int
		amountValid bool
	}{
		{
			name:        "liquidado is paid even when past due",
			raw:         domain.RawPeriodic{Period: "Janeiro/2020", DueDate: "20/02/2020", Total: "R$ 52,25", Status: "LIQUIDADO"},
			wantStatus:  domain.ObligationPaid,
			wantDue:     ptr(day(2020, time.February, 20)),
			wantYear:    2020,
			amountValid: true,
		},
		{
			name:        "pago in any case is paid",
			raw:         domain.RawPeriodic{Period: "Junho/2024", DueDate: "22/07/2024", Total: "R$ 75,60", Status: "Pago via PIX"},
			wantStatus:  domain.ObligationPaid,
			wantDue:     ptr(day(2024, time.July, 22)),
			wantYear:    2024,
			amountValid: true,
		},
		{
			name:        "past due is overdue",
			raw:         domain.RawPeriodic{Period: "Março/2024", DueDate: "22/04/2024", Total: "R$ 75,60", Status: "Devedor"},
			wantStatus:  domain.ObligationOverdue,
			wantDue:     ptr(day(2024, time.April, 22)),
			wantYear:    2024,
			amountValid: true,
		},
		{
			name:        "due today is upcoming",
			raw:         domain.RawPeriodic{Period: "Abril/2024", DueDate: "20/05/2024", Total: "R$ 75,60"},
			wantStatus:  domain.ObligationUpcoming,
			wantDue:     ptr(day(2024, time.May, 20)),
			wantYear:    2024,
			amountValid: true,
		},
		{
			name:        "due date derived from the period and rolled to a business day",
			raw:         domain.RawPeriodic{Period: "Março/2024", Total: "R$ 75,60"},
			wantStatus:  domain.ObligationOverdue,
			wantDue:     ptr(day(2024, time.April, 22)),
			wantYear:    2024,
			amountValid: true,
		},
		{
			name:        "unparseable explicit date falls back to the period",
			raw:         domain.RawPeriodic{Period: "Abril/2024", DueDate: "amanhã", Total: "R$ 75,60"},
			wantStatus:  domain.ObligationUpcoming,
			wantDue:     ptr(day(2024, time.May, 20)),
			wantYear:    2024,
			amountValid: true,
		},
		{
			name:        "malformed amount is kept but flagged",
			raw:         domain.RawPeriodic{Period: "Fevereiro/2024", DueDate: "20/03/2024", Total: "indisponível"},
			wantStatus:  domain.ObligationOverdue,
			wantDue:     ptr(day(2024, time.March, 20)),
			wantYear:    2024,
			amountValid: false,
		},
		{
			name:        "explicit year field wins",
			raw:         domain.RawPeriodic{Period: "13º", Total: "R$ 10,00", Year: "2022"},
			wantStatus:  domain.ObligationUpcoming,
			wantYear:    2022,
			amountValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyPeriodic([]domain.RawPeriodic{tt.raw}, nil)
			require.Len(t, got, 1)
			ob := got[0]
			assert.Equal(t, tt.wantStatus, ob.DerivedStatus)
			assert.Equal(t, tt.wantYear, ob.Year)
			assert.Equal(t, tt.amountValid, ob.AmountValid)
			assert.Equal(t, tt.raw.Status, ob.RawStatus)
			if tt.wantDue == nil {
				assert.Nil(t, ob.DueDate)
			} else {
				require.NotNil(t, ob.DueDate)
				assert.True(t, tt.wantDue.Equal(*ob.DueDate), "due %v, want %v", ob.DueDate, tt.wantDue)
			}
		})
	}
}

func TestClassifier_ClassifyPeriodic_SortsByDueDateDescending(t *testing.T) {
	c := usecase.NewClassifier(fixedClock(at(2024, time.May, 20)))
	raw := []domain.RawPeriodic{
		{Period: "Janeiro/2024", Total: "1,00"},
		{Period: "sem data", Total: "2,00"},
		{Period: "Março/2024", Total: "3,00"},
		{Period: "Março/2024", Total: "4,00"},
		{Period: "Fevereiro/2024", Total: "5,00"},
	}

	got := c.ClassifyPeriodic(raw, nil)
	require.Len(t, got, 5)

	var amounts []string
	for _, ob := range got {
		amounts = append(amounts, ob.Amount.String())
	}
	assert.Equal(t, []string{"3", "4", "5", "1", "2"}, amounts)
}

func TestClassifier_ClassifyPeriodic_NarratesProblems(t *testing.T) {
	c := usecase.NewClassifier(fixedClock(at(2024, time.May, 20)))
	narrator := usecase.NewNarrator("run", nil, nil)

	c.ClassifyPeriodic([]domain.RawPeriodic{{Period: "???", Total: "x"}}, narrator)

	lines := narrator.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "excluded from totals")
	assert.Contains(t, lines[1], "due date could not be determined")
}

func TestClassifier_ClassifyAnnual(t *testing.T) {
	c := usecase.NewClassifier(fixedClock(at(2024, time.May, 20)))

	tests := []struct {
		name string
		raw  domain.RawAnnual
		want domain.FilingStatus
	}{
		{"regular marker", domain.RawAnnual{Year: "2022", Status: "Regular"}, domain.FilingFiled},
		{"apresentada marker", domain.RawAnnual{Year: "2022", Status: "Declaração apresentada"}, domain.FilingFiled},
		{"submission date alone", domain.RawAnnual{Year: "2023", SubmittedDate: "15/05/2024"}, domain.FilingFiled},
		{"not opted in", domain.RawAnnual{Year: "2019", Status: "Não optante"}, domain.FilingExempt},
		{"not opted in with hyphen", domain.RawAnnual{Year: "2019", Status: "NAO-OPTANTE"}, domain.FilingExempt},
		{"absent status", domain.RawAnnual{Year: "2023"}, domain.FilingPending},
		{"irregular is not regular", domain.RawAnnual{Year: "2023", Status: "Irregular"}, domain.FilingPending},
		{"negated submission", domain.RawAnnual{Year: "2023", Status: "Não apresentada"}, domain.FilingPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyAnnual([]domain.RawAnnual{tt.raw}, nil)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].DerivedStatus)
		})
	}
}

func TestClassifier_ClassifyAnnual_Fields(t *testing.T) {
	c := usecase.NewClassifier(fixedClock(at(2024, time.May, 20)))

	got := c.ClassifyAnnual([]domain.RawAnnual{{Year: "2023", Status: "Apresentada", SubmittedDate: "15/05/2024"}}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 2023, got[0].Year)
	require.NotNil(t, got[0].SubmittedDate)
	assert.True(t, day(2024, time.May, 15).Equal(*got[0].SubmittedDate))
}

func ptr[T any](v T) *T {
	return &v
}
