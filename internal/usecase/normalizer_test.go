package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mei-diagnostic/internal/domain"
	"mei-diagnostic/internal/usecase"
)

const settledGuideBody = `{
	"dAS": {"anos": [{"periodo": "Março/2024", "vencimento": "20/04/2024", "total": "R$ 75,00", "situacao": "Liquidado"}]},
	"dASN": {"anos": []}
}`

var settledGuide = domain.RawPeriodic{Period: "Março/2024", DueDate: "20/04/2024", Total: "R$ 75,00", Status: "Liquidado"}

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *domain.CanonicalResult
		wantErr bool
	}{
		{
			name: "bare object",
			body: settledGuideBody,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{settledGuide},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "envelope wrapped",
			body: `{"resultado": ` + settledGuideBody + `}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{settledGuide},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "array of envelopes",
			body: `[{"result": ` + settledGuideBody + `}, {"ignored": true}]`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{settledGuide},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "array of bare objects",
			body: `[` + settledGuideBody + `]`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{settledGuide},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "obligation specific list wins over years list",
			body: `{"dAS": {"guias": [{"periodo": "01/2024", "total": "R$ 70,60"}], "anos": [{"periodo": "02/2024"}]}, "dASN": {"declaracoes": [{"ano": 2023, "status": "Apresentada", "dataApresentacao": "10/04/2024"}]}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "01/2024", Total: "R$ 70,60"}},
				AnnualRaw:   []domain.RawAnnual{{Year: "2023", Status: "Apresentada", SubmittedDate: "10/04/2024"}},
			},
		},
		{
			name: "numeric and null scalars are coerced",
			body: `{"DAS": [{"periodo": "Abril/2024", "total": 75.6, "situacao": null, "ano": 2024}], "dasn": {"anos": [{"ano": "2023", "status": null}]}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Abril/2024", Total: "75,6", Year: "2024"}},
				AnnualRaw:   []domain.RawAnnual{{Year: "2023"}},
			},
		},
		{
			name: "year groups are flattened",
			body: `{"dAS": {"anos": [{"ano": 2023, "guias": [{"periodo": "Dezembro/2023", "total": "R$ 71,60"}]}]}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Dezembro/2023", Total: "R$ 71,60", Year: "2023"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "single obligation payload",
			body: `{"resultado": {"periodo": "Maio/2024", "vencimento": "20/06/2024", "total": "R$ 75,60", "situacao": "A vencer"}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Maio/2024", DueDate: "20/06/2024", Total: "R$ 75,60", Status: "A vencer"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "present but empty sections are a valid empty result",
			body: `{"dAS": {"anos": []}, "dASN": {"anos": []}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "empty records are skipped, records with a status are kept",
			body: `{"dAS": {"anos": [{}, "junk", {"situacao": "Devedor"}]}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Status: "Devedor"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "years list delivered as a single guide object",
			body: `{"dAS": {"anos": {"periodo": "Março/2024", "vencimento": "20/04/2024", "total": "R$ 75,00", "situacao": "Devedor"}}, "dASN": {"anos": []}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Março/2024", DueDate: "20/04/2024", Total: "R$ 75,00", Status: "Devedor"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "guides list delivered as a single year group",
			body: `{"dAS": {"guias": {"ano": 2024, "guias": [{"periodo": "Abril/2024", "total": "R$ 75,60"}]}}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Abril/2024", Total: "R$ 75,60", Year: "2024"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "guide section is itself a single guide",
			body: `{"dAS": {"periodo": "Março/2024", "total": "R$ 75,00", "situacao": "Devedor"}, "dASN": {"anos": []}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{{Period: "Março/2024", Total: "R$ 75,00", Status: "Devedor"}},
				AnnualRaw:   []domain.RawAnnual{},
			},
		},
		{
			name: "declarations list delivered as a single object",
			body: `{"dAS": {"anos": []}, "dASN": {"anos": {"ano": "2023", "status": null}}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{},
				AnnualRaw:   []domain.RawAnnual{{Year: "2023"}},
			},
		},
		{
			name: "declaration section is itself a single declaration",
			body: `{"dASN": {"ano": 2022, "status": "Regular"}}`,
			want: &domain.CanonicalResult{
				PeriodicRaw: []domain.RawPeriodic{},
				AnnualRaw:   []domain.RawAnnual{{Year: "2022", Status: "Regular"}},
			},
		},
		{name: "string body", body: `"not json"`, wantErr: true},
		{name: "empty array", body: `[]`, wantErr: true},
		{name: "array of scalars", body: `[1, 2]`, wantErr: true},
		{name: "object without known fields", body: `{"message": "Workflow was started"}`, wantErr: true},
		{name: "envelope with scalar result", body: `{"resultado": "ok"}`, wantErr: true},
	}

	nz := usecase.NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nz.Normalize(decode(t, tt.body), nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnrecognizedShape)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	nz := usecase.NewNormalizer()
	body := decode(t, `[{"resultado": {"dAS": {"anos": [{"periodo": "Março/2024", "total": 75}, {"periodo": "Abril/2024", "situacao": "Pago"}]}, "dASN": {"anos": [{"ano": 2023}]}}}]`)

	first, err := nz.Normalize(body, nil)
	require.NoError(t, err)
	second, err := nz.Normalize(body, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizer_Narration(t *testing.T) {
	narrator := usecase.NewNarrator("run", nil, nil)
	_, err := usecase.NewNormalizer().Normalize(decode(t, `{"resultado": `+settledGuideBody+`}`), narrator)
	require.NoError(t, err)

	lines := narrator.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "response shape recognized: envelope-wrapped")
	assert.Contains(t, lines[1], "found 1 DAS guides and 0 DASN declarations")
}
