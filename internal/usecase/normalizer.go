package usecase

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"mei-diagnostic/internal/domain"
)

// The upstream contract is unversioned, so every lookup below is permissive:
// keys match case-insensitively and several historical names are accepted.
var (
	resultKeys      = []string{"resultado", "result"}
	periodicSection = "dAS"
	annualSection   = "dASN"
	periodicLists   = []string{"guias", "anos"}
	annualLists     = []string{"declaracoes", "anos"}
	nestedLists     = []string{"guias", "periodos", "meses"}
	obligationKeys  = []string{"periodo", "vencimento", "total"}
	guideKeys       = []string{"periodo", "vencimento", "total", "situacao"}
	declarationKeys = []string{"ano", "status", "dataApresentacao"}
)

// resolveTier is one attempt at locating the object that carries the record
// lists. Tiers are tried in order and the first hit wins.
type resolveTier struct {
	name string
	fn   func(body any) (map[string]any, bool)
}

var resolveTiers = []resolveTier{
	{"array-wrapped", fromArrayHead},
	{"envelope-wrapped", fromEnvelope},
	{"bare object", fromBareObject},
}

// Normalizer reduces the heterogeneous upstream bodies to a CanonicalResult.
type Normalizer struct{}

// NewNormalizer creates a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize is pure: the same body always yields the same result.
func (nz *Normalizer) Normalize(body any, n *Narrator) (*domain.CanonicalResult, error) {
	// Step 1: resolve the result object
	var (
		obj  map[string]any
		tier string
	)
	for _, t := range resolveTiers {
		if o, ok := t.fn(body); ok {
			obj, tier = o, t.name
			break
		}
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: body is %s", domain.ErrUnrecognizedShape, describe(body))
	}
	n.Sayf("response shape recognized: %s", tier)

	// Step 2: extract record lists
	periodicItems, hasPeriodic := sectionList(obj, periodicSection, periodicLists, guideKeys)
	annualItems, hasAnnual := sectionList(obj, annualSection, annualLists, declarationKeys)

	result := &domain.CanonicalResult{
		PeriodicRaw: make([]domain.RawPeriodic, 0, len(periodicItems)),
		AnnualRaw:   make([]domain.RawAnnual, 0, len(annualItems)),
	}
	for _, item := range flatten(periodicItems) {
		if rec, ok := toRawPeriodic(item); ok {
			result.PeriodicRaw = append(result.PeriodicRaw, rec)
		}
	}
	for _, item := range annualItems {
		if rec, ok := toRawAnnual(item); ok {
			result.AnnualRaw = append(result.AnnualRaw, rec)
		}
	}

	// Step 3: last resort, the object itself is a single guide
	if len(result.PeriodicRaw) == 0 && len(result.AnnualRaw) == 0 && hasAny(obj, obligationKeys) {
		if rec, ok := toRawPeriodic(obj); ok {
			n.Sayf("no record lists found, treating the object as a single guide")
			result.PeriodicRaw = append(result.PeriodicRaw, rec)
			return result, nil
		}
	}

	if !hasPeriodic && !hasAnnual {
		return nil, fmt.Errorf("%w: no %s or %s section", domain.ErrUnrecognizedShape, periodicSection, annualSection)
	}

	n.Sayf("found %d DAS guides and %d DASN declarations", len(result.PeriodicRaw), len(result.AnnualRaw))
	return result, nil
}

func fromArrayHead(body any) (map[string]any, bool) {
	arr, ok := body.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}
	head, ok := arr[0].(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := unwrapResult(head); ok {
		return inner, true
	}
	return head, true
}

func fromEnvelope(body any) (map[string]any, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	return unwrapResult(obj)
}

func fromBareObject(body any) (map[string]any, bool) {
	obj, ok := body.(map[string]any)
	return obj, ok
}

func unwrapResult(obj map[string]any) (map[string]any, bool) {
	v, ok := lookup(obj, resultKeys...)
	if !ok {
		return nil, false
	}
	switch inner := v.(type) {
	case map[string]any:
		return inner, true
	case []any:
		if len(inner) > 0 {
			if head, ok := inner[0].(map[string]any); ok {
				return head, true
			}
		}
	}
	return nil, false
}

// sectionList returns the first populated list of a section, and whether the
// section key was present at all. A list delivered as a single object, or a
// section that is itself a single record, becomes a one-element list.
func sectionList(obj map[string]any, section string, lists, recordKeys []string) ([]any, bool) {
	v, ok := lookup(obj, section)
	if !ok {
		return nil, false
	}
	switch sec := v.(type) {
	case []any:
		return sec, true
	case map[string]any:
		for _, name := range lists {
			items, ok := lookup(sec, name)
			if !ok {
				continue
			}
			switch list := items.(type) {
			case []any:
				if len(list) > 0 {
					return list, true
				}
			case map[string]any:
				return []any{list}, true
			}
		}
		if hasAny(sec, recordKeys) {
			return []any{sec}, true
		}
	}
	return nil, true
}

// flatten expands year groups such as {"ano": 2024, "guias": [...]} into their
// guides, carrying the year down.
func flatten(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		nested, ok := lookup(obj, nestedLists...)
		arr, isArr := nested.([]any)
		if !ok || !isArr || hasAny(obj, obligationKeys) {
			out = append(out, item)
			continue
		}
		year, _ := lookup(obj, "ano")
		for _, child := range arr {
			if c, ok := child.(map[string]any); ok {
				if _, has := lookup(c, "ano"); !has && year != nil {
					merged := make(map[string]any, len(c)+1)
					for k, v := range c {
						merged[k] = v
					}
					merged["ano"] = year
					child = merged
				}
			}
			out = append(out, child)
		}
	}
	return out
}

func toRawPeriodic(item any) (domain.RawPeriodic, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return domain.RawPeriodic{}, false
	}
	rec := domain.RawPeriodic{
		Period:  field(obj, "periodo"),
		DueDate: field(obj, "vencimento"),
		Total:   amountField(obj, "total"),
		Status:  field(obj, "situacao"),
		Year:    field(obj, "ano"),
	}
	if rec == (domain.RawPeriodic{}) {
		return rec, false
	}
	return rec, true
}

func toRawAnnual(item any) (domain.RawAnnual, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return domain.RawAnnual{}, false
	}
	rec := domain.RawAnnual{
		Year:          field(obj, "ano"),
		Status:        field(obj, "status"),
		SubmittedDate: field(obj, "dataApresentacao"),
	}
	if rec == (domain.RawAnnual{}) {
		return rec, false
	}
	return rec, true
}

func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	actual := make([]string, 0, len(obj))
	for k := range obj {
		actual = append(actual, k)
	}
	sort.Strings(actual)
	for _, k := range keys {
		for _, a := range actual {
			if strings.EqualFold(a, k) {
				return obj[a], true
			}
		}
	}
	return nil, false
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := lookup(obj, k); ok {
			return true
		}
	}
	return false
}

func field(obj map[string]any, key string) string {
	v, ok := lookup(obj, key)
	if !ok {
		return ""
	}
	return scalarString(v)
}

// amountField renders numeric totals in the localized form the classifier
// parses, so 75.5 becomes "75,5" instead of losing its decimal point.
func amountField(obj map[string]any, key string) string {
	v, ok := lookup(obj, key)
	if !ok {
		return ""
	}
	switch num := v.(type) {
	case json.Number:
		if d, err := decimal.NewFromString(num.String()); err == nil {
			return strings.Replace(d.String(), ".", ",", 1)
		}
	case float64:
		return strings.Replace(decimal.NewFromFloat(num).String(), ".", ",", 1)
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return decimal.NewFromFloat(s).String()
	case bool:
		if s {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array without a usable object"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("a %T", v)
	}
}
