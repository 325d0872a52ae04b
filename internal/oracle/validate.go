package oracle

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

var hundred = decimal.NewFromInt(100)

// newValidator returns a validator that understands decimal fields.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// normaliseProbability maps percentages in (1,100] onto [0,1].
func normaliseProbability(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(decimal.NewFromInt(1)) && p.LessThanOrEqual(hundred) {
		return p.Div(hundred)
	}
	return p
}

func cleanRecommendation(r model.Recommendation) model.Recommendation {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Event = strings.TrimSpace(r.Event)
	r.Category = strings.TrimSpace(r.Category)
	r.Player = strings.TrimSpace(r.Player)
	r.Type = strings.TrimSpace(r.Type)
	r.EventDateTime = strings.TrimSpace(r.EventDateTime)
	r.Reasoning = strings.TrimSpace(r.Reasoning)
	r.Confidence = model.Confidence(strings.ToUpper(strings.TrimSpace(string(r.Confidence))))
	r.ImplicitProbability = normaliseProbability(r.ImplicitProbability)
	r.EstimatedProbability = normaliseProbability(r.EstimatedProbability)
	return r
}

// validRecommendations returns the entries that pass validation, cleaned.
func validRecommendations(v *validator.Validate, recs []model.Recommendation) (kept []model.Recommendation, dropped int) {
	kept = make([]model.Recommendation, 0, len(recs))
	for _, r := range recs {
		r = cleanRecommendation(r)
		if err := v.Struct(r); err != nil {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// validAuditResults keeps entries with an id and a known result. Ids that do
// not match any submitted bet are kept; the ledger ignores them.
func validAuditResults(v *validator.Validate, results []model.AuditResult) (kept []model.AuditResult, dropped int) {
	kept = make([]model.AuditResult, 0, len(results))
	for _, r := range results {
		r.ID = strings.TrimSpace(r.ID)
		r.Result = model.BetResult(strings.ToUpper(strings.TrimSpace(string(r.Result))))
		if err := v.Struct(r); err != nil {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}
