// Package catalog defines the domain types and contracts for resolving
// vehicle identification descriptors (VIDs) against the parts catalog.
package catalog

import "errors"

// ErrMissingSeries indicates a selection without the mandatory series code.
var ErrMissingSeries = errors.New("series is required")

// Selection is a partial vehicle description. Series is mandatory; every
// other attribute is optional and an empty string means "not constrained",
// never "equals empty".
type Selection struct {
	Series     string `json:"series"`
	Body       string `json:"body,omitempty"`
	Model      string `json:"model,omitempty"`
	Market     string `json:"market,omitempty"`
	Production string `json:"production,omitempty"`
	Engine     string `json:"engine,omitempty"`
	Steering   string `json:"steering,omitempty"`
}

// Constraint is one field/value pair a cached record must match exactly.
type Constraint struct {
	Field string
	Value string
}

// Selection field names used in constraints and query parameters.
const (
	FieldSeries     = "series"
	FieldBody       = "body"
	FieldModel      = "model"
	FieldMarket     = "market"
	FieldProduction = "production"
	FieldEngine     = "engine"
	FieldSteering   = "steering"
)

// Validate rejects selections that cannot be looked up at all.
func (s Selection) Validate() error {
	if s.Series == "" {
		return ErrMissingSeries
	}
	return nil
}

// Constraints returns the match predicate for this selection: series first,
// then every present optional attribute in a fixed order. Absent attributes
// contribute nothing, so the result is a partial-match key rather than a
// full-tuple one.
func (s Selection) Constraints() []Constraint {
	out := []Constraint{{Field: FieldSeries, Value: s.Series}}
	for _, c := range []Constraint{
		{Field: FieldBody, Value: s.Body},
		{Field: FieldModel, Value: s.Model},
		{Field: FieldMarket, Value: s.Market},
		{Field: FieldProduction, Value: s.Production},
		{Field: FieldEngine, Value: s.Engine},
		{Field: FieldSteering, Value: s.Steering},
	} {
		if c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}
