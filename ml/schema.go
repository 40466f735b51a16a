package ml

import "fmt"

// SchemaVersion identifies the column policy baked into ChurnSchema. Bump it
// whenever a column list changes so stale artifacts can be told apart.
const SchemaVersion = "churn-bigml/v1"

// LabelColumn is the binary target.
const LabelColumn = "Churn"

type ColumnKind int

const (
	KindPassthrough ColumnKind = iota
	KindDrop
	KindLabelEncode
	KindMinMax
)

func (k ColumnKind) String() string {
	switch k {
	case KindDrop:
		return "drop"
	case KindLabelEncode:
		return "label-encode"
	case KindMinMax:
		return "min-max-scale"
	default:
		return "passthrough"
	}
}

// Column is one entry of the policy. Field is the snake case key the form
// front end uses for the column. Classes, when set, fixes the label-encoding
// code space instead of fitting it from the data.
type Column struct {
	Name    string
	Kind    ColumnKind
	Field   string
	Classes []string
}

// SchemaPolicy is the fixed encoding policy for the churn dataset. It is an
// immutable value; every pipeline run fits fresh encoders from it.
type SchemaPolicy struct {
	Version string
	Label   string
	Columns []Column
}

// ChurnSchema returns the policy for the churn-bigml CSV files.
func ChurnSchema() SchemaPolicy {
	return SchemaPolicy{
		Version: SchemaVersion,
		Label:   LabelColumn,
		Columns: []Column{
			{Name: "State", Kind: KindDrop},
			{Name: "Area code", Kind: KindDrop},
			{Name: "Total day minutes", Kind: KindDrop},
			{Name: "Total eve minutes", Kind: KindDrop},
			{Name: "Total night minutes", Kind: KindDrop},
			{Name: "Total intl minutes", Kind: KindDrop},

			{Name: "International plan", Kind: KindLabelEncode, Field: "international_plan"},
			{Name: "Voice mail plan", Kind: KindLabelEncode, Field: "voice_mail_plan"},
			{Name: LabelColumn, Kind: KindLabelEncode, Field: "churn", Classes: []string{"False", "True"}},

			{Name: "Account length", Kind: KindMinMax, Field: "account_length"},
			{Name: "Number vmail messages", Kind: KindMinMax, Field: "num_vmail_messages"},
			{Name: "Total day calls", Kind: KindMinMax, Field: "total_day_calls"},
			{Name: "Total day charge", Kind: KindMinMax, Field: "total_day_charge"},
			{Name: "Total eve calls", Kind: KindMinMax, Field: "total_eve_calls"},
			{Name: "Total eve charge", Kind: KindMinMax, Field: "total_eve_charge"},
			{Name: "Total night calls", Kind: KindMinMax, Field: "total_night_calls"},
			{Name: "Total night charge", Kind: KindMinMax, Field: "total_night_charge"},
			{Name: "Total intl calls", Kind: KindMinMax, Field: "total_intl_calls"},
			{Name: "Total intl charge", Kind: KindMinMax, Field: "total_intl_charge"},
			{Name: "Customer service calls", Kind: KindMinMax, Field: "customer_service_calls"},
		},
	}
}

// Kind reports how the policy treats a column. Unknown columns pass through.
func (p SchemaPolicy) Kind(column string) ColumnKind {
	for _, c := range p.Columns {
		if c.Name == column {
			return c.Kind
		}
	}
	return KindPassthrough
}

// Field returns the form key for a column, or "" when it has none.
func (p SchemaPolicy) Field(column string) string {
	for _, c := range p.Columns {
		if c.Name == column {
			return c.Field
		}
	}
	return ""
}

// ColumnsOf lists the policy columns of the given kind, in policy order.
func (p SchemaPolicy) ColumnsOf(kind ColumnKind) []Column {
	out := make([]Column, 0, len(p.Columns))
	for _, c := range p.Columns {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that every encoded or scaled column, label included, is
// present in header. Dropped columns are optional.
func (p SchemaPolicy) Validate(header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	if _, ok := present[p.Label]; !ok {
		return fmt.Errorf("%w: missing label column %q", ErrSchema, p.Label)
	}
	for _, c := range p.Columns {
		if c.Kind != KindLabelEncode && c.Kind != KindMinMax {
			continue
		}
		if _, ok := present[c.Name]; !ok {
			return fmt.Errorf("%w: missing required column %q", ErrSchema, c.Name)
		}
	}
	return nil
}
