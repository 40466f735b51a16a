package ml

import (
	"errors"
	"strings"
	"testing"
)

func TestLabelEncoderOrdering(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{name: "lexical", values: []string{"Yes", "No", "Yes"}, want: []string{"No", "Yes"}},
		{name: "booleans", values: []string{"True", "False"}, want: []string{"False", "True"}},
		{name: "numeric", values: []string{"10", "9", "100"}, want: []string{"9", "10", "100"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &LabelEncoder{}
			if err := enc.Fit(tt.values); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := enc.Classes()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("classes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLabelEncoderUnseen(t *testing.T) {
	enc := &LabelEncoder{}
	codes, err := enc.FitTransform([]string{"No", "Yes", "No"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codes[0] != 0 || codes[1] != 1 || codes[2] != 0 {
		t.Fatalf("unexpected codes %v", codes)
	}
	if _, err := enc.Transform([]string{"Maybe"}); !errors.Is(err, ErrDataType) {
		t.Fatalf("expected ErrDataType, got %v", err)
	}
}

func TestLabelEncoderFixedClasses(t *testing.T) {
	enc := NewLabelEncoder("False", "True")
	if err := enc.Fit([]string{"True", "True"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	codes, err := enc.Transform([]string{"True", "False"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if codes[0] != 1 || codes[1] != 0 {
		t.Fatalf("fixed codes changed by fit: %v", codes)
	}
	if err := enc.Fit([]string{"Yes"}); !errors.Is(err, ErrDataType) {
		t.Fatalf("expected ErrDataType, got %v", err)
	}
}

func TestParseNumericRejectsNonFinite(t *testing.T) {
	for _, cell := range []string{"NaN", "nan", "Inf", "+Inf", "-Infinity", "x"} {
		t.Run(cell, func(t *testing.T) {
			if _, err := parseNumeric("Account length", []string{"1", cell}); !errors.Is(err, ErrDataType) {
				t.Fatalf("expected ErrDataType for %q, got %v", cell, err)
			}
		})
	}
	got, err := parseNumeric("Account length", []string{" 1.5", "1e2"})
	if err != nil || got[0] != 1.5 || got[1] != 100 {
		t.Fatalf("parseNumeric = %v, %v", got, err)
	}
}

func TestMinMaxScaler(t *testing.T) {
	s := &MinMaxScaler{}
	got, err := s.FitTransform([]float64{2, 4, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0, 0.5, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scaled = %v, want %v", got, want)
		}
	}

	constant, err := (&MinMaxScaler{}).FitTransform([]float64{3, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if constant[0] != 0 || constant[1] != 0 {
		t.Fatalf("constant column should scale to 0, got %v", constant)
	}

	if _, err := (&MinMaxScaler{}).Transform([]float64{1}); err == nil {
		t.Fatalf("expected error from unfitted scaler")
	}
}

func TestSchemaValidate(t *testing.T) {
	policy := ChurnSchema()
	header := strings.Split(strings.SplitN(readFile(t, trainCSV), "\n", 2)[0], ",")
	if err := policy.Validate(header); err != nil {
		t.Fatalf("fixture header should validate: %v", err)
	}

	var withoutDropped []string
	for _, h := range header {
		if policy.Kind(h) != KindDrop {
			withoutDropped = append(withoutDropped, h)
		}
	}
	if err := policy.Validate(withoutDropped); err != nil {
		t.Fatalf("dropped columns should be optional: %v", err)
	}

	var withoutCharge []string
	for _, h := range header {
		if h != "Total day charge" {
			withoutCharge = append(withoutCharge, h)
		}
	}
	if err := policy.Validate(withoutCharge); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if got := policy.Field("International plan"); got != "international_plan" {
		t.Fatalf("unexpected form field %q", got)
	}
}

func TestLoadFrameStripsBOM(t *testing.T) {
	f, err := LoadFrame(strings.NewReader("\ufeffState,Churn\nKS,False\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Columns[0] != "State" {
		t.Fatalf("BOM not stripped: %q", f.Columns[0])
	}
	if _, err := LoadFrame(strings.NewReader("")); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for empty input, got %v", err)
	}
	if _, err := LoadFrame(strings.NewReader("a,b\n1,2,3\n")); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for ragged row, got %v", err)
	}
}
