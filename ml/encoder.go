package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// LabelEncoder maps each distinct category to an integer code. Codes follow
// the sorted order of the distinct values: numeric order when every value
// parses as a number, lexical order otherwise ("No" < "Yes", "False" < "True").
type LabelEncoder struct {
	classes []string
	index   map[string]int
	fixed   bool
}

// NewLabelEncoder returns an encoder whose codes are the positions of
// classes. Fit leaves a fixed code space unchanged, so a partition holding a
// single class still encodes it to its fixed code.
func NewLabelEncoder(classes ...string) *LabelEncoder {
	e := &LabelEncoder{fixed: true}
	e.setClasses(append([]string(nil), classes...))
	return e
}

func (e *LabelEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.New("label encoder: no values")
	}
	seen := make(map[string]struct{})
	classes := make([]string, 0)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	if e.fixed {
		for _, c := range classes {
			if _, ok := e.index[c]; !ok {
				return fmt.Errorf("%w: category %q outside %v", ErrDataType, c, e.classes)
			}
		}
		return nil
	}
	sortCategories(classes)
	e.setClasses(classes)
	return nil
}

func (e *LabelEncoder) setClasses(classes []string) {
	e.classes = classes
	e.index = make(map[string]int, len(classes))
	for i, c := range classes {
		e.index[c] = i
	}
}

// Transform encodes values. A value the encoder was not fit on is a data
// type error.
func (e *LabelEncoder) Transform(values []string) ([]float64, error) {
	if e.index == nil {
		return nil, errors.New("label encoder: not fitted")
	}
	out := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[strings.TrimSpace(v)]
		if !ok {
			return nil, fmt.Errorf("%w: unseen category %q", ErrDataType, v)
		}
		out[i] = float64(code)
	}
	return out, nil
}

func (e *LabelEncoder) FitTransform(values []string) ([]float64, error) {
	if err := e.Fit(values); err != nil {
		return nil, err
	}
	return e.Transform(values)
}

// Classes returns the fitted categories in code order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func sortCategories(values []string) {
	allNumeric := true
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allNumeric = false
			break
		}
	}
	if !allNumeric {
		sort.Strings(values)
		return
	}
	sort.Slice(values, func(a, b int) bool {
		fa, _ := strconv.ParseFloat(values[a], 64)
		fb, _ := strconv.ParseFloat(values[b], 64)
		return fa < fb
	})
}

// MinMaxScaler rescales one column to [0, 1] using the range seen in Fit.
type MinMaxScaler struct {
	Min    float64
	Max    float64
	fitted bool
}

func (s *MinMaxScaler) Fit(values []float64) error {
	if len(values) == 0 {
		return errors.New("min-max scaler: no values")
	}
	s.Min, s.Max = values[0], values[0]
	for _, v := range values[1:] {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.fitted = true
	return nil
}

// Transform scales values. A constant column maps to 0.
func (s *MinMaxScaler) Transform(values []float64) ([]float64, error) {
	if !s.fitted {
		return nil, errors.New("min-max scaler: not fitted")
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = NormalizeFeature(v, s.Min, s.Max)
	}
	return out, nil
}

func (s *MinMaxScaler) FitTransform(values []float64) ([]float64, error) {
	if err := s.Fit(values); err != nil {
		return nil, err
	}
	return s.Transform(values)
}

func NormalizeFeature(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (value - min) / (max - min)
}

// parseNumeric converts a column of cells to floats.
func parseNumeric(column string, cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: column %q row %d: %q is not numeric", ErrDataType, column, i+1, cell)
		}
		out[i] = v
	}
	return out, nil
}
