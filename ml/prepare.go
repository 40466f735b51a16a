package ml

import "fmt"

// FitScope selects which rows the encoders and scalers learn from.
type FitScope int

const (
	// FitCombined fits on train and test together, which guarantees both
	// splits share one code space and one scale. Test statistics leak into
	// preprocessing.
	FitCombined FitScope = iota
	// FitTrainOnly fits on the train partition and applies the result to
	// test. A test category never seen in train is rejected.
	FitTrainOnly
)

func (s FitScope) String() string {
	if s == FitTrainOnly {
		return "train"
	}
	return "combined"
}

type PrepareOptions struct {
	Policy   SchemaPolicy
	FitScope FitScope
}

func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{Policy: ChurnSchema(), FitScope: FitCombined}
}

// PreparedData holds the encoded train and test partitions. Rows of X and
// entries of Y correspond one to one; both X matrices share Features order.
type PreparedData struct {
	SchemaVersion string
	Features      []string
	XTrain        [][]float64
	XTest         [][]float64
	YTrain        []int
	YTest         []int
}

// PrepareData loads the train and test CSV files and encodes them with the
// churn schema, fitting on both files combined.
func PrepareData(trainPath, testPath string) (*PreparedData, error) {
	return PrepareDataWith(trainPath, testPath, DefaultPrepareOptions())
}

func PrepareDataWith(trainPath, testPath string, opts PrepareOptions) (*PreparedData, error) {
	train, err := ReadCSV(trainPath)
	if err != nil {
		return nil, err
	}
	test, err := ReadCSV(testPath)
	if err != nil {
		return nil, err
	}
	return PrepareFrames(train, test, opts)
}

// PrepareFrames runs the fixed preparation sequence: concatenate train then
// test, drop, label-encode, min-max scale, split back by the train row count,
// and separate the label.
func PrepareFrames(train, test *Frame, opts PrepareOptions) (*PreparedData, error) {
	policy := opts.Policy
	if policy.Version == "" {
		policy = ChurnSchema()
	}
	if err := policy.Validate(train.Columns); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	test, err := test.alignTo(train.Columns)
	if err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("%w: train has %d rows, test has %d rows", ErrSchema, train.Len(), test.Len())
	}

	nTrain := train.Len()
	data := concat(train, test)
	fitEnd := data.Len()
	if opts.FitScope == FitTrainOnly {
		fitEnd = nTrain
	}

	kept := make([]int, 0, len(data.Columns))
	for i, name := range data.Columns {
		if policy.Kind(name) != KindDrop {
			kept = append(kept, i)
		}
	}

	encoded := make(map[int][]float64, len(kept))
	for _, kind := range []ColumnKind{KindLabelEncode, KindMinMax} {
		for _, col := range policy.ColumnsOf(kind) {
			idx := data.Index(col.Name)
			if idx < 0 {
				return nil, fmt.Errorf("%w: missing required column %q", ErrSchema, col.Name)
			}
			values, err := encodeColumn(col, data.Column(idx), fitEnd)
			if err != nil {
				return nil, err
			}
			encoded[idx] = values
		}
	}
	for _, idx := range kept {
		if _, done := encoded[idx]; done {
			continue
		}
		values, err := encodeColumn(Column{Name: data.Columns[idx], Kind: KindPassthrough}, data.Column(idx), fitEnd)
		if err != nil {
			return nil, err
		}
		encoded[idx] = values
	}

	labelIdx := data.Index(policy.Label)
	features := make([]string, 0, len(kept)-1)
	featureIdx := make([]int, 0, len(kept)-1)
	for _, idx := range kept {
		if idx == labelIdx {
			continue
		}
		features = append(features, data.Columns[idx])
		featureIdx = append(featureIdx, idx)
	}

	x := make([][]float64, data.Len())
	y := make([]int, data.Len())
	labels := encoded[labelIdx]
	for r := range x {
		row := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			row[j] = encoded[idx][r]
		}
		x[r] = row
		y[r] = int(labels[r])
	}

	return &PreparedData{
		SchemaVersion: policy.Version,
		Features:      features,
		XTrain:        x[:nTrain],
		XTest:         x[nTrain:],
		YTrain:        y[:nTrain],
		YTest:         y[nTrain:],
	}, nil
}

func encodeColumn(col Column, cells []string, fitEnd int) ([]float64, error) {
	name := col.Name
	switch col.Kind {
	case KindLabelEncode:
		enc := &LabelEncoder{}
		if len(col.Classes) > 0 {
			enc = NewLabelEncoder(col.Classes...)
		}
		if err := enc.Fit(cells[:fitEnd]); err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrDataType, name, err)
		}
		values, err := enc.Transform(cells)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		return values, nil
	case KindMinMax:
		nums, err := parseNumeric(name, cells)
		if err != nil {
			return nil, err
		}
		scaler := &MinMaxScaler{}
		if err := scaler.Fit(nums[:fitEnd]); err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrDataType, name, err)
		}
		return scaler.Transform(nums)
	default:
		return parseNumeric(name, cells)
	}
}
