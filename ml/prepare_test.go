package ml

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const (
	trainCSV = "testdata/churn-train.csv"
	testCSV  = "testdata/churn-test.csv"
)

func mustFrame(t *testing.T, csv string) *Frame {
	t.Helper()
	f, err := LoadFrame(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load frame: %v", err)
	}
	return f
}

func TestPrepareDataFixtures(t *testing.T) {
	data, err := PrepareData(trainCSV, testCSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data.XTrain) != 45 || len(data.YTrain) != 45 {
		t.Fatalf("expected 45 train rows, got %d/%d", len(data.XTrain), len(data.YTrain))
	}
	if len(data.XTest) != 15 || len(data.YTest) != 15 {
		t.Fatalf("expected 15 test rows, got %d/%d", len(data.XTest), len(data.YTest))
	}
	if len(data.Features) != 13 {
		t.Fatalf("expected 13 features, got %d: %v", len(data.Features), data.Features)
	}
	if data.SchemaVersion != SchemaVersion {
		t.Fatalf("unexpected schema version %q", data.SchemaVersion)
	}

	policy := ChurnSchema()
	for _, name := range data.Features {
		if policy.Kind(name) == KindDrop || name == LabelColumn {
			t.Fatalf("feature list contains %q", name)
		}
	}
	for _, X := range [][][]float64{data.XTrain, data.XTest} {
		for i, row := range X {
			if len(row) != len(data.Features) {
				t.Fatalf("row %d has %d values", i, len(row))
			}
			for j, v := range row {
				if v < 0 || v > 1 {
					t.Fatalf("row %d feature %s = %v outside [0,1]", i, data.Features[j], v)
				}
			}
		}
	}
	for _, y := range append(append([]int(nil), data.YTrain...), data.YTest...) {
		if y != 0 && y != 1 {
			t.Fatalf("label %d outside {0,1}", y)
		}
	}
}

func TestPrepareFramesCombinedFit(t *testing.T) {
	train := mustFrame(t, "Account length,International plan,Churn\n10,No,False\n20,Yes,True\n")
	test := mustFrame(t, "Account length,International plan,Churn\n30,No,False\n")
	policy := SchemaPolicy{
		Version: "test",
		Label:   LabelColumn,
		Columns: []Column{
			{Name: "International plan", Kind: KindLabelEncode},
			{Name: LabelColumn, Kind: KindLabelEncode},
			{Name: "Account length", Kind: KindMinMax},
		},
	}

	data, err := PrepareFrames(train, test, PrepareOptions{Policy: policy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Account length scales over 10..30 including the test row.
	want := [][]float64{{0, 0}, {0.5, 1}}
	for i, row := range data.XTrain {
		for j := range row {
			if row[j] != want[i][j] {
				t.Fatalf("train row %d = %v, want %v", i, row, want[i])
			}
		}
	}
	if data.XTest[0][0] != 1 {
		t.Fatalf("test account length should scale to 1, got %v", data.XTest[0][0])
	}
	if data.YTrain[0] != 0 || data.YTrain[1] != 1 || data.YTest[0] != 0 {
		t.Fatalf("unexpected labels %v %v", data.YTrain, data.YTest)
	}
}

func TestPrepareFramesTrainOnlyFit(t *testing.T) {
	train := mustFrame(t, "Account length,Churn\n10,False\n20,True\n")
	test := mustFrame(t, "Account length,Churn\n30,False\n")
	policy := SchemaPolicy{
		Version: "test",
		Label:   LabelColumn,
		Columns: []Column{
			{Name: LabelColumn, Kind: KindLabelEncode},
			{Name: "Account length", Kind: KindMinMax},
		},
	}

	data, err := PrepareFrames(train, test, PrepareOptions{Policy: policy, FitScope: FitTrainOnly})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.XTest[0][0] != 2 {
		t.Fatalf("test row should scale against train range to 2, got %v", data.XTest[0][0])
	}

	unseen := mustFrame(t, "Account length,Churn\n30,Maybe\n")
	if _, err := PrepareFrames(train, unseen, PrepareOptions{Policy: policy, FitScope: FitTrainOnly}); !errors.Is(err, ErrDataType) {
		t.Fatalf("expected ErrDataType for unseen category, got %v", err)
	}
}

func TestPrepareFramesAlignsTestColumns(t *testing.T) {
	train := mustFrame(t, "Account length,Churn\n10,False\n20,True\n")
	test := mustFrame(t, "Churn,Account length\nTrue,15\n")
	policy := SchemaPolicy{
		Version: "test",
		Label:   LabelColumn,
		Columns: []Column{
			{Name: LabelColumn, Kind: KindLabelEncode},
			{Name: "Account length", Kind: KindMinMax},
		},
	}
	data, err := PrepareFrames(train, test, PrepareOptions{Policy: policy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.XTest[0][0] != 0.5 || data.YTest[0] != 1 {
		t.Fatalf("test row misaligned: x=%v y=%v", data.XTest[0], data.YTest[0])
	}
}

func TestPrepareDataErrors(t *testing.T) {
	dir := t.TempDir()
	missingLabel := writeFile(t, dir, "nolabel.csv", "Account length\n10\n")
	badNumber := writeFile(t, dir, "bad.csv", strings.Replace(readFile(t, trainCSV), ",42,", ",forty-two,", 1))
	headerOnly := writeFile(t, dir, "empty.csv", strings.SplitN(readFile(t, trainCSV), "\n", 2)[0]+"\n")
	nanCell := writeFile(t, dir, "nan.csv", strings.Replace(readFile(t, trainCSV), ",42,", ",NaN,", 1))
	infCell := writeFile(t, dir, "inf.csv", strings.Replace(readFile(t, trainCSV), ",42,", ",Inf,", 1))
	infTest := writeFile(t, dir, "inf-test.csv", strings.Replace(readFile(t, trainCSV), ",42,", ",-Infinity,", 1))

	tests := []struct {
		name  string
		train string
		test  string
		want  error
	}{
		{name: "missing file", train: filepath.Join(dir, "nope.csv"), test: testCSV, want: ErrIO},
		{name: "missing label", train: missingLabel, test: testCSV, want: ErrSchema},
		{name: "non-numeric scaled column", train: badNumber, test: testCSV, want: ErrDataType},
		{name: "empty test partition", train: trainCSV, test: headerOnly, want: ErrSchema},
		{name: "NaN cell", train: nanCell, test: testCSV, want: ErrDataType},
		{name: "Inf cell", train: infCell, test: testCSV, want: ErrDataType},
		{name: "negative infinity in test", train: trainCSV, test: infTest, want: ErrDataType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrepareData(tt.train, tt.test)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestPrepareDataSameFileTwice(t *testing.T) {
	data, err := PrepareData(testCSV, testCSV)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data.XTrain) != len(data.XTest) {
		t.Fatalf("expected equal partitions, got %d and %d", len(data.XTrain), len(data.XTest))
	}
	for i := range data.XTrain {
		for j := range data.XTrain[i] {
			if data.XTrain[i][j] != data.XTest[i][j] {
				t.Fatalf("row %d differs between partitions", i)
			}
		}
	}
}

func TestPrepareDataSingleClassLabels(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(readFile(t, testCSV)), "\n")
	churned := []string{lines[0]}
	for _, line := range lines[1:] {
		if strings.HasSuffix(line, ",True") {
			churned = append(churned, line)
		}
	}
	path := writeFile(t, t.TempDir(), "churned.csv", strings.Join(churned, "\n")+"\n")

	data, err := PrepareData(path, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, y := range append(append([]int(nil), data.YTrain...), data.YTest...) {
		if y != 1 {
			t.Fatalf("row %d: churned customer encoded as %d", i, y)
		}
	}
}

func TestPrepareDataRejectsUnknownLabel(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "label.csv", strings.Replace(readFile(t, trainCSV), ",True\n", ",Maybe\n", 1))
	if _, err := PrepareData(bad, testCSV); !errors.Is(err, ErrDataType) {
		t.Fatalf("expected ErrDataType, got %v", err)
	}
}
