package ml

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func trainedForest(t *testing.T) *RandomForest {
	t.Helper()
	X, y := syntheticSet(40, 3, 2)
	model, err := TrainModelWith(X, y, WithSeed(3), WithNEstimators(10))
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	model.Columns = []string{"a", "b", "c"}
	return model
}

func TestSaveLoadRoundTrip(t *testing.T) {
	model := trainedForest(t)
	path := filepath.Join(t.TempDir(), "nested", "churn_model.json")

	if err := SaveModel(model, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := loaded.(*RandomForest); !ok {
		t.Fatalf("expected *RandomForest, got %T", loaded)
	}
	if names := loaded.(FeatureNamer).FeatureNames(); len(names) != 3 || names[2] != "c" {
		t.Fatalf("feature names not preserved: %v", names)
	}

	sample, _ := syntheticSet(25, 3, 8)
	want, _ := model.PredictBatch(sample)
	got, err := loaded.PredictBatch(sample)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("row %d: loaded model predicts %d, original %d", i, got[i], want[i])
		}
	}

	// Saving again replaces the file and leaves no temp files behind.
	if err := SaveModel(model, path); err != nil {
		t.Fatalf("second save: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in the directory, got %d entries", len(entries))
	}
}

func TestDecisionTreeArtifact(t *testing.T) {
	tree := NewDecisionTree()
	if err := tree.Train([][]float64{{0}, {1}, {2}, {3}}, []int{0, 0, 1, 1}); err != nil {
		t.Fatalf("train: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	if err := SaveModel(tree, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	label, _, err := loaded.Predict([]float64{2.5})
	if err != nil || label != 1 {
		t.Fatalf("expected label 1, got %d (%v)", label, err)
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	good, err := EncodeArtifact(trainedForest(t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "not json", content: "pickle\x80\x04", want: ErrCorruptArtifact},
		{name: "truncated", content: string(good[:len(good)/2]), want: ErrCorruptArtifact},
		{name: "wrong format", content: `{"format":"other","model_type":"random_forest","model":{}}`, want: ErrCorruptArtifact},
		{name: "unknown type", content: `{"format":"` + ArtifactFormat + `","model_type":"svm","model":{}}`, want: ErrCorruptArtifact},
		{name: "empty forest", content: `{"format":"` + ArtifactFormat + `","model_type":"random_forest","model":{"trees":[]}}`, want: ErrCorruptArtifact},
		{
			name: "child points backwards",
			content: `{"format":"` + ArtifactFormat + `","model_type":"decision_tree","model":{"n_features":1,"classes":[0,1],` +
				`"nodes":[{"feature_idx":0,"left_child":0,"right_child":1},{"is_leaf":true,"value":[1,0]}]}}`,
			want: ErrCorruptArtifact,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".json", tt.content)
			if _, err := LoadModel(path); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadModel(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveModelUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := writeFile(t, dir, "file", "x")
	err := SaveModel(trainedForest(t), filepath.Join(blocker, "model.json"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestFileStoreKeysRelativeToDir(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()
	if err := store.Store(ctx, trainedForest(t), "v1/model.json"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "v1", "model.json")); err != nil {
		t.Fatalf("artifact not under dir: %v", err)
	}
	if _, err := store.Retrieve(ctx, "v1/model.json"); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	store := NewS3Store(client, "models", "churn")
	ctx := context.Background()

	if err := store.Store(ctx, trainedForest(t), "model.json"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := client.objects["models/churn/model.json"]; !ok {
		t.Fatalf("object not written under prefix: %v", client.objects)
	}
	model, err := store.Retrieve(ctx, "model.json")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if model.NumFeatures() != 3 {
		t.Fatalf("unexpected width %d", model.NumFeatures())
	}

	if _, err := store.Retrieve(ctx, "other.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	client.putErr = errors.New("access denied")
	if err := store.Store(ctx, model, "model.json"); !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}
