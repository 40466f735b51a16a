package ml

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const (
	ArtifactFormat = "churnpredict.model/v1"

	ModelTypeRandomForest = "random_forest"
	ModelTypeDecisionTree = "decision_tree"
)

// Artifact is the on-disk envelope around a serialized model.
type Artifact struct {
	Format        string          `json:"format"`
	SchemaVersion string          `json:"schema_version"`
	ModelType     string          `json:"model_type"`
	CreatedAt     time.Time       `json:"created_at"`
	Model         json.RawMessage `json:"model"`
}

// EncodeArtifact wraps model in an Artifact and returns its JSON bytes.
func EncodeArtifact(model Classifier) ([]byte, error) {
	var modelType string
	switch model.(type) {
	case *RandomForest:
		modelType = ModelTypeRandomForest
	case *DecisionTree:
		modelType = ModelTypeDecisionTree
	default:
		return nil, fmt.Errorf("%w: unsupported model type %T", ErrInvalidInput, model)
	}
	body, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("%w: encode model: %v", ErrIO, err)
	}
	return json.Marshal(Artifact{
		Format:        ArtifactFormat,
		SchemaVersion: SchemaVersion,
		ModelType:     modelType,
		CreatedAt:     time.Now().UTC(),
		Model:         body,
	})
}

// DecodeArtifact parses and validates an artifact. Anything that does not
// decode into a usable model is ErrCorruptArtifact.
func DecodeArtifact(data []byte) (Classifier, *Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	if a.Format != ArtifactFormat {
		return nil, nil, fmt.Errorf("%w: unknown format %q", ErrCorruptArtifact, a.Format)
	}
	if len(a.Model) == 0 {
		return nil, nil, fmt.Errorf("%w: missing model body", ErrCorruptArtifact)
	}
	model, err := decodeModel(a.ModelType, a.Model)
	if err != nil {
		return nil, nil, err
	}
	return model, &a, nil
}

// decodeModel decodes a model body of the given type.
func decodeModel(modelType string, body []byte) (Classifier, error) {
	switch modelType {
	case ModelTypeRandomForest:
		model := &RandomForest{}
		if err := json.Unmarshal(body, model); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	case ModelTypeDecisionTree:
		model := &DecisionTree{}
		if err := json.Unmarshal(body, model); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
		}
		if err := model.validate(); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model type %q", ErrCorruptArtifact, modelType)
	}
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrCorruptArtifact)
	}
	if rf.Features <= 0 || len(rf.Classes) == 0 {
		return fmt.Errorf("%w: forest is not fitted", ErrCorruptArtifact)
	}
	if len(rf.Columns) != 0 && len(rf.Columns) != rf.Features {
		return fmt.Errorf("%w: %d feature names for %d features", ErrCorruptArtifact, len(rf.Columns), rf.Features)
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("%w: tree %d is null", ErrCorruptArtifact, i)
		}
		if tree.Features != rf.Features || len(tree.Classes) != len(rf.Classes) {
			return fmt.Errorf("%w: tree %d does not match forest shape", ErrCorruptArtifact, i)
		}
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// validate checks that every path from the root ends at a leaf. Children
// always sit after their parent, so traversal cannot loop.
func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 || dt.Features <= 0 || len(dt.Classes) == 0 {
		return fmt.Errorf("%w: tree is not fitted", ErrCorruptArtifact)
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Value) != len(dt.Classes) {
				return fmt.Errorf("%w: leaf %d has %d probabilities for %d classes",
					ErrCorruptArtifact, i, len(node.Value), len(dt.Classes))
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.Features {
			return fmt.Errorf("%w: node %d splits on feature %d", ErrCorruptArtifact, i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return fmt.Errorf("%w: node %d has child %d", ErrCorruptArtifact, i, child)
			}
		}
	}
	return nil
}
