package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// LoadedModel is one immutable generation of the serving model.
type LoadedModel struct {
	Model    Classifier
	Version  string
	Source   string
	LoadedAt time.Time
	Digest   string // sha256 of the model's JSON encoding
}

// Features returns the model's feature column names, or nil when the model
// does not carry them.
func (m *LoadedModel) Features() []string {
	if named, ok := m.Model.(FeatureNamer); ok {
		return named.FeatureNames()
	}
	return nil
}

// ModelHandle holds the model currently used for serving. Readers take a
// snapshot with Current; Swap replaces it without blocking them.
type ModelHandle struct {
	current atomic.Pointer[LoadedModel]
}

func NewModelHandle() *ModelHandle {
	return &ModelHandle{}
}

// Current returns the active model, or nil before the first Swap.
func (h *ModelHandle) Current() *LoadedModel {
	return h.current.Load()
}

// Swap installs model under a fresh version id and returns the new generation.
func (h *ModelHandle) Swap(model Classifier, source string) *LoadedModel {
	next := &LoadedModel{
		Model:    model,
		Version:  uuid.NewString(),
		Source:   source,
		LoadedAt: time.Now().UTC(),
		Digest:   modelDigest(model),
	}
	h.current.Store(next)
	return next
}

// SwapIfChanged installs model unless it encodes identically to the current
// one, in which case the current generation is returned with false.
func (h *ModelHandle) SwapIfChanged(model Classifier, source string) (*LoadedModel, bool) {
	if cur := h.Current(); cur != nil && cur.Digest != "" && cur.Digest == modelDigest(model) {
		return cur, false
	}
	return h.Swap(model, source), true
}

// modelDigest fingerprints models that can be stored as artifacts. Other
// classifiers get no digest and are always swapped.
func modelDigest(model Classifier) string {
	switch model.(type) {
	case *RandomForest, *DecisionTree:
	default:
		return ""
	}
	body, err := json.Marshal(model)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Predict runs a single prediction against the current model.
func (h *ModelHandle) Predict(features []float64) (int, float64, *LoadedModel, error) {
	m := h.Current()
	if m == nil {
		return 0, 0, nil, fmt.Errorf("%w: no model loaded", ErrNotFound)
	}
	label, prob, err := m.Model.Predict(features)
	if err != nil {
		return 0, 0, m, err
	}
	return label, prob, m, nil
}
